package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/inelson/kubesql/internal/models"
)

func insertTables(ctx context.Context, db *sql.DB, t *models.Tables) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertResources(ctx, tx,
		`INSERT INTO pods (uid, node, metadata, spec, status) VALUES (?, ?, ?, ?, ?)`,
		t.Pods, func(r *models.ResourceRecord) []any { return []any{r.UID, r.Node} },
	); err != nil {
		return fmt.Errorf("insert pods: %w", err)
	}
	if err := insertResources(ctx, tx,
		`INSERT INTO nodes (name, uid, metadata, spec, status) VALUES (?, ?, ?, ?, ?)`,
		t.Nodes, func(r *models.ResourceRecord) []any { return []any{r.Name, r.UID} },
	); err != nil {
		return fmt.Errorf("insert nodes: %w", err)
	}
	if err := insertResources(ctx, tx,
		`INSERT INTO services (name, uid, metadata, spec, status) VALUES (?, ?, ?, ?, ?)`,
		t.Services, func(r *models.ResourceRecord) []any { return []any{r.Name, r.UID} },
	); err != nil {
		return fmt.Errorf("insert services: %w", err)
	}
	if err := insertContainers(ctx, tx, t.Containers); err != nil {
		return fmt.Errorf("insert containers: %w", err)
	}

	return tx.Commit()
}

// insertResources writes records with the leading key columns returned by
// keys followed by the three document columns.
func insertResources(ctx context.Context, tx *sql.Tx, query string, records []models.ResourceRecord, keys func(*models.ResourceRecord) []any) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		args := keys(r)
		for _, doc := range []models.Document{r.Metadata, r.Spec, r.Status} {
			text, err := encodeDocument(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", r.UID, err)
			}
			args = append(args, text)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func insertContainers(ctx context.Context, tx *sql.Tx, records []models.ContainerRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO containers (image, uid, restarts) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range records {
		if _, err := stmt.ExecContext(ctx, c.Image, c.UID, c.Restarts); err != nil {
			return err
		}
	}
	return nil
}

func encodeDocument(doc models.Document) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
