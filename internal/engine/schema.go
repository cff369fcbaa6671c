package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// applySchema executes every *.up.sql file of schema in version order
// inside one transaction.
func applySchema(ctx context.Context, db *sql.DB, schema fs.FS) error {
	files, err := fs.Glob(schema, "schema/*.up.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(files)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback()

	for _, filename := range files {
		var version int
		base := strings.TrimPrefix(filename, "schema/")
		if _, err := fmt.Sscanf(base, "%06d_", &version); err != nil {
			continue
		}

		content, err := fs.ReadFile(schema, filename)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", filename, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute schema %s: %w", filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
