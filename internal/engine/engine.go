// Package engine is the relational engine behind a snapshot: an in-memory
// SQLite database holding the pods, nodes, services and containers tables.
package engine

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/inelson/kubesql/internal/models"
)

//go:embed schema/*.up.sql
var schemaFS embed.FS

// DB is one loaded, read-only database. Every DB owns a private in-memory
// SQLite instance, so nothing is shared between snapshots.
type DB struct {
	db *sql.DB
}

// Result is the raw output of a query. Types holds the declared column
// type of each column, or "" for computed expressions.
type Result struct {
	Columns []string
	Types   []string
	Rows    [][]any
}

// Load opens a fresh in-memory database, creates the schema, inserts the
// given tables and switches the connection to query-only mode.
func Load(ctx context.Context, tables *models.Tables) (*DB, error) {
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database lives and dies with its connection.
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	raw.SetConnMaxLifetime(0)
	raw.SetConnMaxIdleTime(0)

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := applySchema(ctx, raw, schemaFS); err != nil {
		raw.Close()
		return nil, err
	}
	if err := insertTables(ctx, raw, tables); err != nil {
		raw.Close()
		return nil, fmt.Errorf("load tables: %w", err)
	}
	if _, err := raw.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		raw.Close()
		return nil, fmt.Errorf("enable query_only: %w", err)
	}

	return &DB{db: raw}, nil
}

// Query runs a single read-only statement and collects every row. The
// statement runs in a transaction that is always rolled back.
func (d *DB) Query(ctx context.Context, query string) (*Result, error) {
	if err := checkReadOnly(query); err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin query tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Columns: cols,
		Types:   make([]string, len(cols)),
	}
	for i, ct := range colTypes {
		res.Types[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
