// Package db is the narrow capability through which the engines reach
// the relational query executor. Everything above this package speaks
// in terms of Querier and Row; nothing else touches database/sql.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Row is one record returned by the query executor, keyed by column name.
type Row map[string]any

// Column describes one column of a table, in declaration order.
type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

// Querier is the query capability handed to the data movement engines.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Exec(ctx context.Context, query string, args ...any) error
	TableColumns(ctx context.Context, table string) ([]Column, error)
}

type DB struct {
	*sqlx.DB
}

// New connects to the source database.
func New(dsn string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Busy timeout handles concurrent access from jobs and exports.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Query runs a parameter-bound query and returns all rows.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		normalizeRow(row)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

// Exec runs a statement that returns no rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// TableColumns returns the ordered column descriptors for a table.
func (db *DB) TableColumns(ctx context.Context, table string) ([]Column, error) {
	type pragmaRow struct {
		CID     int     `db:"cid"`
		Name    string  `db:"name"`
		Type    string  `db:"type"`
		NotNull int     `db:"notnull"`
		Default *string `db:"dflt_value"`
		PK      int     `db:"pk"`
	}

	var rows []pragmaRow
	if err := db.SelectContext(ctx, &rows, fmt.Sprintf("PRAGMA table_info(%q)", table)); err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	columns := make([]Column, len(rows))
	for i, r := range rows {
		columns[i] = Column{
			Name:     r.Name,
			Type:     r.Type,
			Nullable: r.NotNull == 0,
			Default:  r.Default,
		}
	}
	return columns, nil
}

// normalizeRow converts driver byte slices to strings so rows compare
// and encode the same regardless of column affinity.
func normalizeRow(row Row) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}
