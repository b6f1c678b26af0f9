// Package schema owns the shape of backing tables: the DDL that creates and
// extends them, and the read-back operations used by reporting consumers.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/user/collector/internal/validate"
)

// IdentityColumn is the auto-assigned row identity of every backing table
const IdentityColumn = "id"

// Session table columns
const (
	ColDeviceID        = "device_id"
	ColStartTime       = "start_time"
	ColEndTime         = "end_time"
	ColDurationSeconds = "duration_seconds"
)

// Column is one column of a backing table
type Column struct {
	Name string
	Type string
}

// TableSchema is the declared shape of a backing table. It is built from a
// template at save time and is the only input to DDL.
type TableSchema struct {
	Name    string
	Columns []Column
}

// TextSchema builds a schema with one TEXT column per name
func TextSchema(name string, columns []string) TableSchema {
	ts := TableSchema{Name: name, Columns: make([]Column, 0, len(columns))}
	for _, c := range columns {
		ts.Columns = append(ts.Columns, Column{Name: c, Type: "TEXT"})
	}
	return ts
}

// SessionSchema builds the fixed device session schema
func SessionSchema(name string) TableSchema {
	return TableSchema{
		Name: name,
		Columns: []Column{
			{Name: ColDeviceID, Type: "TEXT"},
			{Name: ColStartTime, Type: "TEXT"},
			{Name: ColEndTime, Type: "TEXT"},
			{Name: ColDurationSeconds, Type: "INTEGER"},
		},
	}
}

// Validate checks every identifier in the schema
func (ts TableSchema) Validate() error {
	if err := validate.ValidateTableName(ts.Name); err != nil {
		return err
	}

	seen := make(map[string]bool, len(ts.Columns))
	for _, c := range ts.Columns {
		if err := validate.ValidateIdentifier(c.Name); err != nil {
			return err
		}
		key := strings.ToLower(c.Name)
		if key == IdentityColumn {
			return fmt.Errorf("column %q collides with the row identity", c.Name)
		}
		if seen[key] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[key] = true
	}
	return nil
}

// Has reports whether the schema declares the column
func (ts TableSchema) Has(column string) bool {
	for _, c := range ts.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// ColumnNames returns the declared column names in order
func (ts TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		names[i] = c.Name
	}
	return names
}

// Quote quotes an identifier for use in SQL
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TableExists reports whether a table exists. Table names match without
// regard to case, as they do in SQL.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ? COLLATE NOCASE", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return count > 0, nil
}

// ExistingColumns returns the current column names of a table in ordinal order
func ExistingColumns(ctx context.Context, q Querier, name string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", Quote(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid        int
			colName    string
			colType    string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		columns = append(columns, colName)
	}

	return columns, rows.Err()
}

// HasColumn reports whether an existing table carries the column
func HasColumn(ctx context.Context, q Querier, table, column string) (bool, error) {
	columns, err := ExistingColumns(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, c := range columns {
		if strings.EqualFold(c, column) {
			return true, nil
		}
	}
	return false, nil
}

// TimestampLayout is the text format of every timestamp the engine writes
const TimestampLayout = "2006-01-02 15:04:05"
