package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/validate"
)

// TableData is a backing table's columns and rows, for display and reporting
type TableData struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Tables provides read-back access to backing tables
type Tables struct {
	db *db.Manager
}

// NewTables creates a new backing table reader
func NewTables(manager *db.Manager) *Tables {
	return &Tables{db: manager}
}

// List returns the names of all backing tables
func (t *Tables) List(ctx context.Context) ([]string, error) {
	rows, err := t.db.GetDB().QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if validate.IsReservedTable(name) {
			continue
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Read returns all columns and rows of a backing table in insertion order.
// A limit of zero or less returns every row.
func (t *Tables) Read(ctx context.Context, name string, limit int) (*TableData, error) {
	if err := t.checkBackingTable(ctx, t.db.GetDB(), name); err != nil {
		return nil, err
	}

	columns, err := ExistingColumns(ctx, t.db.GetDB(), name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", Quote(name), Quote(IdentityColumn))
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := t.db.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	defer rows.Close()

	data := &TableData{Name: name, Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data.Rows = append(data.Rows, values)
	}

	return data, rows.Err()
}

// Clear deletes every row of a backing table and resets its identity
// sequence. The table structure is preserved.
func (t *Tables) Clear(ctx context.Context, name string) (int64, error) {
	var deleted int64
	err := t.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := t.checkBackingTable(ctx, tx, name); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", Quote(name)))
		if err != nil {
			return fmt.Errorf("%w: failed to clear %s: %w", apperrors.ErrStorage, name, err)
		}
		deleted, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ? COLLATE NOCASE", name); err != nil {
			return fmt.Errorf("%w: failed to reset sequence of %s: %w", apperrors.ErrStorage, name, err)
		}
		return nil
	})
	return deleted, err
}

func (t *Tables) checkBackingTable(ctx context.Context, q Querier, name string) error {
	if err := validate.ValidateTableName(name); err != nil {
		return err
	}

	exists, err := TableExists(ctx, q, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: table %s", apperrors.ErrNotFound, name)
	}
	return nil
}
