// Package upsert writes candidate rows into backing tables, inserting or
// updating by an optional unique key column.
package upsert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/validate"
)

// Field is one column value of a row
type Field struct {
	Column string
	Value  any
}

// Row is an ordered set of column values
type Row []Field

// Get returns the value of column and whether it is present
func (r Row) Get(column string) (any, bool) {
	for _, f := range r {
		if strings.EqualFold(f.Column, column) {
			return f.Value, true
		}
	}
	return nil, false
}

// Result of a write
type Result struct {
	ID      int64
	Updated bool
}

// Write upserts row into table. When uniqueKey is set and the row carries a
// non-nil value for it, the first existing row with that value is updated in
// full; otherwise a new row is inserted.
func Write(ctx context.Context, q schema.Querier, table string, row Row, uniqueKey string) (Result, error) {
	if len(row) == 0 {
		return Result{}, fmt.Errorf("empty row for %s", table)
	}
	if err := validate.ValidateTableName(table); err != nil {
		return Result{}, err
	}
	for _, f := range row {
		if err := validate.ValidateIdentifier(f.Column); err != nil {
			return Result{}, err
		}
	}

	if uniqueKey != "" {
		if key, ok := row.Get(uniqueKey); ok && key != nil {
			id, found, err := lookup(ctx, q, table, uniqueKey, key)
			if err != nil {
				return Result{}, err
			}
			if found {
				if err := Update(ctx, q, table, id, row); err != nil {
					return Result{}, err
				}
				return Result{ID: id, Updated: true}, nil
			}
		}
	}

	id, err := insert(ctx, q, table, row)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: id}, nil
}

// Update sets the given columns of row id
func Update(ctx context.Context, q schema.Querier, table string, id int64, row Row) error {
	if len(row) == 0 {
		return nil
	}

	sets := make([]string, 0, len(row))
	args := make([]any, 0, len(row)+1)
	for _, f := range row {
		sets = append(sets, schema.Quote(f.Column)+" = ?")
		args = append(args, f.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		schema.Quote(table), strings.Join(sets, ", "), schema.Quote(schema.IdentityColumn))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update row %d of %s: %w", id, table, err)
	}
	return nil
}

func lookup(ctx context.Context, q schema.Querier, table, column string, value any) (int64, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s LIMIT 1",
		schema.Quote(schema.IdentityColumn), schema.Quote(table), schema.Quote(column), schema.Quote(schema.IdentityColumn))

	var id int64
	err := q.QueryRowContext(ctx, query, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s in %s: %w", column, table, err)
	}
	return id, true, nil
}

func insert(ctx context.Context, q schema.Querier, table string, row Row) (int64, error) {
	cols := make([]string, 0, len(row))
	marks := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, f := range row {
		cols = append(cols, schema.Quote(f.Column))
		marks = append(marks, "?")
		args = append(args, f.Value)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.Quote(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read row id of %s: %w", table, err)
	}
	return id, nil
}
