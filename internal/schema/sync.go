package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/user/collector/internal/apperrors"
)

// Synchronizer keeps a backing table's columns a superset of its template's.
// It only ever creates tables and adds columns.
type Synchronizer struct {
	logger *slog.Logger
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{logger: logger}
}

// Sync creates the table or adds its missing columns. It returns the names
// of the columns it added. Run it inside the transaction that saves the
// template so both commit or roll back together.
func (s *Synchronizer) Sync(ctx context.Context, q Querier, ts TableSchema) ([]string, error) {
	if err := ts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaSync, err)
	}

	exists, err := TableExists(ctx, q, ts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaSync, err)
	}

	if !exists {
		if _, err := q.ExecContext(ctx, createTableSQL(ts)); err != nil {
			return nil, fmt.Errorf("%w: failed to create table %s: %w", apperrors.ErrSchemaSync, ts.Name, err)
		}
		s.logger.Info("created backing table", "table", ts.Name, "columns", len(ts.Columns))
		return ts.ColumnNames(), nil
	}

	existing, err := ExistingColumns(ctx, q, ts.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaSync, err)
	}

	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[strings.ToLower(c)] = true
	}

	var added []string
	for _, c := range ts.Columns {
		if present[strings.ToLower(c.Name)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", Quote(ts.Name), Quote(c.Name), c.Type)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: failed to add column %s.%s: %w", apperrors.ErrSchemaSync, ts.Name, c.Name, err)
		}
		added = append(added, c.Name)
	}

	if len(added) > 0 {
		s.logger.Info("extended backing table", "table", ts.Name, "added", added)
	}
	return added, nil
}

// Drop removes a backing table
func (s *Synchronizer) Drop(ctx context.Context, q Querier, name string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", Quote(name))); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	s.logger.Info("dropped backing table", "table", name)
	return nil
}

func createTableSQL(ts TableSchema) string {
	defs := make([]string, 0, len(ts.Columns)+1)
	defs = append(defs, Quote(IdentityColumn)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range ts.Columns {
		defs = append(defs, Quote(c.Name)+" "+c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", Quote(ts.Name), strings.Join(defs, ", "))
}
