package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/schema"
)

// Repository persists template definitions and keeps their backing tables
// in sync with them
type Repository struct {
	db   *db.Manager
	sync *schema.Synchronizer
}

// NewRepository creates a new template repository
func NewRepository(manager *db.Manager, sync *schema.Synchronizer) *Repository {
	return &Repository{db: manager, sync: sync}
}

// Create stores a new template and creates its backing table in one transaction
func (r *Repository) Create(ctx context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}

	columnsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return Template{}, fmt.Errorf("failed to encode columns: %w", err)
	}

	err = r.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO templates (name, description, columns_json, unique_key) VALUES (?, ?, ?, ?)`,
			t.Name, t.Description, string(columnsJSON), nullIfEmpty(t.UniqueKey))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", apperrors.ErrDuplicateTemplate, t.Name)
			}
			return fmt.Errorf("failed to insert template %s: %w", t.Name, err)
		}

		if t.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read template id: %w", err)
		}

		_, err = r.sync.Sync(ctx, tx, t.TableSchema())
		return err
	})
	if err != nil {
		return Template{}, err
	}

	return t, nil
}

// Update replaces an existing template's definition and extends its backing
// table. The name cannot change.
func (r *Repository) Update(ctx context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}

	columnsJSON, err := json.Marshal(t.Columns)
	if err != nil {
		return Template{}, fmt.Errorf("failed to encode columns: %w", err)
	}

	err = r.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := r.get(ctx, tx, "id = ?", t.ID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(current.Name, t.Name) {
			return fmt.Errorf("%w: template %s cannot be renamed to %s", apperrors.ErrInvalidTemplate, current.Name, t.Name)
		}
		t.Name = current.Name
		if _, hadMonitor := current.MonitorColumn(); hadMonitor {
			if _, hasMonitor := t.MonitorColumn(); !hasMonitor {
				return fmt.Errorf("%w: template %s is a device monitor and must keep its monitor column", apperrors.ErrInvalidTemplate, t.Name)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE templates SET description = ?, columns_json = ?, unique_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			t.Description, string(columnsJSON), nullIfEmpty(t.UniqueKey), t.ID)
		if err != nil {
			return fmt.Errorf("failed to update template %s: %w", t.Name, err)
		}
		t.LastRunAt = current.LastRunAt

		_, err = r.sync.Sync(ctx, tx, t.TableSchema())
		return err
	})
	if err != nil {
		return Template{}, err
	}

	return t, nil
}

// Save creates the template when it has no ID and updates it otherwise
func (r *Repository) Save(ctx context.Context, t Template) (Template, error) {
	if t.ID == 0 {
		return r.Create(ctx, t)
	}
	return r.Update(ctx, t)
}

// Delete removes the template and drops its backing table
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := r.get(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete template %s: %w", t.Name, err)
		}

		return r.sync.Drop(ctx, tx, t.Name)
	})
}

// Get returns one template by id
func (r *Repository) Get(ctx context.Context, id int64) (Template, error) {
	return r.get(ctx, r.db.GetDB(), "id = ?", id)
}

// GetByName returns one template by name
func (r *Repository) GetByName(ctx context.Context, name string) (Template, error) {
	return r.get(ctx, r.db.GetDB(), "name = ?", name)
}

// List returns all templates ordered by id
func (r *Repository) List(ctx context.Context) ([]Template, error) {
	rows, err := r.db.GetDB().QueryContext(ctx, selectTemplate+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var list []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}

	return list, rows.Err()
}

// MarkRun records the completion time of a run. It takes the run's
// transaction so the timestamp commits with the row changes.
func (r *Repository) MarkRun(ctx context.Context, q schema.Querier, id int64, at string) error {
	if _, err := q.ExecContext(ctx, "UPDATE templates SET last_run_at = ? WHERE id = ?", at, id); err != nil {
		return fmt.Errorf("failed to record last run of template %d: %w", id, err)
	}
	return nil
}

const selectTemplate = `SELECT id, name, description, columns_json, unique_key, last_run_at FROM templates`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) get(ctx context.Context, q schema.Querier, where string, arg any) (Template, error) {
	t, err := scanTemplate(q.QueryRowContext(ctx, selectTemplate+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("%w: template %v", apperrors.ErrNotFound, arg)
	}
	return t, err
}

func scanTemplate(row rowScanner) (Template, error) {
	var (
		t           Template
		columnsJSON string
		uniqueKey   sql.NullString
		lastRunAt   sql.NullString
	)

	if err := row.Scan(&t.ID, &t.Name, &t.Description, &columnsJSON, &uniqueKey, &lastRunAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Template{}, err
		}
		return Template{}, fmt.Errorf("failed to scan template: %w", err)
	}

	if err := json.Unmarshal([]byte(columnsJSON), &t.Columns); err != nil {
		return Template{}, fmt.Errorf("failed to decode columns of template %s: %w", t.Name, err)
	}
	t.UniqueKey = uniqueKey.String
	t.LastRunAt = lastRunAt.String

	return t, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
