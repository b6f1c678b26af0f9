package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/validate"
)

// DataSource is a named endpoint that columns can poll
type DataSource struct {
	ID       int64  `json:"id" yaml:"id"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Label    string `json:"label" yaml:"label"`
}

// Registry stores data sources. Deleting a source does not touch the
// templates that reference it; they fail at their next run instead.
type Registry struct {
	db *db.Manager
}

// NewRegistry creates a new data source registry
func NewRegistry(manager *db.Manager) *Registry {
	return &Registry{db: manager}
}

// Add registers a new endpoint
func (r *Registry) Add(ctx context.Context, endpoint, label string) (DataSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if err := validate.ValidateEndpoint(endpoint); err != nil {
		return DataSource{}, err
	}

	res, err := r.db.GetDB().ExecContext(ctx,
		"INSERT INTO data_sources (endpoint, label) VALUES (?, ?)", endpoint, label)
	if err != nil {
		if isUniqueViolation(err) {
			return DataSource{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateSource, endpoint)
		}
		return DataSource{}, fmt.Errorf("failed to add data source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return DataSource{}, fmt.Errorf("failed to read data source id: %w", err)
	}

	return DataSource{ID: id, Endpoint: endpoint, Label: label}, nil
}

// Update replaces the endpoint and label of an existing source
func (r *Registry) Update(ctx context.Context, id int64, endpoint, label string) (DataSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if err := validate.ValidateEndpoint(endpoint); err != nil {
		return DataSource{}, err
	}

	res, err := r.db.GetDB().ExecContext(ctx,
		"UPDATE data_sources SET endpoint = ?, label = ? WHERE id = ?", endpoint, label, id)
	if err != nil {
		if isUniqueViolation(err) {
			return DataSource{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateSource, endpoint)
		}
		return DataSource{}, fmt.Errorf("failed to update data source %d: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return DataSource{}, fmt.Errorf("%w: data source %d", apperrors.ErrNotFound, id)
	}

	return DataSource{ID: id, Endpoint: endpoint, Label: label}, nil
}

// Delete removes a source. Missing ids are not an error.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.GetDB().ExecContext(ctx, "DELETE FROM data_sources WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete data source %d: %w", id, err)
	}
	return nil
}

// Get looks up one source
func (r *Registry) Get(ctx context.Context, id int64) (DataSource, error) {
	var ds DataSource
	err := r.db.GetDB().QueryRowContext(ctx,
		"SELECT id, endpoint, label FROM data_sources WHERE id = ?", id).
		Scan(&ds.ID, &ds.Endpoint, &ds.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return DataSource{}, fmt.Errorf("%w: data source %d", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return DataSource{}, fmt.Errorf("failed to get data source %d: %w", id, err)
	}
	return ds, nil
}

// List returns all sources ordered by label
func (r *Registry) List(ctx context.Context) ([]DataSource, error) {
	rows, err := r.db.GetDB().QueryContext(ctx,
		"SELECT id, endpoint, label FROM data_sources ORDER BY label, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var list []DataSource
	for rows.Next() {
		var ds DataSource
		if err := rows.Scan(&ds.ID, &ds.Endpoint, &ds.Label); err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		list = append(list, ds)
	}

	return list, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
