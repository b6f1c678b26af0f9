package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Migration represents a metadata schema migration
type Migration struct {
	ID          string
	Description string
	UpSQL       string
	Applied     bool
	AppliedAt   *time.Time
}

// MigrationManager applies versioned migrations to the metadata tables.
// Backing tables are never migrated here; the schema synchronizer owns them.
type MigrationManager struct {
	db         *sql.DB
	migrations map[string]*Migration
	logger     *slog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{
		db:         db,
		migrations: make(map[string]*Migration),
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger
func (m *MigrationManager) WithLogger(logger *slog.Logger) *MigrationManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// RegisterMigration registers a migration
func (m *MigrationManager) RegisterMigration(id, description, upSQL string) {
	m.migrations[id] = &Migration{
		ID:          id,
		Description: description,
		UpSQL:       upSQL,
	}
}

// InitMigrationTable creates the schema_migrations table if it doesn't exist
func (m *MigrationManager) InitMigrationTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id VARCHAR(255) PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			checksum VARCHAR(64) NOT NULL
		)`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns all applied migrations
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) (map[string]*Migration, error) {
	if err := m.InitMigrationTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, `SELECT id, description, applied_at FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]*Migration)
	for rows.Next() {
		var id, description string
		var appliedAt time.Time

		if err := rows.Scan(&id, &description, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}

		applied[id] = &Migration{
			ID:          id,
			Description: description,
			Applied:     true,
			AppliedAt:   &appliedAt,
		}
	}

	return applied, rows.Err()
}

// GetPendingMigrations returns migrations that haven't been applied, ordered by ID
func (m *MigrationManager) GetPendingMigrations(ctx context.Context) ([]*Migration, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*Migration
	for id, migration := range m.migrations {
		if _, isApplied := applied[id]; !isApplied {
			pending = append(pending, migration)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ID < pending[j].ID
	})

	return pending, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration *Migration) error {
	if strings.TrimSpace(migration.UpSQL) == "" {
		return fmt.Errorf("migration %s has no up SQL", migration.ID)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.ID, err)
	}

	insertSQL := `INSERT INTO schema_migrations (id, description, checksum) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertSQL, migration.ID, migration.Description, checksum(migration.UpSQL)); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", migration.ID, err)
	}

	m.logger.Debug("applied migration", "id", migration.ID, "description", migration.Description)
	return nil
}

// ApplyAll applies all pending migrations
func (m *MigrationManager) ApplyAll(ctx context.Context) error {
	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return err
		}
	}

	if len(pending) > 0 {
		m.logger.Info("metadata schema migrated", "applied", len(pending))
	}
	return nil
}

// GetMigrationStatus returns the status of all registered migrations
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) ([]*Migration, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]*Migration, 0, len(m.migrations))
	for _, migration := range m.migrations {
		entry := *migration
		if appliedMigration, isApplied := applied[migration.ID]; isApplied {
			entry.Applied = true
			entry.AppliedAt = appliedMigration.AppliedAt
		}
		status = append(status, &entry)
	}

	sort.Slice(status, func(i, j int) bool {
		return status[i].ID < status[j].ID
	})

	return status, nil
}

func checksum(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// RegisterCoreSchemas registers the metadata table migrations
func (m *MigrationManager) RegisterCoreSchemas() {
	m.RegisterMigration("001_data_sources", "Create data source registry", createDataSourcesTable)
	m.RegisterMigration("002_templates", "Create template store", createTemplatesTable)
	m.RegisterMigration("003_indexes", "Add metadata indexes", createIndexes)
}
