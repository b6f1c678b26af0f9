package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Manager handles database operations
type Manager struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewManager creates a new database manager
func NewManager() *Manager {
	return &Manager{logger: slog.Default()}
}

// WithLogger sets the logger used for migration output
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// Open opens the database connection
func (m *Manager) Open(ctx context.Context, path string) error {
	// Immediate transactions take the write lock up front, so the scheduler and
	// interactive edits queue on busy_timeout instead of failing lock upgrades.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	m.db = db
	m.path = path

	// Test connection
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := m.migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// GetDB returns the underlying connection pool
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Path returns the database file path
func (m *Manager) Path() string {
	return m.path
}

// Migrations returns a migration manager with the core schema registered
func (m *Manager) Migrations() *MigrationManager {
	mm := NewMigrationManager(m.db).WithLogger(m.logger)
	mm.RegisterCoreSchemas()
	return mm
}

// WithTx executes a function within a transaction
func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// migrate applies pending metadata migrations
func (m *Manager) migrate(ctx context.Context) error {
	return m.Migrations().ApplyAll(ctx)
}
