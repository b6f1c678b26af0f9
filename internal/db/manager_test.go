package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_OpenAndClose(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	manager := NewManager()
	ctx := context.Background()

	err := manager.Open(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, manager.Path())

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	err = manager.Close()
	assert.NoError(t, err)
}

func TestManager_OpenInvalidPath(t *testing.T) {
	manager := NewManager()
	ctx := context.Background()

	err := manager.Open(ctx, "/invalid/path/test.db")
	assert.Error(t, err)
}

func TestManager_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first := NewManager()
	require.NoError(t, first.Open(ctx, dbPath))
	require.NoError(t, first.Close())

	second := NewManager()
	require.NoError(t, second.Open(ctx, dbPath))
	defer second.Close()

	var count int
	require.NoError(t, second.GetDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestManager_WithTx(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	manager := NewManager()
	ctx := context.Background()

	require.NoError(t, manager.Open(ctx, dbPath))
	defer func() {
		assert.NoError(t, manager.Close())
	}()

	err := manager.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO data_sources (endpoint, label) VALUES (?, ?)", "http://a.local/1", "one")
		return err
	})
	assert.NoError(t, err)

	err = manager.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO data_sources (endpoint, label) VALUES (?, ?)", "http://a.local/2", "two")
		if err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	var count int
	require.NoError(t, manager.GetDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM data_sources").Scan(&count))
	assert.Equal(t, 1, count, "second insert should have been rolled back")
}

func TestManager_Migration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	manager := NewManager()
	ctx := context.Background()

	require.NoError(t, manager.Open(ctx, dbPath))
	defer func() {
		assert.NoError(t, manager.Close())
	}()

	tables := []string{"data_sources", "templates", "schema_migrations"}

	for _, table := range tables {
		var count int
		err := manager.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		assert.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}
