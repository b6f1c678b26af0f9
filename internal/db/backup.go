package db

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// BackupManager snapshots the store, including every backing table
type BackupManager struct {
	db *Manager
}

// NewBackupManager creates a new backup manager
func NewBackupManager(manager *Manager) *BackupManager {
	return &BackupManager{db: manager}
}

// BackupOptions contains options for database backup
type BackupOptions struct {
	OutputPath string
	Compress   bool
	Verify     bool
}

// BackupInfo describes a written backup
type BackupInfo struct {
	Path         string
	Size         int64
	ModTime      time.Time
	IsCompressed bool
}

// String returns a string representation of backup info
func (bi *BackupInfo) String() string {
	compressionStatus := "raw"
	if bi.IsCompressed {
		compressionStatus = "compressed"
	}

	return fmt.Sprintf("%s (%.2f MB, %s, %s)",
		bi.Path,
		float64(bi.Size)/1024/1024,
		compressionStatus,
		bi.ModTime.Format("2006-01-02 15:04:05"),
	)
}

// Backup writes a consistent snapshot of the open database.
// VACUUM INTO reads through SQLite, so pages still in the WAL are included.
func (b *BackupManager) Backup(ctx context.Context, opts BackupOptions) (*BackupInfo, error) {
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("backup output path is required")
	}

	if _, err := os.Stat(opts.OutputPath); err == nil {
		return nil, fmt.Errorf("backup file already exists: %s", opts.OutputPath)
	}

	outputDir := filepath.Dir(opts.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	snapshot := opts.OutputPath
	if opts.Compress {
		snapshot = opts.OutputPath + ".tmp"
		defer os.Remove(snapshot)
	}

	if _, err := b.db.GetDB().ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	if opts.Verify {
		if err := verifyDatabase(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("backup verification failed: %w", err)
		}
	}

	if opts.Compress {
		if err := compressFile(snapshot, opts.OutputPath); err != nil {
			return nil, fmt.Errorf("compressed backup failed: %w", err)
		}
	}

	stat, err := os.Stat(opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup file: %w", err)
	}

	return &BackupInfo{
		Path:         opts.OutputPath,
		Size:         stat.Size(),
		ModTime:      stat.ModTime(),
		IsCompressed: opts.Compress,
	}, nil
}

func compressFile(srcPath, dstPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	gzWriter.Name = filepath.Base(srcPath)
	gzWriter.ModTime = time.Now()

	if _, err := io.Copy(gzWriter, srcFile); err != nil {
		return fmt.Errorf("failed to compress database: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}

	return dstFile.Sync()
}

// verifyDatabase opens a snapshot and runs an integrity check
func verifyDatabase(ctx context.Context, dbPath string) error {
	tempManager := NewManager()
	if err := tempManager.Open(ctx, dbPath); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer tempManager.Close()

	var result string
	if err := tempManager.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check database integrity: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("database integrity check failed: %s", result)
	}

	return nil
}
