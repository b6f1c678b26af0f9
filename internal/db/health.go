package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Health check states
const (
	CheckOK      = "OK"
	CheckWarning = "WARNING"
	CheckError   = "ERROR"
)

// HealthManager inspects the store
type HealthManager struct {
	db *Manager
}

// NewHealthManager creates a new health manager
func NewHealthManager(manager *Manager) *HealthManager {
	return &HealthManager{db: manager}
}

// HealthStatus represents the overall health of the store
type HealthStatus struct {
	Status       string        `json:"status"`
	CheckedAt    time.Time     `json:"checked_at"`
	DatabasePath string        `json:"database_path"`
	DatabaseSize int64         `json:"database_size_bytes"`
	Checks       []HealthCheck `json:"checks"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CheckHealth runs every check. A failed connectivity check skips the rest.
func (h *HealthManager) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:       CheckOK,
		CheckedAt:    time.Now(),
		DatabasePath: h.db.Path(),
	}

	if stat, err := os.Stat(h.db.Path()); err == nil {
		status.DatabaseSize = stat.Size()
	}

	checks := []func(context.Context) HealthCheck{
		h.checkConnectivity,
		h.checkIntegrity,
		h.checkWALMode,
		h.checkMigrations,
		h.checkSourceReferences,
	}

	for i, check := range checks {
		c := check(ctx)
		status.Checks = append(status.Checks, c)
		status.Status = worse(status.Status, c.Status)
		if i == 0 && c.Status == CheckError {
			break
		}
	}

	return status
}

func worse(a, b string) string {
	rank := map[string]int{CheckOK: 0, CheckWarning: 1, CheckError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func (h *HealthManager) checkConnectivity(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "Connectivity", Status: CheckOK, Message: "Database connection successful"}
	if err := h.db.db.PingContext(ctx); err != nil {
		check.Status = CheckError
		check.Message = fmt.Sprintf("Failed to connect to database: %v", err)
	}
	return check
}

func (h *HealthManager) checkIntegrity(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "Integrity"}

	var result string
	err := h.db.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	switch {
	case err != nil:
		check.Status = CheckError
		check.Message = fmt.Sprintf("Integrity check failed: %v", err)
	case result == "ok":
		check.Status = CheckOK
		check.Message = "Database integrity verified"
	default:
		check.Status = CheckError
		check.Message = fmt.Sprintf("Integrity issues found: %s", result)
	}
	return check
}

func (h *HealthManager) checkWALMode(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "Journal mode"}

	var mode string
	if err := h.db.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		check.Status = CheckWarning
		check.Message = fmt.Sprintf("Could not read journal mode: %v", err)
		return check
	}

	if strings.EqualFold(mode, "wal") {
		check.Status = CheckOK
		check.Message = "WAL enabled"
	} else {
		check.Status = CheckWarning
		check.Message = fmt.Sprintf("Journal mode is %s; scheduler writes will block readers", mode)
	}
	return check
}

func (h *HealthManager) checkMigrations(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "Migrations"}

	pending, err := h.db.Migrations().GetPendingMigrations(ctx)
	switch {
	case err != nil:
		check.Status = CheckError
		check.Message = fmt.Sprintf("Could not read migrations: %v", err)
	case len(pending) > 0:
		check.Status = CheckWarning
		check.Message = fmt.Sprintf("%d migrations pending", len(pending))
	default:
		check.Status = CheckOK
		check.Message = "All migrations applied"
	}
	return check
}

// orphanedReferences lists template columns whose data source no longer
// exists. Source columns carry source_id; monitor columns carry monitor.source_id.
const orphanedReferences = `
SELECT t.name, c.value ->> '$.name',
       COALESCE(c.value ->> '$.source_id', c.value ->> '$.monitor.source_id') AS sid
FROM templates t, json_each(t.columns_json) c
WHERE sid IS NOT NULL AND sid NOT IN (SELECT id FROM data_sources)
ORDER BY t.name`

func (h *HealthManager) checkSourceReferences(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "Source references"}

	rows, err := h.db.db.QueryContext(ctx, orphanedReferences)
	if err != nil {
		check.Status = CheckWarning
		check.Message = fmt.Sprintf("Could not check source references: %v", err)
		return check
	}
	defer rows.Close()

	var broken []string
	for rows.Next() {
		var template, column string
		var sourceID int64
		if err := rows.Scan(&template, &column, &sourceID); err != nil {
			check.Status = CheckWarning
			check.Message = fmt.Sprintf("Could not read source reference: %v", err)
			return check
		}
		broken = append(broken, fmt.Sprintf("%s.%s -> #%d", template, column, sourceID))
	}
	if err := rows.Err(); err != nil {
		check.Status = CheckWarning
		check.Message = err.Error()
		return check
	}

	if len(broken) > 0 {
		check.Status = CheckWarning
		check.Message = fmt.Sprintf("Columns reference deleted sources and will fail: %s", strings.Join(broken, ", "))
		return check
	}

	check.Status = CheckOK
	check.Message = "Every source reference resolves"
	return check
}

// PrintHealthStatus writes a colored report to stdout
func PrintHealthStatus(status *HealthStatus) {
	color.Yellow("=== Database Health Report ===")
	fmt.Printf("Status: %s\n", colorizeStatus(status.Status))
	fmt.Printf("Database: %s\n", status.DatabasePath)
	fmt.Printf("Size: %.2f MB\n", float64(status.DatabaseSize)/1024/1024)
	fmt.Println()

	color.Yellow("=== Health Checks ===")
	for _, check := range status.Checks {
		fmt.Printf("%-20s %s %s\n", check.Name+":", colorizeStatus(check.Status), check.Message)
	}
}

func colorizeStatus(status string) string {
	switch status {
	case CheckOK:
		return color.GreenString("✓ %s", status)
	case CheckWarning:
		return color.YellowString("⚠ %s", status)
	case CheckError:
		return color.RedString("✗ %s", status)
	default:
		return status
	}
}
