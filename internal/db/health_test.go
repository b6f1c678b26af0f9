package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksByName(status *HealthStatus) map[string]HealthCheck {
	out := make(map[string]HealthCheck, len(status.Checks))
	for _, c := range status.Checks {
		out[c.Name] = c
	}
	return out
}

func TestHealthManager_CheckHealth(t *testing.T) {
	manager := setupTestManager(t)

	status := NewHealthManager(manager).CheckHealth(context.Background())

	assert.Equal(t, CheckOK, status.Status)
	assert.NotZero(t, status.CheckedAt)
	assert.Equal(t, manager.Path(), status.DatabasePath)
	assert.Greater(t, status.DatabaseSize, int64(0))

	checks := checksByName(status)
	for _, name := range []string{"Connectivity", "Integrity", "Journal mode", "Migrations", "Source references"} {
		c, ok := checks[name]
		require.True(t, ok, "missing check %s", name)
		assert.Equal(t, CheckOK, c.Status, "%s: %s", name, c.Message)
		assert.NotEmpty(t, c.Message)
	}
}

func TestHealthManager_OrphanedSourceReferences(t *testing.T) {
	manager := setupTestManager(t)
	ctx := context.Background()

	_, err := manager.GetDB().ExecContext(ctx, `INSERT INTO data_sources (endpoint, label) VALUES ('http://a.local', 'a')`)
	require.NoError(t, err)
	_, err = manager.GetDB().ExecContext(ctx, `INSERT INTO templates (name, columns_json) VALUES
		('meter', '[{"name":"kwh","kind":"source","source_id":1},{"name":"site","kind":"static","value":"n"}]'),
		('broken', '[{"name":"v","kind":"source","source_id":9}]'),
		('pump', '[{"name":"state","kind":"device_monitor","monitor":{"source_id":4,"device_id":"D1","on_value":"1","off_value":"0"}}]')`)
	require.NoError(t, err)

	status := NewHealthManager(manager).CheckHealth(ctx)

	assert.Equal(t, CheckWarning, status.Status)
	refs := checksByName(status)["Source references"]
	assert.Equal(t, CheckWarning, refs.Status)
	assert.Contains(t, refs.Message, "broken.v -> #9")
	assert.Contains(t, refs.Message, "pump.state -> #4")
	assert.NotContains(t, refs.Message, "meter")
}

func TestHealthManager_ClosedDatabase(t *testing.T) {
	manager := setupTestManager(t)
	require.NoError(t, manager.Close())

	status := NewHealthManager(manager).CheckHealth(context.Background())
	assert.Equal(t, CheckError, status.Status)
	assert.Len(t, status.Checks, 1)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, CheckWarning, worse(CheckOK, CheckWarning))
	assert.Equal(t, CheckError, worse(CheckWarning, CheckError))
	assert.Equal(t, CheckError, worse(CheckError, CheckOK))
}

func TestColorizeStatus(t *testing.T) {
	assert.Contains(t, colorizeStatus(CheckOK), "OK")
	assert.Contains(t, colorizeStatus(CheckWarning), "WARNING")
	assert.Contains(t, colorizeStatus(CheckError), "ERROR")
	assert.Equal(t, "other", colorizeStatus("other"))
}
