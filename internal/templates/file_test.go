package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `name: daily
description: daily meter reading
unique_key: date
columns:
  - name: date
    kind: formula
    value: now
  - name: kwh
    kind: source
    source_id: 3
  - name: delta
    kind: formula
    value: "db_eval:get_diff('kwh', 1)"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	tpl, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "daily", tpl.Name)
	assert.Equal(t, "date", tpl.UniqueKey)
	require.Len(t, tpl.Columns, 3)
	assert.Equal(t, KindSource, tpl.Columns[1].Kind)
	assert.Equal(t, int64(3), tpl.Columns[1].SourceID)
	assert.Equal(t, "db_eval:get_diff('kwh', 1)", tpl.Columns[2].Value)
	assert.NoError(t, tpl.Validate())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_MonitorAndUnknownFields(t *testing.T) {
	tpl, err := Parse([]byte(`name: press_log
columns:
  - name: press
    kind: device_monitor
    monitor:
      source_id: 2
      device_id: D1
      on_value: "255"
      off_value: "0"
`))
	require.NoError(t, err)
	col, ok := tpl.MonitorColumn()
	require.True(t, ok)
	assert.Equal(t, "D1", col.Monitor.DeviceID)
	assert.Equal(t, "255", col.Monitor.OnValue)

	_, err = Parse([]byte("name: x\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestMarshal_RoundTripsDefinition(t *testing.T) {
	tpl, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	tpl.ID = 7
	tpl.LastRunAt = "2026-10-15 08:00:00"

	out, err := Marshal(tpl)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "last_run_at")

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, tpl.Columns, again.Columns)
	assert.Equal(t, tpl.UniqueKey, again.UniqueKey)
}
