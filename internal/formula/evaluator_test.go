package formula

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/schema"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	e, err := NewEvaluator()
	require.NoError(t, err)
	return e
}

// meterTable creates a "meter" table and inserts values oldest first
func meterTable(t *testing.T, values ...any) *db.Manager {
	t.Helper()

	manager := db.NewManager()
	ctx := context.Background()
	require.NoError(t, manager.Open(ctx, filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = manager.Close() })

	_, err := schema.NewSynchronizer(nil).Sync(ctx, manager.GetDB(), schema.TextSchema("meter", []string{"kwh", "note"}))
	require.NoError(t, err)

	for _, v := range values {
		_, err := manager.GetDB().ExecContext(ctx, `INSERT INTO "meter" ("kwh") VALUES (?)`, v)
		require.NoError(t, err)
	}

	return manager
}

func TestEvaluator_Inline(t *testing.T) {
	e := newEvaluator(t)

	tests := []struct {
		name      string
		expr      string
		want      string
		wantError bool
	}{
		{name: "integer arithmetic", expr: "1 + 2 * 3", want: "7"},
		{name: "float arithmetic", expr: "7.0 / 2.0", want: "3.5"},
		{name: "integer division is true division", expr: "10 / 4", want: "2.5"},
		{name: "whole quotient", expr: "10 / 5", want: "2"},
		{name: "int times double", expr: "100 * 0.9", want: "90"},
		{name: "int plus double", expr: "1 + 0.5", want: "1.5"},
		{name: "double minus int", expr: "2.5 - 1", want: "1.5"},
		{name: "mixed product", expr: "2 * 1.5", want: "3"},
		{name: "division inside expression", expr: "(3 + 7) / 4 * 2", want: "5"},
		{name: "mixed comparison", expr: "1 < 1.5", want: "true"},
		{name: "string concatenation", expr: "'kw' + 'h'", want: "kwh"},
		{name: "math extension", expr: "math.greatest(3, 9, 4)", want: "9"},
		{name: "boolean", expr: "2 > 1", want: "true"},
		{name: "division by zero degrades", expr: "1 / 0", wantError: true},
		{name: "float division by zero degrades", expr: "1.5 / 0", wantError: true},
		{name: "syntax error degrades", expr: "1 +", wantError: true},
		{name: "no engine internals", expr: "db.path", wantError: true},
		{name: "deferred function unavailable", expr: "get_diff('kwh', 1)", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Inline(tt.expr)
			if tt.wantError {
				assert.Contains(t, got, "formula error:")
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_GetDiff(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		values []any
		expr   string
		want   string
	}{
		{name: "no rows", expr: "get_diff('kwh', 1)", want: NeutralDiff},
		{name: "fewer than offset plus one rows", values: []any{"10"}, expr: "get_diff('kwh', 1)", want: NeutralDiff},
		{name: "latest minus previous", values: []any{"7", "10"}, expr: "get_diff('kwh', 1)", want: "+3.00"},
		{name: "negative difference", values: []any{"10", "7.5"}, expr: "get_diff('kwh', 1)", want: "-2.50"},
		{name: "offset two", values: []any{"1", "100", "4"}, expr: "get_diff('kwh', 2)", want: "+3.00"},
		{name: "whitespace around numbers", values: []any{" 1\n", "2\n"}, expr: "get_diff('kwh', 1)", want: "+1.00"},
		{name: "non-numeric latest", values: []any{"7", "n/a"}, expr: "get_diff('kwh', 1)", want: MsgNonNumericData},
		{name: "null previous", values: []any{nil, "7"}, expr: "get_diff('kwh', 1)", want: MsgNonNumericData},
		{name: "offset zero", values: []any{"7", "10"}, expr: "get_diff('kwh', 0)", want: MsgInvalidOffset},
		{name: "offset must be an integer", values: []any{"7", "10"}, expr: "get_diff('kwh', 'x')", want: MsgInvalidOffset},
		{name: "invalid column name", values: []any{"7", "10"}, expr: "get_diff('kwh; DROP', 1)", want: MsgInvalidColumn},
		{name: "wrong argument count", values: []any{"7", "10"}, expr: "get_diff('kwh')", want: MsgGetDiffArgs},
		{name: "unknown function", values: []any{"7", "10"}, expr: "get_sum('kwh', 1)", want: "unknown function: get_sum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := meterTable(t, tt.values...)
			assert.Equal(t, tt.want, e.Deferred(ctx, manager.GetDB(), "meter", tt.expr))
		})
	}
}

func TestEvaluator_DeferredDegradesOnStorageErrors(t *testing.T) {
	e := newEvaluator(t)
	manager := meterTable(t, "1", "2")

	got := e.Deferred(context.Background(), manager.GetDB(), "meter", "get_diff('missing', 1)")
	assert.Contains(t, got, "formula execution error:")
}

func TestEvaluator_DeferredSyntaxError(t *testing.T) {
	e := newEvaluator(t)
	manager := meterTable(t)

	got := e.Deferred(context.Background(), manager.GetDB(), "meter", "get_diff('kwh', 1")
	assert.Contains(t, got, "formula syntax error:")
}
