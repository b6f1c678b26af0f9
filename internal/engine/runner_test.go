package engine

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/fetch"
	"github.com/user/collector/internal/formula"
	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/sources"
	"github.com/user/collector/internal/templates"
)

// endpoint serves queued bodies in order, repeating the last one
type endpoint struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (e *endpoint) set(bodies ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bodies = bodies
	e.status = http.StatusOK
}

func (e *endpoint) fail() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = http.StatusInternalServerError
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != http.StatusOK {
		http.Error(w, "unavailable", e.status)
		return
	}
	body := e.bodies[0]
	if len(e.bodies) > 1 {
		e.bodies = e.bodies[1:]
	}
	_, _ = w.Write([]byte(body))
}

type harness struct {
	manager  *db.Manager
	repo     *templates.Repository
	registry *sources.Registry
	runner   *Runner
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	manager := db.NewManager()
	require.NoError(t, manager.Open(context.Background(), filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = manager.Close() })

	evaluator, err := formula.NewEvaluator()
	require.NoError(t, err)

	h := &harness{
		manager:  manager,
		repo:     templates.NewRepository(manager, schema.NewSynchronizer(nil)),
		registry: sources.NewRegistry(manager),
		now:      time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	h.runner = NewRunner(manager, h.repo, h.registry, fetch.NewClient(fetch.Options{}, nil), evaluator, Options{
		FetchTimeout:   time.Second,
		MonitorTimeout: time.Second,
		Clock: func() time.Time {
			h.now = h.now.Add(time.Minute)
			return h.now
		},
	})

	return h
}

func (h *harness) source(t *testing.T, e *endpoint, path string) int64 {
	t.Helper()

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	src, err := h.registry.Add(context.Background(), server.URL+path, path)
	require.NoError(t, err)
	return src.ID
}

func (h *harness) template(t *testing.T, tmpl templates.Template) templates.Template {
	t.Helper()

	saved, err := h.repo.Create(context.Background(), tmpl)
	require.NoError(t, err)
	return saved
}

func (h *harness) count(t *testing.T, table string) int {
	t.Helper()

	var n int
	require.NoError(t, h.manager.GetDB().QueryRow(`SELECT COUNT(*) FROM `+schema.Quote(table)).Scan(&n))
	return n
}

func TestRunner_StandardTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	meter := &endpoint{}
	meter.set("7", "10")
	srcID := h.source(t, meter, "/kwh")

	tmpl := h.template(t, templates.Template{
		Name: "meter",
		Columns: []templates.Column{
			{Name: "read_at", Kind: templates.KindFormula, Value: "now"},
			{Name: "kwh", Kind: templates.KindSource, SourceID: srcID},
			{Name: "site", Kind: templates.KindStatic, Value: "north"},
			{Name: "doubled", Kind: templates.KindFormula, Value: "eval:2 * 3"},
			{Name: "broken", Kind: templates.KindFormula, Value: "eval:1 / 0"},
			{Name: "label", Kind: templates.KindFormula, Value: "daily"},
			{Name: "delta", Kind: templates.KindFormula, Value: "db_eval:get_diff('kwh', 1)"},
		},
	})

	first := h.runner.Run(ctx, tmpl.ID)
	require.True(t, first.OK(), first.Message)
	assert.Equal(t, StatusOK, first.Status)
	assert.Equal(t, "meter", first.TemplateName)

	second := h.runner.Run(ctx, tmpl.ID)
	require.Equal(t, StatusOK, second.Status, second.Message)
	assert.NotEqual(t, first.RowID, second.RowID)

	rows, err := h.manager.GetDB().Query(`SELECT read_at, kwh, site, doubled, broken, label, delta FROM "meter" ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		r := make([]string, 7)
		require.NoError(t, rows.Scan(&r[0], &r[1], &r[2], &r[3], &r[4], &r[5], &r[6]))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)

	assert.Equal(t, "2026-03-01 08:01:00", got[0][0])
	assert.Equal(t, []string{"7", "north", "6"}, got[0][1:4])
	assert.Contains(t, got[0][4], "formula error:")
	assert.Equal(t, "daily", got[0][5])
	assert.Equal(t, formula.NeutralDiff, got[0][6])
	assert.Equal(t, "10", got[1][1])
	assert.Equal(t, "+3.00", got[1][6])

	saved, err := h.repo.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.LastRunAt)
}

func TestRunner_UniqueKeyUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reading := &endpoint{}
	reading.set("1", "2")
	srcID := h.source(t, reading, "/v")

	tmpl := h.template(t, templates.Template{
		Name:      "latest",
		UniqueKey: "code",
		Columns: []templates.Column{
			{Name: "code", Kind: templates.KindStatic, Value: "A"},
			{Name: "value", Kind: templates.KindSource, SourceID: srcID},
		},
	})

	first := h.runner.Run(ctx, tmpl.ID)
	second := h.runner.Run(ctx, tmpl.ID)
	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, first.RowID, second.RowID)
	assert.Contains(t, second.Message, "updated")

	assert.Equal(t, 1, h.count(t, "latest"))
	var value string
	require.NoError(t, h.manager.GetDB().QueryRow(`SELECT value FROM "latest"`).Scan(&value))
	assert.Equal(t, "2", value)
}

func TestRunner_SourceFailureWritesNoRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	down := &endpoint{}
	down.fail()
	srcID := h.source(t, down, "/down")

	tmpl := h.template(t, templates.Template{
		Name: "partial",
		Columns: []templates.Column{
			{Name: "site", Kind: templates.KindStatic, Value: "north"},
			{Name: "kwh", Kind: templates.KindSource, SourceID: srcID},
		},
	})

	out := h.runner.Run(ctx, tmpl.ID)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, apperrors.ErrSourceFetch)
	assert.Contains(t, out.Message, "partial")
	assert.Equal(t, 0, h.count(t, "partial"))

	saved, err := h.repo.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.LastRunAt)
}

func TestRunner_DeletedSourceFailsOnlyItsTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	e := &endpoint{}
	e.set("5")
	kept := h.source(t, e, "/kept")
	removed := h.source(t, e, "/removed")

	broken := h.template(t, templates.Template{
		Name:    "broken",
		Columns: []templates.Column{{Name: "v", Kind: templates.KindSource, SourceID: removed}},
	})
	healthy := h.template(t, templates.Template{
		Name:    "healthy",
		Columns: []templates.Column{{Name: "v", Kind: templates.KindSource, SourceID: kept}},
	})

	require.NoError(t, h.registry.Delete(ctx, removed))

	out := h.runner.Run(ctx, broken.ID)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, apperrors.ErrSourceFetch)
	assert.ErrorIs(t, out.Err, apperrors.ErrNotFound)

	assert.Equal(t, StatusOK, h.runner.Run(ctx, healthy.ID).Status)
	assert.Equal(t, 1, h.count(t, "healthy"))
}

func TestRunner_StorageErrorRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tmpl := h.template(t, templates.Template{
		Name:    "vanishing",
		Columns: []templates.Column{{Name: "v", Kind: templates.KindStatic, Value: "1"}},
	})
	_, err := h.manager.GetDB().Exec(`DROP TABLE "vanishing"`)
	require.NoError(t, err)

	out := h.runner.Run(ctx, tmpl.ID)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, apperrors.ErrStorage)

	saved, err := h.repo.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.LastRunAt)
}

func TestRunner_UnknownTemplate(t *testing.T) {
	h := newHarness(t)

	out := h.runner.Run(context.Background(), 404)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, apperrors.ErrNotFound)
}

func monitorTemplate(sourceID int64) templates.Template {
	return templates.Template{
		Name: "pump",
		Columns: []templates.Column{{
			Name: "pump_state",
			Kind: templates.KindDeviceMonitor,
			Monitor: &templates.MonitorSpec{
				SourceID: sourceID,
				DeviceID: "D1",
				OnValue:  "on",
				OffValue: "off",
			},
		}},
	}
}

func TestRunner_MonitorTemplate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state := &endpoint{}
	state.set("off\n", " on", "on", "off", "off")
	tmpl := h.template(t, monitorTemplate(h.source(t, state, "/state")))

	want := []Status{StatusNoChange, StatusOK, StatusNoChange, StatusOK, StatusNoChange}
	for i, status := range want {
		out := h.runner.Run(ctx, tmpl.ID)
		assert.Equal(t, status, out.Status, "poll %d: %s", i, out.Message)
	}

	assert.Equal(t, 1, h.count(t, "pump"))

	var start, end string
	var duration sql.NullInt64
	require.NoError(t, h.manager.GetDB().QueryRow(
		`SELECT start_time, end_time, duration_seconds FROM "pump"`).Scan(&start, &end, &duration))
	assert.Equal(t, "2026-03-01 08:02:00", start)
	assert.Equal(t, "2026-03-01 08:04:00", end)
	assert.Equal(t, int64(120), duration.Int64)
}

func TestRunner_MonitorFetchFailureIsSoft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	state := &endpoint{}
	state.fail()
	tmpl := h.template(t, monitorTemplate(h.source(t, state, "/state")))

	out := h.runner.Run(ctx, tmpl.ID)
	assert.Equal(t, StatusSoftFailure, out.Status)
	assert.True(t, out.OK())
	assert.ErrorIs(t, out.Err, apperrors.ErrSourceFetch)
	assert.Equal(t, 0, h.count(t, "pump"))

	saved, err := h.repo.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Empty(t, saved.LastRunAt)
}

func TestRunner_MonitorMissingSourceFails(t *testing.T) {
	h := newHarness(t)

	tmpl := h.template(t, monitorTemplate(99))

	out := h.runner.Run(context.Background(), tmpl.ID)
	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, apperrors.ErrSourceFetch)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "meter [ok] done", Outcome{TemplateName: "meter", Status: StatusOK, Message: "done"}.String())
	assert.Equal(t, "#7 [failed] boom", Outcome{TemplateID: 7, Status: StatusFailed, Message: "boom"}.String())
}
