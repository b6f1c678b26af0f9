// Package engine runs templates: it resolves each column, writes the row,
// fills in deferred formulas and records the run, all in one transaction
// per template.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/fetch"
	"github.com/user/collector/internal/formula"
	"github.com/user/collector/internal/monitor"
	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/sources"
	"github.com/user/collector/internal/templates"
	"github.com/user/collector/internal/upsert"
)

// SourceLookup resolves data source ids
type SourceLookup interface {
	Get(ctx context.Context, id int64) (sources.DataSource, error)
}

// TemplateStore loads templates and records their runs
type TemplateStore interface {
	Get(ctx context.Context, id int64) (templates.Template, error)
	MarkRun(ctx context.Context, q schema.Querier, id int64, at string) error
}

// Options configures a Runner
type Options struct {
	FetchTimeout   time.Duration
	MonitorTimeout time.Duration
	// Clock defaults to time.Now
	Clock  func() time.Time
	Logger *slog.Logger
}

// Runner executes single templates
type Runner struct {
	db        *db.Manager
	templates TemplateStore
	sources   SourceLookup
	fetcher   fetch.Fetcher
	formulas  *formula.Evaluator
	tracker   *monitor.Tracker
	opts      Options
	logger    *slog.Logger
}

// NewRunner creates a new template runner
func NewRunner(manager *db.Manager, store TemplateStore, lookup SourceLookup, fetcher fetch.Fetcher, formulas *formula.Evaluator, opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		db:        manager,
		templates: store,
		sources:   lookup,
		fetcher:   fetcher,
		formulas:  formulas,
		tracker:   monitor.NewTracker(opts.Logger),
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Run executes one template. It never panics or returns an error: every
// failure is captured in the outcome.
func (r *Runner) Run(ctx context.Context, id int64) Outcome {
	start := time.Now()

	t, err := r.templates.Get(ctx, id)
	if err != nil {
		out := failed(id, "", fmt.Errorf("template %d: %w", id, err))
		r.log(out)
		return out
	}

	var out Outcome
	if col, ok := t.MonitorColumn(); ok {
		out = r.runMonitor(ctx, t, col)
	} else {
		out = r.runStandard(ctx, t)
	}
	out.TemplateID = t.ID
	out.TemplateName = t.Name
	out.Elapsed = time.Since(start)

	r.log(out)
	return out
}

func (r *Runner) runStandard(ctx context.Context, t templates.Template) Outcome {
	c, err := r.resolve(ctx, t)
	if err != nil {
		return failed(t.ID, t.Name, err)
	}

	var res upsert.Result
	err = r.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err = upsert.Write(ctx, tx, t.Name, c.Row, t.UniqueKey)
		if err != nil {
			return err
		}

		if len(c.Deferred) > 0 {
			patch := make(upsert.Row, 0, len(c.Deferred))
			for _, d := range c.Deferred {
				patch = append(patch, upsert.Field{Column: d.Column, Value: r.formulas.Deferred(ctx, tx, t.Name, d.Expr)})
			}
			if err := upsert.Update(ctx, tx, t.Name, res.ID, patch); err != nil {
				return err
			}
		}

		return r.templates.MarkRun(ctx, tx, t.ID, r.timestamp())
	})
	if err != nil {
		return failed(t.ID, t.Name, storageError(t.Name, err))
	}

	verb := "inserted"
	if res.Updated {
		verb = "updated"
	}
	return Outcome{
		Status:  StatusOK,
		Message: fmt.Sprintf("template %s ran successfully, row %d %s", t.Name, res.ID, verb),
		RowID:   res.ID,
	}
}

func (r *Runner) runMonitor(ctx context.Context, t templates.Template, col templates.Column) Outcome {
	spec := monitor.Spec{
		DeviceID: col.Monitor.DeviceID,
		OnValue:  col.Monitor.OnValue,
		OffValue: col.Monitor.OffValue,
	}

	src, err := r.sources.Get(ctx, col.Monitor.SourceID)
	if err != nil {
		return failed(t.ID, t.Name, fmt.Errorf("%w: monitor template %s: data source %d: %w",
			apperrors.ErrSourceFetch, t.Name, col.Monitor.SourceID, err))
	}

	body, err := r.fetcher.Fetch(ctx, src.Endpoint, r.opts.MonitorTimeout)
	if err != nil {
		return Outcome{
			Status:  StatusSoftFailure,
			Message: fmt.Sprintf("monitor template %s could not poll its source: %v", t.Name, err),
			Err:     err,
		}
	}
	polled := strings.TrimSpace(body)

	var tr monitor.Transition
	err = r.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := r.timestamp()
		tr, err = r.tracker.Poll(ctx, tx, t.Name, spec, polled, now)
		if err != nil {
			return err
		}
		return r.templates.MarkRun(ctx, tx, t.ID, now)
	})
	if err != nil {
		return failed(t.ID, t.Name, storageError(t.Name, err))
	}

	status := StatusOK
	if tr.Action == monitor.NoChange {
		status = StatusNoChange
	}
	return Outcome{
		Status:  status,
		Message: tr.Message(spec.DeviceID),
		RowID:   tr.SessionID,
	}
}

func (r *Runner) timestamp() string {
	return r.opts.Clock().Format(schema.TimestampLayout)
}

func (r *Runner) log(out Outcome) {
	attrs := []any{
		"template", out.TemplateName,
		"template_id", out.TemplateID,
		"status", string(out.Status),
		"elapsed", out.Elapsed,
	}

	switch out.Status {
	case StatusFailed:
		r.logger.Error("template run failed", append(attrs, "error", out.Err)...)
	case StatusSoftFailure:
		r.logger.Warn("template run skipped", append(attrs, "error", out.Err)...)
	default:
		r.logger.Info("template run finished", append(attrs, "message", out.Message)...)
	}
}

func storageError(table string, err error) error {
	if errors.Is(err, apperrors.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: template %s: %w", apperrors.ErrStorage, table, err)
}
