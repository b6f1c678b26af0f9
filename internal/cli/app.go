package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/user/collector/internal/db"
	"github.com/user/collector/internal/engine"
	"github.com/user/collector/internal/fetch"
	"github.com/user/collector/internal/formula"
	"github.com/user/collector/internal/prompt"
	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/sources"
	"github.com/user/collector/internal/templates"
)

// app holds the stores every command works against
type app struct {
	manager   *db.Manager
	sources   *sources.Registry
	templates *templates.Repository
	tables    *schema.Tables
}

func openApp(ctx context.Context) (*app, error) {
	manager := db.NewManager().WithLogger(logger)
	if err := manager.Open(ctx, cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	return &app{
		manager:   manager,
		sources:   sources.NewRegistry(manager),
		templates: templates.NewRepository(manager, schema.NewSynchronizer(logger)),
		tables:    schema.NewTables(manager),
	}, nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		color.Red("Warning: failed to close database: %v", err)
	}
}

func (a *app) newRunner() (*engine.Runner, error) {
	evaluator, err := formula.NewEvaluator()
	if err != nil {
		return nil, err
	}

	client := fetch.NewClient(fetch.Options{
		RatePerSecond:      cfg.Fetch.RatePerSecond,
		BreakerFailures:    cfg.Fetch.BreakerFailures,
		BreakerOpenTimeout: cfg.Fetch.BreakerOpenTimeout,
	}, logger)

	return engine.NewRunner(a.manager, a.templates, a.sources, client, evaluator, engine.Options{
		FetchTimeout:   cfg.Fetch.Timeout,
		MonitorTimeout: cfg.Fetch.MonitorTimeout,
		Clock:          time.Now,
		Logger:         logger,
	}), nil
}

// lookupTemplate accepts a numeric id or a template name
func (a *app) lookupTemplate(ctx context.Context, ref string) (templates.Template, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.templates.Get(ctx, id)
	}
	return a.templates.GetByName(ctx, ref)
}

// templateIDs resolves refs in order, keeping duplicates out
func (a *app) templateIDs(ctx context.Context, refs []string) ([]int64, error) {
	seen := make(map[int64]bool, len(refs))
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		t, err := a.lookupTemplate(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", ref, err)
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func confirm(label string) error {
	if assumeYes {
		return nil
	}
	return prompt.Confirm(prompt.Terminal{}, label)
}
