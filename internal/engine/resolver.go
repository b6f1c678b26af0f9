package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/formula"
	"github.com/user/collector/internal/templates"
	"github.com/user/collector/internal/upsert"
)

// deferredFormula is evaluated once the candidate row has an identity
type deferredFormula struct {
	Column string
	Expr   string
}

// candidate is a resolved row waiting to be written
type candidate struct {
	Row      upsert.Row
	Deferred []deferredFormula
}

// resolve produces the candidate row of a standard template. Any source
// fetch failure aborts the whole row; formula failures only degrade the
// affected cell.
func (r *Runner) resolve(ctx context.Context, t templates.Template) (candidate, error) {
	var c candidate

	for _, col := range t.Columns {
		switch col.Kind {
		case templates.KindStatic:
			c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: col.Value})

		case templates.KindSource:
			value, err := r.fetchSource(ctx, t.Name, col.SourceID, r.opts.FetchTimeout)
			if err != nil {
				return candidate{}, err
			}
			c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: value})

		case templates.KindFormula:
			f := formula.Parse(col.Value)
			switch f.Kind {
			case formula.KindNow:
				c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: r.timestamp()})
			case formula.KindInline:
				c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: r.formulas.Inline(f.Expr)})
			case formula.KindDeferred:
				c.Deferred = append(c.Deferred, deferredFormula{Column: col.Name, Expr: f.Expr})
				c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: nil})
			default:
				c.Row = append(c.Row, upsert.Field{Column: col.Name, Value: f.Expr})
			}

		default:
			return candidate{}, fmt.Errorf("%w: column %s has kind %q in a standard template",
				apperrors.ErrInvalidTemplate, col.Name, col.Kind)
		}
	}

	return c, nil
}

// fetchSource looks up a data source and fetches its endpoint
func (r *Runner) fetchSource(ctx context.Context, template string, sourceID int64, timeout time.Duration) (string, error) {
	src, err := r.sources.Get(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("%w: template %s: data source %d: %w", apperrors.ErrSourceFetch, template, sourceID, err)
	}

	body, err := r.fetcher.Fetch(ctx, src.Endpoint, timeout)
	if err != nil {
		return "", fmt.Errorf("template %s: %w", template, err)
	}
	return body, nil
}
