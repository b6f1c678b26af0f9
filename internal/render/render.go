// Package render formats run reports with pongo2 templates.
package render

import (
	"fmt"
	"os"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/user/collector/internal/scheduler"
)

// DefaultReport is the report printed after every pass
const DefaultReport = `run {{ run_id }}: {{ ratio }} templates succeeded{% if cancelled %} (cancelled){% endif %}
{% for o in outcomes %}  [{{ o.status }}] {{ o.template }}: {{ o.message }}
{% endfor %}{% if next_run %}next run at {{ next_run }}
{% endif %}`

// Renderer renders report templates. Output is plain text, so HTML
// autoescaping is turned off.
type Renderer struct{}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderString renders a template string with variables
func (r *Renderer) RenderString(template string, variables map[string]any) (string, error) {
	tpl, err := pongo2.FromString("{% autoescape off %}" + template + "{% endautoescape %}")
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	result, err := tpl.Execute(pongo2.Context(variables))
	if err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return result, nil
}

// RenderFile renders the template stored at path
func (r *Renderer) RenderFile(path string, variables map[string]any) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return r.RenderString(string(content), variables)
}

// ReportContext builds the variables available to report templates.
// A zero next omits the next_run line.
func ReportContext(summary scheduler.Summary, next time.Time) map[string]any {
	outcomes := make([]map[string]any, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		name := o.TemplateName
		if name == "" {
			name = fmt.Sprintf("#%d", o.TemplateID)
		}
		outcomes = append(outcomes, map[string]any{
			"template_id": o.TemplateID,
			"template":    name,
			"status":      string(o.Status),
			"message":     o.Message,
			"ok":          o.OK(),
			"row_id":      o.RowID,
			"elapsed":     o.Elapsed.String(),
		})
	}

	vars := map[string]any{
		"run_id":    summary.RunID,
		"ratio":     summary.Ratio(),
		"succeeded": summary.Succeeded(),
		"total":     summary.Total,
		"cancelled": summary.Cancelled,
		"started":   summary.StartedAt.Format(time.DateTime),
		"finished":  summary.FinishedAt.Format(time.DateTime),
		"outcomes":  outcomes,
		"next_run":  "",
	}
	if !next.IsZero() {
		vars["next_run"] = next.Format(time.DateTime)
	}
	return vars
}
