// Package prompt holds the interactive prompts of the CLI: confirmations
// for destructive commands and the template creation wizard.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/user/collector/internal/sources"
	"github.com/user/collector/internal/templates"
	"github.com/user/collector/internal/validate"
)

var kindItems = []struct {
	label string
	kind  templates.ColumnKind
}{
	{"Static value", templates.KindStatic},
	{"Data source", templates.KindSource},
	{"Formula (now, eval:..., db_eval:get_diff(...))", templates.KindFormula},
	{"Device monitor", templates.KindDeviceMonitor},
}

// Wizard builds a template interactively
type Wizard struct {
	p       Prompter
	sources []sources.DataSource
}

// NewWizard creates a wizard that offers srcs for source and monitor columns
func NewWizard(p Prompter, srcs []sources.DataSource) *Wizard {
	return &Wizard{p: p, sources: srcs}
}

// BuildTemplate asks for a template definition. The result is validated
// before it is returned.
func (w *Wizard) BuildTemplate() (templates.Template, error) {
	color.Cyan("New template")
	fmt.Println()

	var t templates.Template
	var err error

	t.Name, err = w.p.Input("Template (table) name", "", validate.ValidateTableName)
	if err != nil {
		return templates.Template{}, err
	}

	t.Description, err = w.p.Input("Description", "", nil)
	if err != nil {
		return templates.Template{}, err
	}

	for {
		col, err := w.promptColumn(len(t.Columns) + 1)
		if err != nil {
			return templates.Template{}, err
		}
		t.Columns = append(t.Columns, col)

		// A monitor column fixes the table shape; nothing else can be added.
		if col.Kind == templates.KindDeviceMonitor {
			break
		}

		more, err := w.p.Select("Add another column", []string{"Yes", "No"})
		if err != nil {
			return templates.Template{}, err
		}
		if more != 0 {
			break
		}
	}

	if _, isMonitor := t.MonitorColumn(); !isMonitor {
		if t.UniqueKey, err = w.promptUniqueKey(t.Columns); err != nil {
			return templates.Template{}, err
		}
	}

	if err := t.Validate(); err != nil {
		return templates.Template{}, err
	}
	return t, nil
}

func (w *Wizard) promptColumn(n int) (templates.Column, error) {
	var col templates.Column

	name, err := w.p.Input(fmt.Sprintf("Column %d name", n), "", validate.ValidateIdentifier)
	if err != nil {
		return col, err
	}
	col.Name = name

	labels := make([]string, len(kindItems))
	for i, k := range kindItems {
		labels[i] = k.label
	}
	i, err := w.p.Select("Column kind", labels)
	if err != nil {
		return col, err
	}
	col.Kind = kindItems[i].kind

	switch col.Kind {
	case templates.KindStatic:
		col.Value, err = w.p.Input("Value", "", nil)
	case templates.KindFormula:
		col.Value, err = w.p.Input("Formula", "now", nonEmpty)
	case templates.KindSource:
		col.SourceID, err = w.promptSource("Data source")
	case templates.KindDeviceMonitor:
		col.Monitor, err = w.promptMonitor()
	}
	return col, err
}

func (w *Wizard) promptSource(label string) (int64, error) {
	if len(w.sources) == 0 {
		id, err := w.p.Input(label+" id", "", positiveInt)
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	}

	items := make([]string, len(w.sources))
	for i, s := range w.sources {
		items[i] = fmt.Sprintf("#%d %s (%s)", s.ID, s.Label, s.Endpoint)
	}
	i, err := w.p.Select(label, items)
	if err != nil {
		return 0, err
	}
	return w.sources[i].ID, nil
}

func (w *Wizard) promptMonitor() (*templates.MonitorSpec, error) {
	var m templates.MonitorSpec
	var err error

	if m.SourceID, err = w.promptSource("Monitored source"); err != nil {
		return nil, err
	}
	if m.DeviceID, err = w.p.Input("Device id", "", nonEmpty); err != nil {
		return nil, err
	}
	if m.OnValue, err = w.p.Input("Value meaning on", "1", nonEmpty); err != nil {
		return nil, err
	}
	if m.OffValue, err = w.p.Input("Value meaning off", "0", nonEmpty); err != nil {
		return nil, err
	}
	return &m, nil
}

func (w *Wizard) promptUniqueKey(cols []templates.Column) (string, error) {
	items := []string{"(none, always insert)"}
	for _, c := range cols {
		items = append(items, c.Name)
	}

	i, err := w.p.Select("Unique key column", items)
	if err != nil {
		return "", err
	}
	if i == 0 {
		return "", nil
	}
	return cols[i-1].Name, nil
}

func nonEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}

func positiveInt(input string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}
