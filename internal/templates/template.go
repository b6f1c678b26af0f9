package templates

import (
	"fmt"
	"strings"

	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/schema"
	"github.com/user/collector/internal/validate"
)

// ColumnKind is the resolution strategy of a column
type ColumnKind string

const (
	KindStatic        ColumnKind = "static"
	KindSource        ColumnKind = "source"
	KindFormula       ColumnKind = "formula"
	KindDeviceMonitor ColumnKind = "device_monitor"
)

// MonitorSpec configures a device on/off monitor column
type MonitorSpec struct {
	SourceID int64  `json:"source_id" yaml:"source_id"`
	DeviceID string `json:"device_id" yaml:"device_id"`
	OnValue  string `json:"on_value" yaml:"on_value"`
	OffValue string `json:"off_value" yaml:"off_value"`
}

// Column is one column definition of a template.
// Value holds the literal for static columns and the formula text for
// formula columns; SourceID is used by source columns.
type Column struct {
	Name     string       `json:"name" yaml:"name"`
	Kind     ColumnKind   `json:"kind" yaml:"kind"`
	Value    string       `json:"value,omitempty" yaml:"value,omitempty"`
	SourceID int64        `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Monitor  *MonitorSpec `json:"monitor,omitempty" yaml:"monitor,omitempty"`
}

// Template describes how to populate one backing table
type Template struct {
	ID          int64    `json:"id" yaml:"-"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description,omitempty"`
	Columns     []Column `json:"columns" yaml:"columns"`
	UniqueKey   string   `json:"unique_key,omitempty" yaml:"unique_key,omitempty"`
	LastRunAt   string   `json:"last_run_at,omitempty" yaml:"-"`
}

// MonitorColumn returns the device monitor column, if the template has one
func (t Template) MonitorColumn() (Column, bool) {
	for _, c := range t.Columns {
		if c.Kind == KindDeviceMonitor {
			return c, true
		}
	}
	return Column{}, false
}

// TableSchema derives the backing table shape. Monitor templates always map
// to the fixed session shape.
func (t Template) TableSchema() schema.TableSchema {
	if _, ok := t.MonitorColumn(); ok {
		return schema.SessionSchema(t.Name)
	}

	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return schema.TextSchema(t.Name, names)
}

// Validate checks the template definition
func (t Template) Validate() error {
	if err := validate.ValidateTableName(t.Name); err != nil {
		return err
	}

	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: template %s has no columns", apperrors.ErrInvalidTemplate, t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	monitors := 0
	for _, c := range t.Columns {
		if err := validate.ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("%w: column: %w", apperrors.ErrInvalidTemplate, err)
		}
		key := strings.ToLower(c.Name)
		if key == schema.IdentityColumn {
			return fmt.Errorf("%w: column name %q is reserved for the row identity", apperrors.ErrInvalidTemplate, c.Name)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate column %q", apperrors.ErrInvalidTemplate, c.Name)
		}
		seen[key] = true

		if err := c.validate(); err != nil {
			return fmt.Errorf("%w: column %s: %w", apperrors.ErrInvalidTemplate, c.Name, err)
		}
		if c.Kind == KindDeviceMonitor {
			monitors++
		}
	}

	if monitors > 1 {
		return fmt.Errorf("%w: at most one device monitor column is allowed, got %d", apperrors.ErrInvalidTemplate, monitors)
	}

	if t.UniqueKey != "" {
		if monitors > 0 {
			return fmt.Errorf("%w: unique key is not supported on device monitor templates", apperrors.ErrInvalidTemplate)
		}
		if !seen[strings.ToLower(t.UniqueKey)] {
			return fmt.Errorf("%w: unique key %q is not a column of the template", apperrors.ErrInvalidTemplate, t.UniqueKey)
		}
	}

	return nil
}

func (c Column) validate() error {
	switch c.Kind {
	case KindStatic:
		return nil
	case KindSource:
		if c.SourceID <= 0 {
			return fmt.Errorf("source column needs a source_id")
		}
	case KindFormula:
		if strings.TrimSpace(c.Value) == "" {
			return fmt.Errorf("formula column needs a value")
		}
	case KindDeviceMonitor:
		m := c.Monitor
		if m == nil {
			return fmt.Errorf("device monitor column needs a monitor block")
		}
		if m.SourceID <= 0 || m.DeviceID == "" || m.OnValue == "" || m.OffValue == "" {
			return fmt.Errorf("device monitor needs source_id, device_id, on_value and off_value")
		}
		if m.OnValue == m.OffValue {
			return fmt.Errorf("device monitor on_value and off_value must differ")
		}
	default:
		return fmt.Errorf("unknown column kind %q", c.Kind)
	}
	return nil
}
