package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/collector/internal/apperrors"
	"github.com/user/collector/internal/schema"
)

func monitorColumn() Column {
	return Column{
		Name: "press",
		Kind: KindDeviceMonitor,
		Monitor: &MonitorSpec{
			SourceID: 1,
			DeviceID: "D1",
			OnValue:  "255",
			OffValue: "0",
		},
	}
}

func TestTemplate_Validate(t *testing.T) {
	tests := []struct {
		name     string
		template Template
		wantErr  error
	}{
		{
			name: "valid standard template",
			template: Template{
				Name:      "daily",
				UniqueKey: "date",
				Columns: []Column{
					{Name: "date", Kind: KindFormula, Value: "now"},
					{Name: "kwh", Kind: KindSource, SourceID: 3},
					{Name: "site", Kind: KindStatic, Value: "plant-a"},
				},
			},
		},
		{
			name:     "valid monitor template",
			template: Template{Name: "press_log", Columns: []Column{monitorColumn()}},
		},
		{
			name:     "invalid name",
			template: Template{Name: "daily usage", Columns: []Column{{Name: "a", Kind: KindStatic}}},
			wantErr:  apperrors.ErrInvalidIdentifier,
		},
		{
			name:     "no columns",
			template: Template{Name: "daily"},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name:     "invalid column name",
			template: Template{Name: "daily", Columns: []Column{{Name: "k-wh", Kind: KindStatic}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name:     "identity column name",
			template: Template{Name: "daily", Columns: []Column{{Name: "Id", Kind: KindStatic}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name: "duplicate column",
			template: Template{Name: "daily", Columns: []Column{
				{Name: "a", Kind: KindStatic},
				{Name: "A", Kind: KindStatic},
			}},
			wantErr: apperrors.ErrInvalidTemplate,
		},
		{
			name:     "unknown kind",
			template: Template{Name: "daily", Columns: []Column{{Name: "a", Kind: "url"}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name:     "source without id",
			template: Template{Name: "daily", Columns: []Column{{Name: "a", Kind: KindSource}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name:     "empty formula",
			template: Template{Name: "daily", Columns: []Column{{Name: "a", Kind: KindFormula}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name: "two monitors",
			template: Template{Name: "daily", Columns: []Column{
				monitorColumn(),
				func() Column { c := monitorColumn(); c.Name = "other"; return c }(),
			}},
			wantErr: apperrors.ErrInvalidTemplate,
		},
		{
			name:     "monitor missing block",
			template: Template{Name: "daily", Columns: []Column{{Name: "m", Kind: KindDeviceMonitor}}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
		{
			name: "unique key not a column",
			template: Template{Name: "daily", UniqueKey: "code", Columns: []Column{
				{Name: "a", Kind: KindStatic},
			}},
			wantErr: apperrors.ErrInvalidTemplate,
		},
		{
			name:     "unique key on monitor template",
			template: Template{Name: "daily", UniqueKey: "press", Columns: []Column{monitorColumn()}},
			wantErr:  apperrors.ErrInvalidTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.template.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTemplate_TableSchema(t *testing.T) {
	standard := Template{Name: "daily", Columns: []Column{
		{Name: "date", Kind: KindFormula, Value: "now"},
		{Name: "kwh", Kind: KindSource, SourceID: 1},
	}}
	assert.Equal(t, schema.TextSchema("daily", []string{"date", "kwh"}), standard.TableSchema())

	monitor := Template{Name: "press_log", Columns: []Column{
		{Name: "note", Kind: KindStatic, Value: "x"},
		monitorColumn(),
	}}
	assert.Equal(t, schema.SessionSchema("press_log"), monitor.TableSchema())

	col, ok := monitor.MonitorColumn()
	assert.True(t, ok)
	assert.Equal(t, "press", col.Name)

	_, ok = standard.MonitorColumn()
	assert.False(t, ok)
}
