package cli

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval time.Duration
		cron     string
		wantNext time.Time
		wantErr  bool
	}{
		{name: "interval", interval: 30 * time.Second, wantNext: now.Add(30 * time.Second)},
		{name: "cron", interval: time.Minute, cron: "*/5 * * * *", wantNext: now.Add(5 * time.Minute)},
		{name: "interval below one second", interval: 500 * time.Millisecond, wantErr: true},
		{name: "bad cron", cron: "every day", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := buildSchedule(tt.interval, tt.cron)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got := schedule.Next(now)
			assert.True(t, tt.wantNext.Equal(got), "next run %s, want %s", got, tt.wantNext)
		})
	}
}

func TestBuildSchedule_IntervalIsConstantDelay(t *testing.T) {
	schedule, err := buildSchedule(time.Minute, "")
	require.NoError(t, err)
	assert.IsType(t, cron.ConstantDelaySchedule{}, schedule)

	_, err = buildSchedule(0, "")
	assert.Error(t, err)
}
