package scheduler

import (
	"fmt"
	"time"

	"github.com/user/collector/internal/engine"
)

// Summary reports one pass over a template set
type Summary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Total      int              `json:"total"`
	Cancelled  bool             `json:"cancelled"`
	Outcomes   []engine.Outcome `json:"outcomes"`
}

// Succeeded counts outcomes that did not fail
func (s Summary) Succeeded() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Ratio formats succeeded/total
func (s Summary) Ratio() string {
	return fmt.Sprintf("%d/%d", s.Succeeded(), s.Total)
}

// Failed returns the failed outcomes
func (s Summary) Failed() []engine.Outcome {
	var out []engine.Outcome
	for _, o := range s.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
