package engine

import (
	"fmt"
	"time"
)

// Status is the result class of one template run
type Status string

const (
	// StatusOK means a row was written or a session changed
	StatusOK Status = "ok"
	// StatusNoChange means a monitor poll did not change the device state
	StatusNoChange Status = "no_change"
	// StatusSoftFailure means a monitor poll could not fetch its source; nothing was written
	StatusSoftFailure Status = "soft_failure"
	// StatusFailed means the template's row changes were not committed
	StatusFailed Status = "failed"
)

// Outcome reports one template run
type Outcome struct {
	TemplateID   int64         `json:"template_id"`
	TemplateName string        `json:"template"`
	Status       Status        `json:"status"`
	Message      string        `json:"message"`
	RowID        int64         `json:"row_id,omitempty"`
	Err          error         `json:"-"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// OK reports whether the run counts as a success
func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

func (o Outcome) String() string {
	name := o.TemplateName
	if name == "" {
		name = fmt.Sprintf("#%d", o.TemplateID)
	}
	return fmt.Sprintf("%s [%s] %s", name, o.Status, o.Message)
}

func failed(id int64, name string, err error) Outcome {
	return Outcome{
		TemplateID:   id,
		TemplateName: name,
		Status:       StatusFailed,
		Message:      err.Error(),
		Err:          err,
	}
}
