// Package monitor tracks device on/off sessions in a session-shaped backing
// table. The state of a device is never stored separately: it is derived
// from the device's most recent session row.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/collector/internal/schema"
)

// State of a monitored device
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Action is the effect a poll has on the session table
type Action int

const (
	NoChange Action = iota
	OpenSession
	CloseSession
)

func (a Action) String() string {
	switch a {
	case OpenSession:
		return "open"
	case CloseSession:
		return "close"
	default:
		return "none"
	}
}

// Session is one row of a session table
type Session struct {
	ID        int64
	DeviceID  string
	StartTime string
	EndTime   *string
}

// Open reports whether the session has not been closed yet
func (s Session) Open() bool {
	return s.EndTime == nil
}

// Spec identifies the device and the polled values that switch it
type Spec struct {
	DeviceID string
	OnValue  string
	OffValue string
}

// DeriveState returns the state of deviceID given session rows in any order.
// Only the row with the highest id for the device matters.
func DeriveState(rows []Session, deviceID string) State {
	var latest *Session
	for i := range rows {
		r := &rows[i]
		if r.DeviceID != deviceID {
			continue
		}
		if latest == nil || r.ID > latest.ID {
			latest = r
		}
	}

	if latest != nil && latest.Open() {
		return Running
	}
	return Idle
}

// Decide maps the current state and a polled value to an action. Repeated
// values and unrecognized values are no-ops.
func Decide(state State, polled string, spec Spec) Action {
	switch {
	case polled == spec.OnValue && state == Idle:
		return OpenSession
	case polled == spec.OffValue && state == Running:
		return CloseSession
	default:
		return NoChange
	}
}

// Transition is the outcome of one poll
type Transition struct {
	From      State
	Action    Action
	SessionID int64
}

// Message describes the transition for run summaries
func (t Transition) Message(deviceID string) string {
	switch t.Action {
	case OpenSession:
		return fmt.Sprintf("device %s turned on, session %d opened", deviceID, t.SessionID)
	case CloseSession:
		return fmt.Sprintf("device %s turned off, session %d closed", deviceID, t.SessionID)
	default:
		return fmt.Sprintf("device %s %s, no state change", deviceID, t.From)
	}
}

// Tracker applies polls to session tables
type Tracker struct {
	logger *slog.Logger
}

// NewTracker creates a new tracker
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{logger: logger}
}

// Poll records a polled value for spec.DeviceID in table, stamping any
// opened or closed session with now. q should be a transaction so the read
// of the latest session and the write it decides on stay consistent.
func (t *Tracker) Poll(ctx context.Context, q schema.Querier, table string, spec Spec, polled, now string) (Transition, error) {
	latest, err := LatestSession(ctx, q, table, spec.DeviceID)
	if err != nil {
		return Transition{}, err
	}

	var rows []Session
	if latest != nil {
		rows = append(rows, *latest)
	}

	tr := Transition{From: DeriveState(rows, spec.DeviceID)}
	tr.Action = Decide(tr.From, polled, spec)

	switch tr.Action {
	case OpenSession:
		tr.SessionID, err = openSession(ctx, q, table, spec.DeviceID, now)
	case CloseSession:
		tr.SessionID = latest.ID
		err = closeSession(ctx, q, table, latest.ID, now)
	}
	if err != nil {
		return Transition{}, err
	}

	t.logger.Debug("device polled",
		"table", table,
		"device", spec.DeviceID,
		"value", polled,
		"state", tr.From.String(),
		"action", tr.Action.String())

	return tr, nil
}

// LatestSession returns the most recent session of deviceID, or nil when the
// device has none.
func LatestSession(ctx context.Context, q schema.Querier, table, deviceID string) (*Session, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s = ? ORDER BY %s DESC LIMIT 1",
		schema.Quote(schema.IdentityColumn),
		schema.Quote(schema.ColDeviceID),
		schema.Quote(schema.ColStartTime),
		schema.Quote(schema.ColEndTime),
		schema.Quote(table),
		schema.Quote(schema.ColDeviceID),
		schema.Quote(schema.IdentityColumn))

	var s Session
	var start, end sql.NullString
	err := q.QueryRowContext(ctx, query, deviceID).Scan(&s.ID, &s.DeviceID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest session of %s: %w", deviceID, err)
	}

	s.StartTime = start.String
	if end.Valid {
		s.EndTime = &end.String
	}
	return &s, nil
}

func openSession(ctx context.Context, q schema.Querier, table, deviceID, now string) (int64, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
		schema.Quote(table), schema.Quote(schema.ColDeviceID), schema.Quote(schema.ColStartTime))

	res, err := q.ExecContext(ctx, query, deviceID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to open session for %s: %w", deviceID, err)
	}
	return res.LastInsertId()
}

func closeSession(ctx context.Context, q schema.Querier, table string, id int64, now string) error {
	hasDuration, err := schema.HasColumn(ctx, q, table, schema.ColDurationSeconds)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		schema.Quote(table), schema.Quote(schema.ColEndTime), schema.Quote(schema.IdentityColumn))
	args := []any{now, id}

	if hasDuration {
		query = fmt.Sprintf(
			"UPDATE %s SET %s = ?, %s = CAST(strftime('%%s', ?) - strftime('%%s', %s) AS INTEGER) WHERE %s = ?",
			schema.Quote(table),
			schema.Quote(schema.ColEndTime),
			schema.Quote(schema.ColDurationSeconds),
			schema.Quote(schema.ColStartTime),
			schema.Quote(schema.IdentityColumn))
		args = []any{now, now, id}
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to close session %d: %w", id, err)
	}
	return nil
}
