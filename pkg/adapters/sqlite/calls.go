package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// Call completion statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusAbandoned  = "abandoned"
)

// ErrCallNotFound is returned when a call ID is not in the calls table.
var ErrCallNotFound = errors.New("call not found")

// Call is one row of the calls table.
type Call struct {
	CallID           string     `json:"call_id"`
	SessionID        string     `json:"session_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	InitialState     string     `json:"initial_state"`
	FinalState       string     `json:"final_state,omitempty"`
	CompletionStatus string     `json:"completion_status"`
	DurationSeconds  int        `json:"duration_seconds"`
	Turns            int        `json:"turns"`
	Tokens           int        `json:"llm_tokens"`
}

// Transition is one row of the state_transitions table.
type Transition struct {
	Sequence     int                   `json:"sequence_number"`
	Timestamp    time.Time             `json:"timestamp"`
	FromState    string                `json:"from_state,omitempty"`
	ToState      string                `json:"to_state"`
	Kind         domain.TransitionKind `json:"transition_type"`
	UserInput    string                `json:"user_input,omitempty"`
	Response     string                `json:"agent_response,omitempty"`
	Updates      map[string]any        `json:"context_updates,omitempty"`
	Model        string                `json:"llm_model,omitempty"`
	Tokens       int                   `json:"llm_tokens_used,omitempty"`
	ProcessingMs int64                 `json:"processing_time_ms"`
}

// CallFlow is a call with its ordered transitions.
type CallFlow struct {
	Call        Call         `json:"call"`
	Transitions []Transition `json:"transitions"`
}

// TelemetryWriter implements ports.TelemetryWriter on the calls and
// state_transitions tables.
type TelemetryWriter struct {
	d *DB
}

// Telemetry returns the telemetry writer backed by d.
func (d *DB) Telemetry() *TelemetryWriter {
	return &TelemetryWriter{d: d}
}

// Write stores one turn record. A record of an unknown call opens the call row,
// and a completion record closes it. Writing the same sequence twice is a no-op.
func (w *TelemetryWriter) Write(ctx context.Context, rec domain.TurnRecord) error {
	snapshot, err := marshalMap(rec.ContextSnapshot)
	if err != nil {
		return fmt.Errorf("marshaling context snapshot: %w", err)
	}
	updates, err := marshalMap(rec.ContextDelta)
	if err != nil {
		return fmt.Errorf("marshaling context updates: %w", err)
	}
	at := rec.Timestamp
	if at.IsZero() {
		at = w.d.now()
	}

	tx, err := w.d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	initial := rec.FromState
	if initial == "" {
		initial = rec.ToState
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO calls
			(call_id, session_id, start_time, initial_state, completion_status)
			VALUES (?, ?, ?, ?, ?)`,
		rec.CallID, rec.SessionID, formatTime(at), initial, StatusInProgress); err != nil {
		return fmt.Errorf("opening call: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO state_transitions (
			call_id, sequence_number, timestamp, from_state, to_state, transition_type,
			user_input, agent_response, context_snapshot, context_updates,
			llm_model, llm_tokens_used, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.Sequence, formatTime(at), nullString(rec.FromState), rec.ToState, string(rec.Kind),
		nullString(rec.UserInput), rec.AgentResponse, snapshot, updates,
		nullString(rec.Model), rec.Tokens, rec.ProcessingMs,
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE calls
			SET final_state = ?, turns = turns + 1, llm_tokens = llm_tokens + ?
			WHERE call_id = ?`,
		rec.ToState, rec.Tokens, rec.CallID); err != nil {
		return fmt.Errorf("updating call: %w", err)
	}

	if rec.Ended() {
		if err := w.end(ctx, tx, rec.CallID, at, StatusCompleted); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EndCall closes a call that did not reach completion, for example an
// abandoned session that was deleted.
func (w *TelemetryWriter) EndCall(ctx context.Context, callID, status string) error {
	tx, err := w.d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := w.end(ctx, tx, callID, w.d.now(), status); err != nil {
		return err
	}
	return tx.Commit()
}

func (w *TelemetryWriter) end(ctx context.Context, tx *sql.Tx, callID string, at time.Time, status string) error {
	var start string
	err := tx.QueryRowContext(ctx, `SELECT start_time FROM calls WHERE call_id = ?`, callID).Scan(&start)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", callID, ErrCallNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading call: %w", err)
	}
	started, err := parseTime(start)
	if err != nil {
		return fmt.Errorf("parsing start_time of call %s: %w", callID, err)
	}
	duration := int(at.Sub(started).Seconds())
	if duration < 0 {
		duration = 0
	}
	_, err = tx.ExecContext(ctx, `UPDATE calls
			SET end_time = ?, completion_status = ?, duration_seconds = ?
			WHERE call_id = ? AND end_time IS NULL`,
		formatTime(at), status, duration, callID)
	if err != nil {
		return fmt.Errorf("ending call: %w", err)
	}
	return nil
}

const callColumns = `call_id, session_id, start_time, end_time, initial_state, final_state,
	completion_status, duration_seconds, turns, llm_tokens`

// ListCalls returns the most recent calls, newest first. A limit <= 0 means 50.
func (w *TelemetryWriter) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.d.db.QueryContext(ctx, `SELECT `+callColumns+` FROM calls
		ORDER BY start_time DESC, call_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CallFlow returns the call and its transitions in sequence order.
func (w *TelemetryWriter) CallFlow(ctx context.Context, callID string) (*CallFlow, error) {
	row := w.d.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = ?`, callID)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", callID, ErrCallNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := w.d.db.QueryContext(ctx, `SELECT sequence_number, timestamp, from_state, to_state,
			transition_type, user_input, agent_response, context_updates, llm_model,
			llm_tokens_used, processing_time_ms
		FROM state_transitions WHERE call_id = ? ORDER BY sequence_number`, callID)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	flow := &CallFlow{Call: *call}
	for rows.Next() {
		var (
			t                           Transition
			at, kind                    string
			from, input, model, updates sql.NullString
			response                    sql.NullString
			tokens                      sql.NullInt64
		)
		if err := rows.Scan(&t.Sequence, &at, &from, &t.ToState, &kind, &input, &response,
			&updates, &model, &tokens, &t.ProcessingMs); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		if t.Timestamp, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parsing transition timestamp: %w", err)
		}
		t.FromState = from.String
		t.Kind = domain.TransitionKind(kind)
		t.UserInput = input.String
		t.Response = response.String
		t.Model = model.String
		t.Tokens = int(tokens.Int64)
		if updates.Valid && updates.String != "" {
			if err := json.Unmarshal([]byte(updates.String), &t.Updates); err != nil {
				return nil, fmt.Errorf("unmarshaling context updates: %w", err)
			}
		}
		flow.Transitions = append(flow.Transitions, t)
	}
	return flow, rows.Err()
}

func scanCall(row scanner) (*Call, error) {
	var (
		c          Call
		start      string
		end, final sql.NullString
		duration   sql.NullInt64
	)
	err := row.Scan(&c.CallID, &c.SessionID, &start, &end, &c.InitialState, &final,
		&c.CompletionStatus, &duration, &c.Turns, &c.Tokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning call: %w", err)
	}
	if c.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("parsing start_time of call %s: %w", c.CallID, err)
	}
	if end.Valid {
		at, err := parseTime(end.String)
		if err != nil {
			return nil, fmt.Errorf("parsing end_time of call %s: %w", c.CallID, err)
		}
		c.EndTime = &at
	}
	c.FinalState = final.String
	c.DurationSeconds = int(duration.Int64)
	return &c, nil
}

func marshalMap(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
