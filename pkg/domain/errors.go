package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrCaseNotFound is returned when a case ID cannot be found in the case store.
var ErrCaseNotFound = errors.New("case not found")

// ErrConversationEnded is returned by operations that need an active conversation.
var ErrConversationEnded = errors.New("conversation ended")

// ErrSlotUnavailable is returned when a requested appointment slot cannot be booked.
var ErrSlotUnavailable = errors.New("slot unavailable")

// LLMTimeoutError is returned when the LLM did not answer within the client timeout.
type LLMTimeoutError struct {
	Model   string
	Timeout time.Duration
	Err     error
}

func (e *LLMTimeoutError) Error() string {
	return fmt.Sprintf("llm call to %q timed out after %s", e.Model, e.Timeout)
}

func (e *LLMTimeoutError) Unwrap() error { return e.Err }

// LLMProtocolError is returned when the LLM answered with something the engine
// cannot use, such as tool arguments that do not match the tool schema.
type LLMProtocolError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *LLMProtocolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("llm protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("llm protocol error in tool %q: %s", e.Tool, e.Reason)
}

func (e *LLMProtocolError) Unwrap() error { return e.Err }

// InvalidTransitionError describes a transition request that was rewritten by the graph.
// It is logged, never surfaced to the caller.
type InvalidTransitionError struct {
	From      string
	To        string
	Rewritten string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (rewritten to %s)", e.From, e.To, e.Rewritten)
}

// MaxRetriesExceededError is raised when a state exhausted its retry budget.
type MaxRetriesExceededError struct {
	State    string
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("maximum retries exceeded in state %s after %d attempts", e.State, e.Attempts)
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.Err }

// SessionNotStartedError is returned when a turn is processed before Start.
type SessionNotStartedError struct {
	SessionID string
}

func (e *SessionNotStartedError) Error() string {
	if e.SessionID == "" {
		return "session not started"
	}
	return fmt.Sprintf("session %s not started", e.SessionID)
}

// IsTimeout reports whether err is, or wraps, an LLMTimeoutError.
func IsTimeout(err error) bool {
	var t *LLMTimeoutError
	return errors.As(err, &t)
}

// IsProtocol reports whether err is, or wraps, an LLMProtocolError.
func IsProtocol(err error) bool {
	var p *LLMProtocolError
	return errors.As(err, &p)
}
