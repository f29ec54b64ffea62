package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateEnter EventType = "state_enter"
	EventStateLeave EventType = "state_leave"
	EventToolCall   EventType = "tool_call"
	EventTurn       EventType = "turn"
	EventRewrite    EventType = "transition_rewrite"
	EventLLMFailure EventType = "llm_failure"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StateEvent represents entry into or exit from a conversation state.
type StateEvent struct {
	EventBase
	State    string `json:"state"`
	Previous string `json:"previous,omitempty"`
}

// ToolEvent represents a dispatched tool call.
type ToolEvent struct {
	EventBase
	State    string         `json:"state"`
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
}

// TurnEvent is raised once per processed turn.
type TurnEvent struct {
	EventBase
	Record TurnRecord `json:"record"`
}

// RewriteEvent is raised when the transition graph corrected a requested transition.
type RewriteEvent struct {
	EventBase
	From      string `json:"from"`
	To        string `json:"to"`
	Rewritten string `json:"rewritten"`
}

// ErrorEvent is raised when a turn failed and went through the error policy.
type ErrorEvent struct {
	EventBase
	State   string `json:"state"`
	Retries int    `json:"retries"`
	Err     error  `json:"-"`
}

// LifecycleHooks defines callbacks for conversation observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnStateEnter func(context.Context, *StateEvent)
	OnStateLeave func(context.Context, *StateEvent)
	OnToolCall   func(context.Context, *ToolEvent)
	OnTurn       func(context.Context, *TurnEvent)
	OnRewrite    func(context.Context, *RewriteEvent)
	OnError      func(context.Context, *ErrorEvent)
}

// CombineHooks returns hooks calling every non-nil hook of hs, in order.
func CombineHooks(hs ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hs {
		out.OnStateEnter = chain(out.OnStateEnter, h.OnStateEnter)
		out.OnStateLeave = chain(out.OnStateLeave, h.OnStateLeave)
		out.OnToolCall = chain(out.OnToolCall, h.OnToolCall)
		out.OnTurn = chain(out.OnTurn, h.OnTurn)
		out.OnRewrite = chain(out.OnRewrite, h.OnRewrite)
		out.OnError = chain(out.OnError, h.OnError)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
