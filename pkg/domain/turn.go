package domain

import "time"

// TransitionKind classifies how a turn ended.
type TransitionKind string

const (
	// KindStart is the record emitted when a conversation starts.
	KindStart TransitionKind = "start"
	// KindContinue means the conversation stayed in the same state.
	KindContinue TransitionKind = "continue"
	// KindOptimized means the state changed without a second LLM round-trip.
	KindOptimized TransitionKind = "optimized"
	// KindFallback means the new state needed a second LLM call to produce its opening.
	KindFallback TransitionKind = "fallback"
	// KindError means the turn failed and was handled by the error policy.
	KindError TransitionKind = "error"
	// KindComplete means the conversation finished on this turn.
	KindComplete TransitionKind = "complete"
)

// Speaker identifies who produced a history entry.
type Speaker string

const (
	SpeakerUser   Speaker = "USER"
	SpeakerSystem Speaker = "SYSTEM"
)

// HistoryEntry is one line of the conversation transcript.
type HistoryEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnRecord is the immutable audit entry of one processed turn.
// Records of a conversation carry strictly increasing Sequence numbers.
type TurnRecord struct {
	CallID          string         `json:"call_id"`
	SessionID       string         `json:"session_id"`
	Sequence        int            `json:"sequence_number"`
	FromState       string         `json:"from_state,omitempty"`
	ToState         string         `json:"to_state"`
	UserInput       string         `json:"user_input,omitempty"`
	AgentResponse   string         `json:"agent_response"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
	ContextDelta    map[string]any `json:"context_delta,omitempty"`
	Kind            TransitionKind `json:"transition_kind"`
	Model           string         `json:"model,omitempty"`
	Tokens          int            `json:"tokens,omitempty"`
	ProcessingMs    int64          `json:"processing_time_ms"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Ended reports whether the record closes its conversation.
func (r TurnRecord) Ended() bool {
	return r.Kind == KindComplete
}
