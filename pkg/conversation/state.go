/*
Package conversation implements the business steps of an intake conversation.

Every step is a State. States driven by the LLM share the two-phase protocol of
Base: ProcessInput asks the LLM to decide and act on the caller's input, then,
after a transition, ProcessStateEntry lets the LLM open the new step when the
previous step did not already supply an opening message.

States never mutate the conversation context. They read it through a
domain.View, work on a private clone, and return the updates of the turn in an
Outcome so the orchestrator can apply them all at once, or not at all.
*/
package conversation

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// State is one business step of the conversation.
type State interface {
	// Name returns the state name used by the transition graph.
	Name() string

	// Enter returns a static opening message. States without one return false
	// and are opened through ProcessStateEntry instead.
	Enter(view domain.View) (string, bool)

	// ProcessStateEntry produces the opening message of the state when it is
	// entered through a transition that carried no message.
	ProcessStateEntry(ctx context.Context, turn Turn) (Outcome, error)

	// ProcessInput runs one caller turn.
	ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error)

	// Exit clears the transient keys of the state.
	Exit(c *domain.Context)

	// HandleError decides what to do after a failed turn. turn.Retries already
	// counts the failure being handled.
	HandleError(err error, turn Turn) Outcome
}

// Turn is the read-only input of a state operation.
type Turn struct {
	SessionID string

	// Context is the live conversation context.
	Context domain.View

	// Work is a private copy of Context the state may mutate while it runs.
	// When nil, states clone nothing and work on an empty context.
	Work *domain.Context

	// History is the transcript so far, without the current input.
	History []domain.HistoryEntry

	// Previous is the state the conversation came from, set on entry.
	Previous string

	// Retries is the number of consecutive failures in the current state.
	Retries int

	// OnToolCall, when set, observes every dispatched tool call.
	OnToolCall func(call domain.ToolCall, err error)
}

// Outcome is the result of a state operation.
type Outcome struct {
	Action   domain.NextAction
	Next     string
	Response string

	// Updates and Scores are applied to the conversation context by the
	// orchestrator when the operation succeeds.
	Updates map[string]any
	Scores  map[string]float64

	Model    string
	Tokens   int
	LLMCalls int

	// System marks transitions decided by the engine itself (error escalation)
	// rather than requested by the LLM.
	System bool
}

func (o *Outcome) set(key string, value any) {
	if o.Updates == nil {
		o.Updates = make(map[string]any)
	}
	o.Updates[key] = value
	if o.Scores != nil {
		delete(o.Scores, key)
	}
}
