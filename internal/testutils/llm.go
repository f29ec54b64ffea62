package testutils

import (
	"context"
	"sync"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// Step is one scripted LLM answer. Exactly one of Completion or Err is used.
type Step struct {
	Completion *ports.Completion
	Err        error
	// Block, when set, is waited on before answering (or until the call context ends).
	Block <-chan struct{}
}

// Call records one request received by a ScriptedLLM.
type Call struct {
	Messages []ports.Message
	Tools    []string
	Model    string
}

// ScriptedLLM is an LLM client that answers from a fixed script.
// Once the script runs out it answers with Fallback, or with an empty completion.
type ScriptedLLM struct {
	mu       sync.Mutex
	steps    []Step
	calls    []Call
	Fallback *Step
}

// NewScriptedLLM creates a client that plays the given steps in order.
func NewScriptedLLM(steps ...Step) *ScriptedLLM {
	return &ScriptedLLM{steps: steps}
}

// Push appends steps to the script.
func (s *ScriptedLLM) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// ChatCompletion implements ports.LLMClient.
func (s *ScriptedLLM) ChatCompletion(ctx context.Context, messages []ports.Message, tools []domain.ToolSchema, model string) (*ports.Completion, error) {
	s.mu.Lock()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	s.calls = append(s.calls, Call{Messages: append([]ports.Message{}, messages...), Tools: names, Model: model})

	var step Step
	switch {
	case len(s.steps) > 0:
		step = s.steps[0]
		s.steps = s.steps[1:]
	case s.Fallback != nil:
		step = *s.Fallback
	default:
		step = Step{Completion: &ports.Completion{Model: model}}
	}
	s.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	c := *step.Completion
	if c.Model == "" {
		c.Model = model
	}
	return &c, nil
}

// Calls returns the requests received so far.
func (s *ScriptedLLM) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call{}, s.calls...)
}

// Remaining returns the number of unplayed steps.
func (s *ScriptedLLM) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Reply builds a step answering with plain text.
func Reply(content string) Step {
	return Step{Completion: &ports.Completion{Content: content, Usage: ports.Usage{TotalTokens: 10}}}
}

// Tools builds a step answering with tool calls.
func Tools(calls ...domain.ToolCall) Step {
	return Step{Completion: &ports.Completion{ToolCalls: calls, Usage: ports.Usage{TotalTokens: 20}}}
}

// Fail builds a step answering with an error.
func Fail(err error) Step {
	return Step{Err: err}
}

// ToolCall is a shorthand for a domain.ToolCall.
func ToolCall(name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: "call_" + name, Name: name, Args: args}
}

// Respond is a shorthand for a generate_response tool call.
func Respond(response, action, next string) domain.ToolCall {
	args := map[string]any{"response": response, "next_action": action}
	if next != "" {
		args["next_state"] = next
	}
	return ToolCall("generate_response", args)
}

// Update is a shorthand for an update_context tool call.
func Update(updates map[string]any) domain.ToolCall {
	return ToolCall("update_context", map[string]any{"context_updates": updates})
}
