package domain

// ToolCall is a structured function invocation returned by the LLM.
// It is compatible with OpenAI/MCP tool call shapes.
type ToolCall struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// ToolSchema describes a tool offered to the LLM for a turn.
// Parameters is a JSON-schema object.
type ToolSchema struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// ToolCallResult is what a single tool invocation contributes to a turn.
type ToolCallResult struct {
	// ContextUpdates are canonicalized key/value pairs to merge into the context.
	ContextUpdates map[string]any `json:"context_updates,omitempty"`

	// Scores carries the confidence of individual updates. Missing keys mean DefaultConfidence.
	Scores map[string]float64 `json:"scores,omitempty"`

	Response   *string    `json:"response,omitempty"`
	NextAction NextAction `json:"next_action"`
	NextState  *string    `json:"next_state,omitempty"`
}

// Merge combines r with a later result. Updates are merged key by key with later
// values winning; the last non-nil Response and NextState win, as does the last
// action other than ActionContinue.
func (r ToolCallResult) Merge(next ToolCallResult) ToolCallResult {
	out := ToolCallResult{
		Response:   r.Response,
		NextAction: r.NextAction,
		NextState:  r.NextState,
	}

	if len(r.ContextUpdates)+len(next.ContextUpdates) > 0 {
		out.ContextUpdates = make(map[string]any, len(r.ContextUpdates)+len(next.ContextUpdates))
		for k, v := range r.ContextUpdates {
			out.ContextUpdates[k] = v
		}
		for k, v := range next.ContextUpdates {
			out.ContextUpdates[k] = v
		}
	}
	if len(r.Scores)+len(next.Scores) > 0 {
		out.Scores = make(map[string]float64, len(r.Scores)+len(next.Scores))
		for k, v := range r.Scores {
			out.Scores[k] = v
		}
		for k, v := range next.Scores {
			out.Scores[k] = v
		}
		// A later unscored update replaces an earlier scored one at full confidence.
		for k := range next.ContextUpdates {
			if _, ok := next.Scores[k]; !ok {
				delete(out.Scores, k)
			}
		}
	}

	if next.Response != nil {
		out.Response = next.Response
	}
	if next.NextState != nil {
		out.NextState = next.NextState
	}
	if next.NextAction != ActionContinue {
		out.NextAction = next.NextAction
	}
	return out
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
