package dsl

import "github.com/aretw0/intake/pkg/flow"

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state   flow.StateDef
	builder *Builder
}

// Kind selects the behavior of the state (see the flow.Kind constants).
// States without a kind are intake states.
func (s *StateBuilder) Kind(kind string) *StateBuilder {
	s.state.Kind = kind
	return s
}

// Prompt sets the state instructions given to the LLM.
func (s *StateBuilder) Prompt(text string) *StateBuilder {
	s.state.Prompt = text
	return s
}

// Entry sets the static opening line. States with an entry do not ask the
// LLM to open them.
func (s *StateBuilder) Entry(text string) *StateBuilder {
	s.state.Entry = text
	return s
}

// Closing sets the last line spoken when the conversation ends in this state.
func (s *StateBuilder) Closing(text string) *StateBuilder {
	s.state.Closing = text
	return s
}

// Require adds fields that must be collected before the state completes.
func (s *StateBuilder) Require(fields ...string) *StateBuilder {
	s.state.Required = appendUnique(s.state.Required, fields...)
	return s
}

// Tools sets the tools offered to the LLM in this state, replacing the
// flow defaults.
func (s *StateBuilder) Tools(tools ...string) *StateBuilder {
	s.state.Tools = appendUnique(s.state.Tools, tools...)
	return s
}

// Go adds allowed transitions to the target states.
func (s *StateBuilder) Go(targets ...string) *StateBuilder {
	s.state.Next = appendUnique(s.state.Next, targets...)
	return s
}

// OnComplete sets the state entered once every required field is collected.
// The target becomes an allowed transition.
func (s *StateBuilder) OnComplete(target string) *StateBuilder {
	s.state.OnComplete = target
	return s.Go(target)
}

// Menu maps a keypad or spoken option to a target state, which becomes an
// allowed transition.
func (s *StateBuilder) Menu(option, target string) *StateBuilder {
	if s.state.Menu == nil {
		s.state.Menu = make(map[string]string)
	}
	s.state.Menu[option] = target
	return s.Go(target)
}

// Intent maps a classified request type to a target state, which becomes an
// allowed transition.
func (s *StateBuilder) Intent(intent, target string) *StateBuilder {
	if s.state.Intents == nil {
		s.state.Intents = make(map[string]string)
	}
	s.state.Intents[intent] = target
	return s.Go(target)
}

// Transient adds context keys cleared when the state is left.
func (s *StateBuilder) Transient(keys ...string) *StateBuilder {
	s.state.Transient = appendUnique(s.state.Transient, keys...)
	return s
}

// TransitionPrompt sets the entry guidance used when arriving from the given state.
func (s *StateBuilder) TransitionPrompt(from, text string) *StateBuilder {
	if s.state.TransitionPrompts == nil {
		s.state.TransitionPrompts = make(map[string]string)
	}
	s.state.TransitionPrompts[from] = text
	return s
}

// Message sets a fixed message used by the state behavior, such as a
// confirmation or a scheduling reply.
func (s *StateBuilder) Message(key, text string) *StateBuilder {
	if s.state.Messages == nil {
		s.state.Messages = make(map[string]string)
	}
	s.state.Messages[key] = text
	return s
}

// EndKeywords adds caller phrases that end the conversation from this state.
func (s *StateBuilder) EndKeywords(words ...string) *StateBuilder {
	s.state.EndKeywords = appendUnique(s.state.EndKeywords, words...)
	return s
}

// RestartKeywords adds caller phrases that restart the conversation from this state.
func (s *StateBuilder) RestartKeywords(words ...string) *StateBuilder {
	s.state.RestartKeywords = appendUnique(s.state.RestartKeywords, words...)
	return s
}

// Terminal removes every outgoing transition and marks the state as an end
// of the flow.
func (s *StateBuilder) Terminal() *StateBuilder {
	s.state.Next = nil
	s.state.OnComplete = ""
	s.builder.Terminal(s.state.Name)
	return s
}

// Done returns the flow builder, to continue a chain.
func (s *StateBuilder) Done() *Builder {
	return s.builder
}

// Build returns a copy of the underlying state descriptor.
// This is primarily used by the Builder, but exposed for advanced usage.
func (s *StateBuilder) Build() flow.StateDef {
	st := s.state
	st.Required = cloneSlice(st.Required)
	st.Tools = cloneSlice(st.Tools)
	st.Next = cloneSlice(st.Next)
	st.Transient = cloneSlice(st.Transient)
	st.EndKeywords = cloneSlice(st.EndKeywords)
	st.RestartKeywords = cloneSlice(st.RestartKeywords)
	st.TransitionPrompts = cloneMap(st.TransitionPrompts)
	st.Menu = cloneMap(st.Menu)
	st.Intents = cloneMap(st.Intents)
	st.Messages = cloneMap(st.Messages)
	return st
}
