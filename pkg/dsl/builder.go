package dsl

import (
	"fmt"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
)

// Builder manages the flow construction.
type Builder struct {
	def    flow.Definition
	states map[string]*StateBuilder
	order  []string
}

// New creates a new flow builder.
func New(name string) *Builder {
	return &Builder{
		def:    flow.Definition{Name: name},
		states: make(map[string]*StateBuilder),
	}
}

// From creates a builder holding a copy of def. Changes made through the
// builder never affect def.
func From(def *flow.Definition) *Builder {
	b := New(def.Name)
	b.def = flow.Definition{
		Name:               def.Name,
		Initial:            def.Initial,
		Fallback:           def.Fallback,
		Error:              def.Error,
		Summary:            def.Summary,
		Terminal:           cloneSlice(def.Terminal),
		Transient:          cloneSlice(def.Transient),
		DefaultTools:       cloneSlice(def.DefaultTools),
		Persona:            def.Persona,
		DefaultEntryPrompt: def.DefaultEntryPrompt,
		Aliases:            cloneMap(def.Aliases),
		Fields:             cloneMap(def.Fields),
		Rules:              append([]domain.DerivedRule(nil), def.Rules...),
		Satisfies:          make(map[string][][]string, len(def.Satisfies)),
	}
	for field, groups := range def.Satisfies {
		for _, g := range groups {
			b.def.Satisfies[field] = append(b.def.Satisfies[field], cloneSlice(g))
		}
	}
	for _, s := range def.States {
		sb := b.Add(s.Name)
		sb.state = flow.StateDef{
			Name:              s.Name,
			Kind:              s.Kind,
			Prompt:            s.Prompt,
			Entry:             s.Entry,
			Closing:           s.Closing,
			Required:          cloneSlice(s.Required),
			Tools:             cloneSlice(s.Tools),
			Next:              cloneSlice(s.Next),
			OnComplete:        s.OnComplete,
			Transient:         cloneSlice(s.Transient),
			TransitionPrompts: cloneMap(s.TransitionPrompts),
			Menu:              cloneMap(s.Menu),
			Intents:           cloneMap(s.Intents),
			Messages:          cloneMap(s.Messages),
			EndKeywords:       cloneSlice(s.EndKeywords),
			RestartKeywords:   cloneSlice(s.RestartKeywords),
		}
	}
	return b
}

// Initial sets the state a conversation starts in.
func (b *Builder) Initial(state string) *Builder {
	b.def.Initial = state
	return b
}

// Fallback sets the state substituted for transitions to unknown states.
func (b *Builder) Fallback(state string) *Builder {
	b.def.Fallback = state
	return b
}

// Error sets the state conversations are routed to after repeated failures.
func (b *Builder) Error(state string) *Builder {
	b.def.Error = state
	return b
}

// Summary sets the state that recaps the call before it ends.
func (b *Builder) Summary(state string) *Builder {
	b.def.Summary = state
	return b
}

// Terminal adds states a conversation can finish in.
func (b *Builder) Terminal(states ...string) *Builder {
	b.def.Terminal = appendUnique(b.def.Terminal, states...)
	return b
}

// Transient adds context keys every state clears on exit.
func (b *Builder) Transient(keys ...string) *Builder {
	b.def.Transient = appendUnique(b.def.Transient, keys...)
	return b
}

// DefaultTools replaces the tools offered by states that list none.
func (b *Builder) DefaultTools(tools ...string) *Builder {
	b.def.DefaultTools = cloneSlice(tools)
	return b
}

// Persona sets the system prompt shared by every LLM-driven state.
func (b *Builder) Persona(text string) *Builder {
	b.def.Persona = text
	return b
}

// DefaultEntryPrompt sets the guidance used to open a state without a
// transition prompt.
func (b *Builder) DefaultEntryPrompt(text string) *Builder {
	b.def.DefaultEntryPrompt = text
	return b
}

// Alias maps a context key reported by the LLM to its canonical name.
func (b *Builder) Alias(from, to string) *Builder {
	if b.def.Aliases == nil {
		b.def.Aliases = make(map[string]string)
	}
	b.def.Aliases[from] = to
	return b
}

// Field declares the type a context value is coerced to (bool, int, float, string).
func (b *Builder) Field(key, typ string) *Builder {
	if b.def.Fields == nil {
		b.def.Fields = make(map[string]string)
	}
	b.def.Fields[key] = typ
	return b
}

// Rule adds a derived-field rule.
func (b *Builder) Rule(rule domain.DerivedRule) *Builder {
	b.def.Rules = append(b.def.Rules, rule)
	return b
}

// Satisfies declares a group of context keys that together satisfy a required field.
func (b *Builder) Satisfies(field string, keys ...string) *Builder {
	if b.def.Satisfies == nil {
		b.def.Satisfies = make(map[string][][]string)
	}
	b.def.Satisfies[field] = append(b.def.Satisfies[field], cloneSlice(keys))
	return b
}

// Add creates a new state in the flow.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(name string) *StateBuilder {
	if sb, ok := b.states[name]; ok {
		return sb
	}
	sb := &StateBuilder{
		state:   flow.StateDef{Name: name},
		builder: b,
	}
	b.states[name] = sb
	b.order = append(b.order, name)
	return sb
}

// Remove drops a state. Edges pointing at it are left in place, so Build
// reports them unless they are removed too.
func (b *Builder) Remove(name string) *Builder {
	if _, ok := b.states[name]; !ok {
		return b
	}
	delete(b.states, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return b
}

// Build assembles the states in the order they were added and validates the
// resulting definition.
func (b *Builder) Build() (*flow.Definition, error) {
	def := b.def
	def.States = make([]flow.StateDef, 0, len(b.order))
	for _, name := range b.order {
		def.States = append(def.States, b.states[name].Build())
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow %q: %w", def.Name, err)
	}
	return &def, nil
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, v := range list {
			if v == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
