package conversation

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/intake/pkg/flow"
)

// Registry holds one State per flow step. It is read-only once built and may
// be shared by many conversations.
type Registry struct {
	deps   *Deps
	states map[string]State
	order  []string
}

// NewRegistry builds the states of deps.Flow, choosing each implementation from
// the state kind, and assigns every state its tools.
func NewRegistry(deps Deps) (*Registry, error) {
	d := deps
	if err := d.init(); err != nil {
		return nil, err
	}

	if err := d.Tools.SetDefault(d.Flow.DefaultTools...); err != nil {
		return nil, err
	}

	r := &Registry{deps: &d, states: make(map[string]State, len(d.Flow.States))}
	for _, def := range d.Flow.States {
		if len(def.Tools) > 0 {
			if err := d.Tools.Assign(def.Name, def.Tools...); err != nil {
				return nil, err
			}
		}
		s, err := build(def, r.deps)
		if err != nil {
			return nil, err
		}
		r.states[def.Name] = s
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

func build(def flow.StateDef, deps *Deps) (State, error) {
	b := NewBase(def, deps)
	switch def.Kind {
	case flow.KindIntake, flow.KindError, "":
		return b, nil
	case flow.KindGreeting:
		return &Greeting{Base: b}, nil
	case flow.KindSchedule:
		return newSchedule(b), nil
	case flow.KindConfirmation:
		return newConfirmation(b), nil
	case flow.KindComplete:
		return &CaseComplete{Base: b}, nil
	case flow.KindSummary:
		return newSummary(b), nil
	}
	return nil, fmt.Errorf("state %s: unknown kind %q", def.Name, def.Kind)
}

// Get returns the named state.
func (r *Registry) Get(name string) (State, bool) {
	s, ok := r.states[name]
	return s, ok
}

// Names returns the state names in flow order.
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// Flow returns the flow definition the registry was built from.
func (r *Registry) Flow() *flow.Definition {
	return r.deps.Flow
}

// MaxRetries returns the retry budget of every state.
func (r *Registry) MaxRetries() int {
	return r.deps.MaxRetries
}

// Logger returns the logger shared by the states.
func (r *Registry) Logger() *slog.Logger {
	return r.deps.Logger
}
