/*
Package graph polices state transitions.

A Graph holds the immutable table of legal state-to-state moves. Every transition
requested by a conversation state, including the ones an LLM declares through a
tool call, is treated as untrusted input and passed through Validate, which
rewrites illegal requests to a safe target instead of failing the conversation.
*/
package graph

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/schema"
)

// Config declares the states and edges of a graph.
type Config struct {
	// States lists every registered state in display order.
	States []string
	// Edges maps a state to its ordered outgoing edges.
	Edges map[string][]string
	// Initial is the state a conversation starts in.
	Initial string
	// Fallback is the substitute for requests targeting an unknown state.
	Fallback string
	// Terminal lists the states a conversation can finish in.
	Terminal []string
}

// Graph is the validated transition table. It is immutable and safe for
// concurrent use by many conversations.
type Graph struct {
	states   []string
	known    map[string]bool
	edges    map[string][]string
	initial  string
	fallback string
	terminal map[string]bool
	logger   *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used to report rewritten transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New builds and checks a graph. It fails when an edge targets an unregistered
// state or when no terminal state is reachable from the initial state.
func New(cfg Config, opts ...Option) (*Graph, error) {
	g := &Graph{
		states:   append([]string{}, cfg.States...),
		known:    make(map[string]bool, len(cfg.States)),
		edges:    make(map[string][]string, len(cfg.Edges)),
		initial:  cfg.Initial,
		fallback: cfg.Fallback,
		terminal: make(map[string]bool, len(cfg.Terminal)),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, s := range cfg.States {
		g.known[s] = true
	}
	for from, next := range cfg.Edges {
		g.edges[from] = append([]string{}, next...)
	}
	for _, t := range cfg.Terminal {
		g.terminal[t] = true
	}

	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) check() error {
	var errs []error
	fail := func(key, reason string) {
		errs = append(errs, &schema.ValidationError{Key: key, Reason: reason})
	}

	for _, special := range []struct{ key, state string }{
		{"initial", g.initial},
		{"fallback", g.fallback},
	} {
		if !g.known[special.state] {
			fail(special.key, fmt.Sprintf("state %q is not registered", special.state))
		}
	}
	for _, from := range g.states {
		for _, to := range g.edges[from] {
			if !g.known[to] {
				fail(from, fmt.Sprintf("edge targets unregistered state %q", to))
			}
		}
	}
	for from := range g.edges {
		if !g.known[from] {
			fail(from, "edges declared for unregistered state")
		}
	}
	for t := range g.terminal {
		if !g.known[t] {
			fail("terminal", fmt.Sprintf("state %q is not registered", t))
		}
	}
	if len(errs) == 0 && !g.reachesTerminal() {
		fail("initial", fmt.Sprintf("no terminal state is reachable from %q", g.initial))
	}

	if len(errs) > 0 {
		return &schema.AggregateError{Errors: errs}
	}
	return nil
}

func (g *Graph) reachesTerminal() bool {
	seen := map[string]bool{g.initial: true}
	queue := []string{g.initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.terminal[cur] {
			return true
		}
		for _, next := range g.edges[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Validate returns the target to use for a requested transition and whether the
// request was rewritten. An unknown target becomes the fallback state. A known
// target that is not a declared edge of from becomes the first declared edge of
// from, or the fallback when from has none.
func (g *Graph) Validate(from, to string) (string, bool) {
	if !g.known[to] {
		g.logger.Warn("Transition to unknown state rewritten",
			"from", from, "to", to, "rewritten", g.fallback)
		return g.fallback, true
	}

	next := g.edges[from]
	for _, n := range next {
		if n == to {
			return to, false
		}
	}

	target := g.fallback
	if len(next) > 0 {
		target = next[0]
	}
	g.logger.Warn("Transition not declared in graph rewritten",
		"from", from, "to", to, "rewritten", target)
	return target, true
}

// Has reports whether name is a registered state.
func (g *Graph) Has(name string) bool {
	return g.known[name]
}

// Next returns the declared outgoing edges of a state.
func (g *Graph) Next(from string) []string {
	return append([]string{}, g.edges[from]...)
}

// States returns the registered states in display order.
func (g *Graph) States() []string {
	return append([]string{}, g.states...)
}

// Initial returns the starting state.
func (g *Graph) Initial() string { return g.initial }

// Fallback returns the substitute state for unknown targets.
func (g *Graph) Fallback() string { return g.fallback }

// IsTerminal reports whether a conversation may finish in state.
func (g *Graph) IsTerminal(state string) bool {
	return g.terminal[state]
}
