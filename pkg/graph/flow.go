package graph

import "github.com/aretw0/intake/pkg/flow"

// FromFlow builds the graph declared by a flow definition.
func FromFlow(def *flow.Definition, opts ...Option) (*Graph, error) {
	return New(Config{
		States:   def.StateNames(),
		Edges:    def.Edges(),
		Initial:  def.Initial,
		Fallback: def.Fallback,
		Terminal: def.Terminal,
	}, opts...)
}
