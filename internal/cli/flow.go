package cli

import (
	"errors"
	"fmt"

	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/graph"
	"github.com/aretw0/intake/pkg/registry"
)

// LoadFlow returns the flow at path, or the embedded one when path is empty.
func LoadFlow(path string) (*flow.Definition, error) {
	if path == "" {
		return flow.Default()
	}
	return flow.LoadFile(path)
}

// ValidateFlow loads a flow and checks everything the engine relies on: the
// transition graph and the tools every state offers to the LLM.
func ValidateFlow(path string) (*flow.Definition, *graph.Graph, error) {
	def, err := LoadFlow(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := graph.FromFlow(def)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid transition graph: %w", err)
	}
	tools, err := registry.NewBuiltin(def.StateNames()...)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tool schemas: %w", err)
	}

	var errs []error
	for _, state := range def.StateNames() {
		for _, name := range def.ToolsFor(state) {
			if _, ok := tools.Get(name); !ok {
				errs = append(errs, fmt.Errorf("state %s offers unknown tool %q", state, name))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return def, g, nil
}
