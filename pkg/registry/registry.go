/*
Package registry declares the tools offered to the LLM.

A Registry holds the JSON-schema definition of every tool and, per conversation
state, the ordered list of tools eligible for that state's turns. States never
hard-code tool availability: they ask the registry with ForState. The registry
also validates the arguments of a returned tool call against the tool schema.

The built-in animal control tools ship embedded under schemas/.
*/
package registry

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var builtin embed.FS

type entry struct {
	schema   domain.ToolSchema
	compiled *jsonschema.Schema
}

// Registry manages the available tool schemas.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]entry
	states   map[string][]string
	defaults []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:  make(map[string]entry),
		states: make(map[string][]string),
	}
}

// NewBuiltin creates a registry holding the embedded animal control tools.
// stateNames, when given, become the enum of every "next_state" parameter
// offered to the LLM. Argument validation does not enforce that enum: a state
// the LLM invents is rewritten by the transition graph instead of failing the turn.
func NewBuiltin(stateNames ...string) (*Registry, error) {
	r := New()
	files, err := builtin.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := builtin.ReadFile(path.Join("schemas", f.Name()))
		if err != nil {
			return nil, err
		}
		var s domain.ToolSchema
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode tool schema %s: %w", f.Name(), err)
		}
		validation := s.Parameters
		if len(stateNames) > 0 {
			var offered domain.ToolSchema
			if err := json.Unmarshal(data, &offered); err != nil {
				return nil, err
			}
			restrictNextState(offered.Parameters, stateNames)
			s.Parameters = offered.Parameters
		}
		if err := r.register(s, validation); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func restrictNextState(params map[string]any, states []string) {
	props, ok := params["properties"].(map[string]any)
	if !ok {
		return
	}
	prop, ok := props["next_state"].(map[string]any)
	if !ok {
		return
	}
	enum := make([]any, len(states))
	for i, s := range states {
		enum[i] = s
	}
	prop["enum"] = enum
}

// Register compiles and adds a tool schema.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(s domain.ToolSchema) error {
	return r.register(s, s.Parameters)
}

func (r *Registry) register(s domain.ToolSchema, validation map[string]any) error {
	if s.Name == "" {
		return fmt.Errorf("tool schema without name")
	}
	if s.Parameters == nil {
		s.Parameters = map[string]any{"type": "object"}
	}
	if validation == nil {
		validation = s.Parameters
	}
	raw, err := json.Marshal(validation)
	if err != nil {
		return fmt.Errorf("failed to encode schema for tool %s: %w", s.Name, err)
	}
	compiled, err := jsonschema.CompileString(s.Name+".json", string(raw))
	if err != nil {
		return fmt.Errorf("invalid schema for tool %s: %w", s.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[s.Name] = entry{schema: s, compiled: compiled}
	return nil
}

// Assign declares the ordered tools eligible in a state.
func (r *Registry) Assign(state string, tools ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if _, ok := r.tools[t]; !ok {
			return fmt.Errorf("state %s: tool not found: %s", state, t)
		}
	}
	r.states[state] = append([]string{}, tools...)
	return nil
}

// SetDefault declares the tools offered in states without an explicit assignment.
func (r *Registry) SetDefault(tools ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if _, ok := r.tools[t]; !ok {
			return fmt.Errorf("default tools: tool not found: %s", t)
		}
	}
	r.defaults = append([]string{}, tools...)
	return nil
}

// ForState returns the ordered tool schemas eligible for a turn in state.
func (r *Registry) ForState(state string) []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, ok := r.states[state]
	if !ok {
		names = r.defaults
	}
	out := make([]domain.ToolSchema, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n].schema)
	}
	return out
}

// Get returns the schema of the named tool.
func (r *Registry) Get(name string) (domain.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.schema, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks tool call arguments against the tool schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return e.compiled.Validate(decoded)
}
