package flow

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/intake/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultFlow []byte

// Default returns the embedded animal control intake flow.
func Default() (*Definition, error) {
	return Parse(defaultFlow)
}

// LoadFile reads and validates a flow definition from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML flow definition.
func Parse(data []byte) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flow: %w", err)
	}

	var def Definition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &def,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}

	def.buildIndex()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// FieldTypes returns the declared field typing of the flow.
func (d *Definition) FieldTypes() schema.Schema {
	s, err := schema.ParseTypeMap(d.Fields)
	if err != nil {
		// Validate already rejected unknown types.
		return schema.Schema{}
	}
	return s
}

var knownKinds = map[string]bool{
	KindIntake: true, KindGreeting: true, KindSchedule: true, KindConfirmation: true,
	KindComplete: true, KindSummary: true, KindError: true,
}

// Validate checks the internal consistency of the definition: every referenced
// state exists, state names are unique and field types are known.
// Graph-level properties such as reachability are checked by the graph package.
func (d *Definition) Validate() error {
	if d.index == nil {
		d.buildIndex()
	}

	var errs []error
	fail := func(key, reason string, value any) {
		errs = append(errs, &schema.ValidationError{Key: key, Reason: reason, Value: value})
	}
	exists := func(key, name string) {
		if _, ok := d.index[name]; !ok {
			fail(key, fmt.Sprintf("unknown state %q", name), nil)
		}
	}

	if len(d.States) == 0 {
		fail("states", "at least one state is required", nil)
	}

	seen := make(map[string]bool, len(d.States))
	for _, s := range d.States {
		if s.Name == "" {
			fail("states", "state without name", nil)
			continue
		}
		if seen[s.Name] {
			fail("states."+s.Name, "duplicate state", nil)
		}
		seen[s.Name] = true

		if !knownKinds[s.Kind] {
			fail("states."+s.Name+".kind", fmt.Sprintf("unknown kind %q", s.Kind), nil)
		}
		for _, n := range s.Next {
			exists("states."+s.Name+".next", n)
		}
		if s.OnComplete != "" {
			exists("states."+s.Name+".on_complete", s.OnComplete)
			if !contains(s.Next, s.OnComplete) {
				fail("states."+s.Name+".on_complete", fmt.Sprintf("%q is not a declared edge", s.OnComplete), nil)
			}
		}
		for _, target := range sortedValues(s.Menu) {
			exists("states."+s.Name+".menu", target)
		}
		for _, target := range sortedValues(s.Intents) {
			exists("states."+s.Name+".intents", target)
		}
		for _, from := range sortedKeys(s.TransitionPrompts) {
			exists("states."+s.Name+".transition_prompts", from)
		}
	}

	required := map[string]string{"initial": d.Initial, "fallback": d.Fallback, "error": d.Error}
	for _, key := range []string{"initial", "fallback", "error"} {
		if required[key] == "" {
			fail(key, "required", nil)
			continue
		}
		exists(key, required[key])
	}
	if d.Summary != "" {
		exists("summary", d.Summary)
	}
	if len(d.Terminal) == 0 {
		fail("terminal", "at least one terminal state is required", nil)
	}
	for _, t := range d.Terminal {
		exists("terminal", t)
	}

	if _, err := schema.ParseTypeMap(d.Fields); err != nil {
		fail("fields", err.Error(), nil)
	}

	if len(errs) > 0 {
		return &schema.AggregateError{Errors: errs}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(m map[string]string) []string {
	keys := sortedKeys(m)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}
