package flow

import (
	"github.com/aretw0/intake/pkg/domain"
)

// State kinds select the behavior wired to a state descriptor.
const (
	KindIntake       = "intake"
	KindGreeting     = "greeting"
	KindSchedule     = "schedule"
	KindConfirmation = "confirmation"
	KindComplete     = "complete"
	KindSummary      = "summary"
	KindError        = "error"
)

// StateDef is the immutable descriptor of one conversation state.
type StateDef struct {
	Name              string            `mapstructure:"name"`
	Kind              string            `mapstructure:"kind"`
	Prompt            string            `mapstructure:"prompt"`
	Entry             string            `mapstructure:"entry"`
	Closing           string            `mapstructure:"closing"`
	Required          []string          `mapstructure:"required"`
	Tools             []string          `mapstructure:"tools"`
	Next              []string          `mapstructure:"next"`
	OnComplete        string            `mapstructure:"on_complete"`
	Transient         []string          `mapstructure:"transient"`
	TransitionPrompts map[string]string `mapstructure:"transition_prompts"`
	Menu              map[string]string `mapstructure:"menu"`
	Intents           map[string]string `mapstructure:"intents"`
	Messages          map[string]string `mapstructure:"messages"`
	EndKeywords       []string          `mapstructure:"end_keywords"`
	RestartKeywords   []string          `mapstructure:"restart_keywords"`
}

// Definition is a complete conversation flow.
type Definition struct {
	Name               string                `mapstructure:"name"`
	Initial            string                `mapstructure:"initial"`
	Fallback           string                `mapstructure:"fallback"`
	Error              string                `mapstructure:"error"`
	Summary            string                `mapstructure:"summary"`
	Terminal           []string              `mapstructure:"terminal"`
	Transient          []string              `mapstructure:"transient"`
	DefaultTools       []string              `mapstructure:"default_tools"`
	Persona            string                `mapstructure:"persona"`
	DefaultEntryPrompt string                `mapstructure:"default_entry_prompt"`
	Aliases            map[string]string     `mapstructure:"aliases"`
	Fields             map[string]string     `mapstructure:"fields"`
	Rules              []domain.DerivedRule  `mapstructure:"rules"`
	Satisfies          map[string][][]string `mapstructure:"satisfies"`
	States             []StateDef            `mapstructure:"states"`

	index map[string]int
}

// State returns the descriptor of the named state.
func (d *Definition) State(name string) (StateDef, bool) {
	i, ok := d.index[name]
	if !ok {
		return StateDef{}, false
	}
	return d.States[i], true
}

// StateNames returns the state names in declaration order.
func (d *Definition) StateNames() []string {
	names := make([]string, len(d.States))
	for i, s := range d.States {
		names[i] = s.Name
	}
	return names
}

// Edges returns the declared transition table.
func (d *Definition) Edges() map[string][]string {
	edges := make(map[string][]string, len(d.States))
	for _, s := range d.States {
		next := make([]string, len(s.Next))
		copy(next, s.Next)
		edges[s.Name] = next
	}
	return edges
}

// ToolsFor returns the ordered tool names offered to the LLM in the named state.
func (d *Definition) ToolsFor(name string) []string {
	if s, ok := d.State(name); ok && len(s.Tools) > 0 {
		return s.Tools
	}
	return d.DefaultTools
}

// TransientKeys returns the keys a state clears on exit: the flow-wide transient
// keys followed by the state's own.
func (d *Definition) TransientKeys(name string) []string {
	keys := append([]string{}, d.Transient...)
	if s, ok := d.State(name); ok {
		keys = append(keys, s.Transient...)
	}
	return keys
}

func (d *Definition) buildIndex() {
	d.index = make(map[string]int, len(d.States))
	for i := range d.States {
		if d.States[i].Kind == "" {
			d.States[i].Kind = KindIntake
		}
		if _, dup := d.index[d.States[i].Name]; !dup {
			d.index[d.States[i].Name] = i
		}
	}
}
