package registry

import (
	"testing"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuiltin(t *testing.T) {
	r, err := NewBuiltin(domain.StateGreeting, domain.StateReportFound)
	require.NoError(t, err)

	assert.Equal(t, []string{"analyze_request", "generate_response", "parse_datetime_request", "update_context"}, r.Names())

	gen, ok := r.Get("generate_response")
	require.True(t, ok)
	props := gen.Parameters["properties"].(map[string]any)
	assert.Equal(t, []any{domain.StateGreeting, domain.StateReportFound}, props["next_state"].(map[string]any)["enum"])
}

func TestRegistry_ForState(t *testing.T) {
	r, err := NewBuiltin()
	require.NoError(t, err)

	require.NoError(t, r.Assign(domain.StateScheduleSurrender, "parse_datetime_request", "update_context", "generate_response"))
	require.NoError(t, r.SetDefault("update_context", "generate_response"))

	var names []string
	for _, s := range r.ForState(domain.StateScheduleSurrender) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"parse_datetime_request", "update_context", "generate_response"}, names)

	names = nil
	for _, s := range r.ForState(domain.StateCaseComplete) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"update_context", "generate_response"}, names)
}

func TestRegistry_AssignUnknownTool(t *testing.T) {
	r := New()
	err := r.Assign(domain.StateGreeting, "summon_dragon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not found: summon_dragon")
}

func TestRegistry_Validate(t *testing.T) {
	r, err := NewBuiltin(domain.StateGreeting, domain.StateReportFound)
	require.NoError(t, err)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"valid analyze", "analyze_request", map[string]any{"intent": "found", "animal_type": "dog"}, false},
		{"missing intent", "analyze_request", map[string]any{"animal_type": "dog"}, true},
		{"bad enum", "analyze_request", map[string]any{"intent": "adopt"}, true},
		{"confidence out of range", "analyze_request", map[string]any{"intent": "lost", "confidence": 3.0}, true},
		{"update without payload", "update_context", nil, true},
		{"update wrong type", "update_context", map[string]any{"context_updates": "dog"}, true},
		{"generate valid", "generate_response", map[string]any{"next_action": "transition", "next_state": domain.StateReportFound}, false},
		{"generate unknown state", "generate_response", map[string]any{"next_action": "transition", "next_state": "NONEXISTENT"}, false},
		{"generate bad action", "generate_response", map[string]any{"next_action": "teleport"}, true},
		{"unknown tool", "summon_dragon", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.tool, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_RegisterRejectsInvalidSchema(t *testing.T) {
	r := New()
	err := r.Register(domain.ToolSchema{Name: "broken", Parameters: map[string]any{"type": 42}})
	assert.Error(t, err)

	err = r.Register(domain.ToolSchema{})
	assert.Error(t, err)
}
