package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCallResult_Merge(t *testing.T) {
	first := ToolCallResult{
		ContextUpdates: map[string]any{"animal_type": "dog", "location": "park"},
		Scores:         map[string]float64{"animal_type": 0.6},
		Response:       StringPtr("first"),
		NextAction:     ActionTransition,
		NextState:      StringPtr(StateReportFound),
	}
	second := ToolCallResult{
		ContextUpdates: map[string]any{"animal_type": "cat"},
		Response:       StringPtr("second"),
	}

	got := first.Merge(second)

	assert.Equal(t, map[string]any{"animal_type": "cat", "location": "park"}, got.ContextUpdates)
	assert.NotContains(t, got.Scores, "animal_type")
	assert.Equal(t, "second", *got.Response)
	assert.Equal(t, StateReportFound, *got.NextState, "nil next state does not erase an earlier one")
	assert.Equal(t, ActionTransition, got.NextAction, "continue does not erase an earlier action")
}

func TestToolCallResult_MergeEmpty(t *testing.T) {
	got := ToolCallResult{}.Merge(ToolCallResult{})
	assert.Nil(t, got.ContextUpdates)
	assert.Nil(t, got.Response)
	assert.Equal(t, ActionContinue, got.NextAction)
}

func TestParseNextAction(t *testing.T) {
	tests := []struct {
		in   string
		want NextAction
		ok   bool
	}{
		{"transition", ActionTransition, true},
		{"COMPLETE", ActionComplete, true},
		{"", ActionContinue, true},
		{"error", ActionError, true},
		{"jump", ActionContinue, false},
	}
	for _, tt := range tests {
		got, ok := ParseNextAction(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
