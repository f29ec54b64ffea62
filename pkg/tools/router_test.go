package tools

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	def, err := flow.Default()
	require.NoError(t, err)
	reg, err := registry.NewBuiltin(def.StateNames()...)
	require.NoError(t, err)

	base := []Option{WithAliases(def.Aliases), WithFieldTypes(def.FieldTypes())}
	r, err := NewRouter(reg, append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestRouter_UnknownToolIsNoop(t *testing.T) {
	var buf bytes.Buffer
	r := newTestRouter(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	res, err := r.Dispatch("summon_dragon", map[string]any{"x": 1}, domain.NewContext())
	require.NoError(t, err)
	assert.Nil(t, res.ContextUpdates)
	assert.Nil(t, res.Response)
	assert.Equal(t, domain.ActionContinue, res.NextAction)
	assert.Contains(t, buf.String(), "summon_dragon")
}

func TestRouter_CanonicalizesAliases(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		alias     string
		canonical string
	}{
		{"condition", "animal_condition"},
		{"health_status", "animal_condition"},
		{"severity", "animal_condition"},
		{"emergency_status", "urgency_level"},
		{"description", "animal_description"},
		{"contact", "owner_contact"},
		{"phone", "owner_contact"},
		{"email", "owner_contact"},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			res, err := r.Dispatch("update_context", map[string]any{
				"context_updates": map[string]any{tt.alias: "value"},
			}, domain.NewContext())
			require.NoError(t, err)
			assert.Equal(t, map[string]any{tt.canonical: "value"}, res.ContextUpdates)
		})
	}
}

func TestRouter_CanonicalKeyWinsOverAlias(t *testing.T) {
	r := newTestRouter(t)

	got := r.Canonicalize(map[string]any{"animal_condition": "limping", "severity": "high", "animal_type": "dog"})
	assert.Equal(t, map[string]any{"animal_condition": "limping", "animal_type": "dog"}, got)
	assert.Equal(t, "animal_type", r.CanonicalName("animal_type"))
}

func TestRouter_CoercesFieldTypes(t *testing.T) {
	r := newTestRouter(t)

	res, err := r.Dispatch("update_context", map[string]any{
		"context_updates": map[string]any{"contained": "no", "finder_can_keep": "maybe later"},
	}, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, false, res.ContextUpdates["animal_contained"])
	assert.NotContains(t, res.ContextUpdates, "finder_can_keep", "uncoercible values are dropped")
}

func TestRouter_SchemaViolationIsProtocolError(t *testing.T) {
	r := newTestRouter(t)

	_, err := r.Dispatch("analyze_request", map[string]any{"intent": "adopt-a-dragon"}, domain.NewContext())
	require.Error(t, err)
	assert.True(t, domain.IsProtocol(err))

	var perr *domain.LLMProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "analyze_request", perr.Tool)
}

func TestRouter_CanonicalizesScores(t *testing.T) {
	r := newTestRouter(t, WithHandler("update_context", func(args map[string]any, _ domain.View) (domain.ToolCallResult, error) {
		return domain.ToolCallResult{
			ContextUpdates: map[string]any{"severity": "high"},
			Scores:         map[string]float64{"severity": 0.4},
		}, nil
	}))

	res, err := r.Dispatch("update_context", map[string]any{"context_updates": map[string]any{}}, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, 0.4, res.Scores["animal_condition"])
}

func TestNewRouter_RequiresHandlerForEveryDeclaredTool(t *testing.T) {
	reg, err := registry.NewBuiltin()
	require.NoError(t, err)
	require.NoError(t, reg.Register(domain.ToolSchema{Name: "lookup_shelter"}))

	_, err = NewRouter(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup_shelter")

	_, err = NewRouter(reg, WithHandler("lookup_shelter", func(map[string]any, domain.View) (domain.ToolCallResult, error) {
		return domain.ToolCallResult{}, nil
	}))
	assert.NoError(t, err)
}
