package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	def, err := Default()
	require.NoError(t, err)

	assert.Equal(t, domain.StateGreeting, def.Initial)
	assert.Equal(t, domain.StateCaseConfirmation, def.Fallback)
	assert.Equal(t, domain.StateErrorHandling, def.Error)
	assert.Equal(t, domain.StateFinalSummary, def.Summary)
	assert.Len(t, def.States, 11)

	greeting, ok := def.State(domain.StateGreeting)
	require.True(t, ok)
	assert.Equal(t, KindGreeting, greeting.Kind)
	assert.Equal(t, domain.StateReportFound, greeting.Menu["2"])
	assert.Equal(t, domain.StateReportFound, greeting.Intents["found"])

	emergency, ok := def.State(domain.StateEmergencyCase)
	require.True(t, ok)
	assert.Equal(t, KindIntake, emergency.Kind, "kind defaults to intake")
	assert.Equal(t, []string{"animal_type", "animal_condition", "location", "animal_contained", "owner_contact"}, emergency.Required)

	assert.Equal(t, "animal_condition", def.Aliases["severity"])
	assert.Equal(t, [][]string{{"owner_name", "owner_phone"}, {"contact_info"}, {"phone_number"}, {"email"}}, def.Satisfies["owner_contact"])
	require.Len(t, def.Rules, 4)
	assert.Equal(t, "high", def.Rules[0].TriggerValue)
}

func TestDefinition_ToolsFor(t *testing.T) {
	def, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"parse_datetime_request", "update_context", "generate_response"}, def.ToolsFor(domain.StateScheduleSurrender))
	assert.Equal(t, []string{"update_context", "generate_response"}, def.ToolsFor(domain.StateCaseConfirmation))
	assert.Equal(t, []string{"analyze_request", "update_context", "generate_response"}, def.ToolsFor(domain.StateReportLost))
	assert.Equal(t, def.DefaultTools, def.ToolsFor("UNKNOWN"))
}

func TestDefinition_TransientKeys(t *testing.T) {
	def, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []string{"message"}, def.TransientKeys(domain.StateGreeting))
	assert.Equal(t, []string{"message", "error_message"}, def.TransientKeys(domain.StateErrorHandling))
}

func TestDefinition_FieldTypes(t *testing.T) {
	def, err := Default()
	require.NoError(t, err)

	types := def.FieldTypes()
	require.Contains(t, types, "animal_contained")
	assert.Equal(t, "bool", types["animal_contained"].Name())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "Unknown Edge Target",
			yaml: `
initial: A
fallback: A
error: A
terminal: [A]
states:
  - name: A
    next: [B]
`,
			want: `unknown state "B"`,
		},
		{
			name: "On Complete Not An Edge",
			yaml: `
initial: A
fallback: A
error: A
terminal: [B]
states:
  - name: A
    next: []
    on_complete: B
  - name: B
`,
			want: "is not a declared edge",
		},
		{
			name: "Unknown Field Type",
			yaml: `
initial: A
fallback: A
error: A
terminal: [A]
fields: {x: date}
states:
  - name: A
`,
			want: "unsupported type",
		},
		{
			name: "Missing Initial",
			yaml: `
fallback: A
error: A
terminal: [A]
states:
  - name: A
`,
			want: `field "initial": required`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NotEmpty(t, schema.ValidationErrors(err))
		})
	}
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte(`
initial: A
fallback: A
error: A
terminal: [A]
colour: blue
states:
  - name: A
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tiny
initial: START
fallback: END
error: END
terminal: [END]
states:
  - name: START
    kind: greeting
    entry: "hi"
    next: [END]
  - name: END
    kind: summary
`), 0o644))

	def, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", def.Name)
	assert.Equal(t, []string{"START", "END"}, def.StateNames())
	assert.Equal(t, map[string][]string{"START": {"END"}, "END": {}}, def.Edges())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
