package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"string", "string", "string", false},
		{"bool", "bool", "bool", false},
		{"number", "number", "number", false},
		{"int alias", "int", "number", false},
		{"unknown", "uuid", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name())
		})
	}
}

func TestBoolType_Coerce(t *testing.T) {
	tests := []struct {
		in      any
		want    any
		wantErr bool
	}{
		{true, true, false},
		{false, false, false},
		{"yes", true, false},
		{" No. ", false, false},
		{"Yep", true, false},
		{1.0, true, false},
		{0, false, false},
		{"Not sure", "unknown", false},
		{"sort of", nil, true},
		{2.0, nil, true},
	}
	for _, tt := range tests {
		got, err := Bool().Coerce(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestSchema_Coerce(t *testing.T) {
	s, err := ParseTypeMap(map[string]string{
		"animal_contained": "bool",
		"animal_weight":    "number",
		"owner_contact":    "string",
	})
	require.NoError(t, err)

	out, err := s.Coerce(map[string]any{
		"animal_contained": "no",
		"animal_weight":    "12.5",
		"owner_contact":    5550101.0,
		"animal_type":      "dog",
		"finder_can_keep":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, false, out["animal_contained"])
	assert.Equal(t, 12.5, out["animal_weight"])
	assert.Equal(t, "5550101", out["owner_contact"])
	assert.Equal(t, "dog", out["animal_type"], "undeclared fields pass through")
	assert.Contains(t, out, "finder_can_keep")
}

func TestSchema_CoerceReportsFailures(t *testing.T) {
	s := Schema{"animal_contained": Bool(), "animal_weight": Number()}

	out, err := s.Coerce(map[string]any{
		"animal_contained": "sort of",
		"animal_weight":    "heavy",
		"location":         "Main St",
	})
	require.Error(t, err)
	assert.Len(t, ValidationErrors(err), 2)
	assert.NotContains(t, out, "animal_contained")
	assert.Equal(t, "Main St", out["location"])
}

func TestParseTypeMap_Invalid(t *testing.T) {
	_, err := ParseTypeMap(map[string]string{"x": "date"})
	assert.Error(t, err)
}
