package tools

import (
	"testing"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeRequest(t *testing.T) {
	t.Run("Stray Dog Without Confidence", func(t *testing.T) {
		res, err := AnalyzeRequest(map[string]any{"intent": "found", "animal_type": "dog"}, domain.NewContext())
		require.NoError(t, err)
		assert.Equal(t, "found", res.ContextUpdates[domain.FieldDetectedIntent])
		assert.Equal(t, "dog", res.ContextUpdates[domain.FieldAnimalType])
		assert.Equal(t, 1.0, res.Scores[domain.FieldAnimalType])
	})

	t.Run("Low Confidence Drops Intent", func(t *testing.T) {
		res, err := AnalyzeRequest(map[string]any{"intent": "lost", "animal_type": "cat", "confidence": 0.6}, domain.NewContext())
		require.NoError(t, err)
		assert.NotContains(t, res.ContextUpdates, domain.FieldDetectedIntent)
		assert.Equal(t, "cat", res.ContextUpdates[domain.FieldAnimalType])
		assert.Equal(t, 0.6, res.Scores[domain.FieldAnimalType])
	})

	t.Run("Urgency Maps To Urgency Level", func(t *testing.T) {
		res, err := AnalyzeRequest(map[string]any{"intent": "emergency", "urgency": "emergency", "location": "Elm St", "confidence": 0.95}, domain.NewContext())
		require.NoError(t, err)
		assert.Equal(t, "emergency", res.ContextUpdates[domain.FieldUrgencyLevel])
		assert.Equal(t, "Elm St", res.ContextUpdates[domain.FieldLocation])
		assert.Equal(t, "emergency", res.ContextUpdates[domain.FieldDetectedIntent])
	})
}

func TestParseDatetimeRequest(t *testing.T) {
	tests := []struct {
		name         string
		args         map[string]any
		wantResponse string
		wantSelected any
	}{
		{
			name:         "Date And Time",
			args:         map[string]any{"date": "2006-01-02", "time": "15:04", "confidence": 0.9},
			wantResponse: "I've scheduled your appointment for Monday, January 02 at 03:04 PM. Does this time work for you?",
			wantSelected: "2006-01-02T15:04:00",
		},
		{
			name:         "Date Only",
			args:         map[string]any{"date": "2030-03-04", "confidence": 0.9},
			wantResponse: "I've noted the date 2030-03-04. What time would work best for you?",
		},
		{
			name:         "Time Only",
			args:         map[string]any{"time": "09:30", "confidence": 0.9},
			wantResponse: "I've noted the time 09:30. What date would you prefer?",
		},
		{
			name:         "Low Confidence",
			args:         map[string]any{"date": "2030-03-04", "time": "09:30", "confidence": 0.4},
			wantResponse: "I couldn't quite understand that date/time. Could you please provide a specific date and time for your appointment?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseDatetimeRequest(tt.args, domain.NewContext())
			require.NoError(t, err)
			require.NotNil(t, res.Response)
			assert.Equal(t, tt.wantResponse, *res.Response)
			assert.Equal(t, domain.ActionContinue, res.NextAction)
			if tt.wantSelected != nil {
				assert.Equal(t, tt.wantSelected, res.ContextUpdates[domain.FieldSelectedDate])
			} else {
				assert.NotContains(t, res.ContextUpdates, domain.FieldSelectedDate)
			}
		})
	}
}

func TestParseDatetimeRequest_KeepsPreferences(t *testing.T) {
	res, err := ParseDatetimeRequest(map[string]any{"relative_reference": "tomorrow", "flexibility": "morning", "confidence": 0.2}, domain.NewContext())
	require.NoError(t, err)
	assert.Equal(t, "tomorrow", res.ContextUpdates[domain.FieldRelativeTimeRef])
	assert.Equal(t, "morning", res.ContextUpdates[domain.FieldTimeFlexibility])
}

func TestGenerateResponse(t *testing.T) {
	res, err := GenerateResponse(map[string]any{
		"response":        "Let's get your report started.",
		"next_action":     "transition",
		"next_state":      "REPORT_FOUND",
		"context_updates": map[string]any{"animal_type": "dog"},
	}, domain.NewContext())
	require.NoError(t, err)

	require.NotNil(t, res.Response)
	assert.Equal(t, "Let's get your report started.", *res.Response)
	assert.Equal(t, domain.ActionTransition, res.NextAction)
	require.NotNil(t, res.NextState)
	assert.Equal(t, "REPORT_FOUND", *res.NextState)
	assert.Equal(t, "dog", res.ContextUpdates["animal_type"])
}

func TestGenerateResponse_EmptyResponseIsNil(t *testing.T) {
	res, err := GenerateResponse(map[string]any{"response": "  ", "next_action": "continue"}, domain.NewContext())
	require.NoError(t, err)
	assert.Nil(t, res.Response)
	assert.Nil(t, res.NextState)
}

func TestGenerateResponse_UnknownAction(t *testing.T) {
	_, err := GenerateResponse(map[string]any{"next_action": "teleport"}, domain.NewContext())
	assert.Error(t, err)
}
