package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(sessionID string) *domain.Snapshot {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Snapshot{
		SessionID: sessionID,
		CallID:    "call-" + sessionID,
		State:     domain.StateGreeting,
		Context: []domain.Entry{
			{Key: domain.FieldAnimalType, Value: "dog", Confidence: 0.9},
			{Key: domain.FieldAnimalContained, Value: false, Confidence: 1},
		},
		History: []domain.HistoryEntry{
			{Speaker: domain.SpeakerSystem, Message: "Hello!", Timestamp: now},
		},
		Retries:   map[string]int{domain.StateGreeting: 1},
		Sequence:  3,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore
// implementation adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(sessionID)

		err := store.Save(ctx, sessionID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.State, loaded.State)
		assert.Equal(t, snap.CallID, loaded.CallID)
		assert.Equal(t, snap.Sequence, loaded.Sequence)
		require.Len(t, loaded.Context, 2)
		assert.Equal(t, domain.FieldAnimalType, loaded.Context[0].Key, "context order must survive persistence")
		assert.Equal(t, "dog", loaded.Context[0].Value)
		assert.Equal(t, false, loaded.Context[1].Value, "false is a value, not an absence")
		assert.Equal(t, 1, loaded.Retries[domain.StateGreeting])
		require.Len(t, loaded.History, 1)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, contractSnapshot(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunCaseStoreContract verifies that a CaseStore implementation behaves as the
// conversation states expect.
func RunCaseStoreContract(t *testing.T, store CaseStore) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		created, err := store.CreateRecord(ctx, domain.CaseRecord{
			Type:            domain.CaseEmergency,
			AnimalType:      "dog",
			Location:        "Oak Street",
			ReporterContact: "555-0101",
			Details:         map[string]any{"animal_contained": false},
		})
		require.NoError(t, err)
		assert.Regexp(t, `^AC-\d{8}-\d{4}$`, created.ID)
		assert.Equal(t, domain.CaseSubmitted, created.Status)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "dog", got.AnimalType)
		assert.Equal(t, domain.CaseEmergency, got.Type)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "AC-00000000-0000")
		assert.ErrorIs(t, err, domain.ErrCaseNotFound)
	})

	t.Run("Find By Contact", func(t *testing.T) {
		_, err := store.CreateRecord(ctx, domain.CaseRecord{Type: domain.CaseLost, AnimalType: "cat", ReporterContact: "contract@example.com"})
		require.NoError(t, err)

		found, err := store.FindByContact(ctx, "contract@example.com")
		require.NoError(t, err)
		require.NotEmpty(t, found)
		assert.Equal(t, "cat", found[0].AnimalType)

		none, err := store.FindByContact(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Find Matches", func(t *testing.T) {
		_, err := store.CreateRecord(ctx, domain.CaseRecord{Type: domain.CaseLost, AnimalType: "parrot", Location: "Riverside Park"})
		require.NoError(t, err)

		matches, err := store.FindMatches(ctx, domain.CaseRecord{Type: domain.CaseFound, AnimalType: "Parrot", Location: "near riverside"})
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, domain.CaseLost, matches[0].Type)

		none, err := store.FindMatches(ctx, domain.CaseRecord{Type: domain.CaseFound, AnimalType: "parrot", Location: "downtown"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Check Availability", func(t *testing.T) {
		from := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
		slots, err := store.CheckAvailability(ctx, from, 2)
		require.NoError(t, err)
		require.NotEmpty(t, slots)
		for _, s := range slots {
			assert.False(t, s.Start.Before(from))
			assert.True(t, s.Start.Before(from.AddDate(0, 0, 2)))
		}
	})
}
