package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseStore_Contract(t *testing.T) {
	ports.RunCaseStoreContract(t, memory.NewCaseStore(memory.WithSamples()))
}

func TestCaseStore_IDFormat(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }
	store := memory.NewCaseStore(memory.WithClock(clock))

	first, err := store.CreateRecord(context.Background(), domain.CaseRecord{Type: domain.CaseFound, AnimalType: "dog"})
	require.NoError(t, err)
	second, err := store.CreateRecord(context.Background(), domain.CaseRecord{Type: domain.CaseFound, AnimalType: "cat"})
	require.NoError(t, err)

	assert.Equal(t, "AC-20250309-0001", first.ID)
	assert.Equal(t, "AC-20250309-0002", second.ID)
}

func TestCaseStore_MatchesSamples(t *testing.T) {
	store := memory.NewCaseStore(memory.WithSamples())

	matches, err := store.FindMatches(context.Background(), domain.CaseRecord{
		Type: domain.CaseFound, AnimalType: "Dog", Location: "north side of central park",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "AC-20240115-0001", matches[0].ID)

	none, err := store.FindMatches(context.Background(), domain.CaseRecord{
		Type: domain.CaseEmergency, AnimalType: "dog", Location: "central park",
	})
	require.NoError(t, err)
	assert.Empty(t, none, "only lost and found reports are matched")
}

func TestCaseStore_Availability(t *testing.T) {
	store := memory.NewCaseStore()
	ctx := context.Background()
	monday := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

	slots, err := store.CheckAvailability(ctx, monday, 7)
	require.NoError(t, err)
	perDay := memory.LastSlotHour - memory.FirstSlotHour + 1
	assert.Len(t, slots, 6*perDay, "Sundays are closed")

	at := monday.Add(10 * time.Hour)
	_, err = store.CreateRecord(ctx, domain.CaseRecord{Type: domain.CaseSurrender, AnimalType: "cat", Appointment: &at})
	require.NoError(t, err)

	slots, err = store.CheckAvailability(ctx, monday, 1)
	require.NoError(t, err)
	for _, s := range slots {
		assert.Equal(t, !s.Start.Equal(at), s.Available, s.Start.String())
	}

	_, err = store.CreateRecord(ctx, domain.CaseRecord{Type: domain.CaseSurrender, AnimalType: "dog", Appointment: &at})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCaseStore_Stats(t *testing.T) {
	store := memory.NewCaseStore(memory.WithSamples())
	stats := store.Stats(context.Background())

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByType[domain.CaseLost])
	assert.Equal(t, 1, stats.ByStatus[domain.CaseResolved])
}
