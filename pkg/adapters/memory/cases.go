package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// Appointment grid offered by CheckAvailability.
const (
	FirstSlotHour = 9
	LastSlotHour  = 16
)

// CaseStats summarizes the content of a case store.
type CaseStats struct {
	Total    int                       `json:"total"`
	ByType   map[domain.CaseType]int   `json:"by_type"`
	ByStatus map[domain.CaseStatus]int `json:"by_status"`
}

// CaseStore implements ports.CaseStore in memory.
// Safe for concurrent use.
type CaseStore struct {
	mu    sync.RWMutex
	cases map[string]domain.CaseRecord
	seq   int
	clock func() time.Time
}

// CaseOption configures a CaseStore.
type CaseOption func(*CaseStore)

// WithClock sets the clock used to stamp new cases.
func WithClock(clock func() time.Time) CaseOption {
	return func(s *CaseStore) { s.clock = clock }
}

// WithSamples seeds the store with the sample cases.
func WithSamples() CaseOption {
	return func(s *CaseStore) {
		for _, c := range SampleCases() {
			s.cases[c.ID] = c
		}
	}
}

// NewCaseStore creates an empty case store.
func NewCaseStore(opts ...CaseOption) *CaseStore {
	s := &CaseStore{
		cases: make(map[string]domain.CaseRecord),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SampleCases returns the cases a demo database starts with.
func SampleCases() []domain.CaseRecord {
	day := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	return []domain.CaseRecord{
		{
			ID: "AC-20240115-0001", Type: domain.CaseLost, AnimalType: "dog",
			Location: "Central Park", ReporterName: "Maria Lopez", ReporterContact: "555-0123",
			Description: "Golden retriever, red collar", Status: domain.CaseSubmitted,
			Details: map[string]any{"has_collar": true}, CreatedAt: day, UpdatedAt: day,
		},
		{
			ID: "AC-20240115-0002", Type: domain.CaseFound, AnimalType: "cat",
			Location: "Oak Street and 5th Avenue", ReporterName: "James Chen", ReporterContact: "555-0456",
			Description: "Grey tabby, no collar", Status: domain.CaseInProgress,
			Details: map[string]any{"finder_can_keep": true}, CreatedAt: day.Add(2 * time.Hour), UpdatedAt: day.Add(2 * time.Hour),
		},
		{
			ID: "AC-20240116-0003", Type: domain.CaseEmergency, AnimalType: "deer",
			Location: "Highway 9 mile marker 12", ReporterContact: "555-0789",
			Description: "Injured on the shoulder", Status: domain.CaseResolved,
			Details: map[string]any{"animal_condition": "critical"}, CreatedAt: day.AddDate(0, 0, 1), UpdatedAt: day.AddDate(0, 0, 1),
		},
	}
}

// CreateRecord stores a new case with a generated ID of the form AC-YYYYMMDD-NNNN.
// A surrender appointment must fall on a free slot.
func (s *CaseStore) CreateRecord(ctx context.Context, rec domain.CaseRecord) (*domain.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Appointment != nil && s.booked(*rec.Appointment) {
		return nil, fmt.Errorf("appointment %s: %w", rec.Appointment.Format(time.RFC3339), domain.ErrSlotUnavailable)
	}

	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.CaseSubmitted
	}
	if rec.Type == "" {
		rec.Type = domain.CaseGeneral
	}

	for {
		s.seq++
		rec.ID = fmt.Sprintf("AC-%s-%04d", rec.CreatedAt.Format("20060102"), s.seq%10000)
		if _, taken := s.cases[rec.ID]; !taken {
			break
		}
	}
	rec.Details = domain.CopyMap(rec.Details)
	s.cases[rec.ID] = rec

	out := rec
	return &out, nil
}

// Get returns the case with the given ID.
func (s *CaseStore) Get(ctx context.Context, id string) (*domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cases[id]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	return &rec, nil
}

// FindByContact returns the cases reported from contact, newest first.
func (s *CaseStore) FindByContact(ctx context.Context, contact string) ([]domain.CaseRecord, error) {
	contact = strings.TrimSpace(strings.ToLower(contact))
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CaseRecord
	for _, c := range s.cases {
		if contact != "" && strings.ToLower(c.ReporterContact) == contact {
			out = append(out, c)
		}
	}
	sortNewest(out)
	return out, nil
}

// FindMatches returns the open reports of the opposite kind (lost for found, found
// for lost) about the same animal type near the same location.
func (s *CaseStore) FindMatches(ctx context.Context, rec domain.CaseRecord) ([]domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CaseRecord
	for _, c := range s.cases {
		if c.ID == rec.ID || !Matches(rec, c) {
			continue
		}
		out = append(out, c)
	}
	sortNewest(out)
	return out, nil
}

// CheckAvailability lists the appointment slots of the given days, skipping
// Sundays. A slot is unavailable once a case holds it.
func (s *CaseStore) CheckAvailability(ctx context.Context, from time.Time, days int) ([]domain.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	var slots []domain.Slot
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if day.Weekday() == time.Sunday {
			continue
		}
		for h := FirstSlotHour; h <= LastSlotHour; h++ {
			at := day.Add(time.Duration(h) * time.Hour)
			if at.Before(from) {
				continue
			}
			slots = append(slots, domain.Slot{Start: at, Available: !s.booked(at)})
		}
	}
	return slots, nil
}

// Stats returns case counts by type and status.
func (s *CaseStore) Stats(ctx context.Context) CaseStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CaseStats{
		Total:    len(s.cases),
		ByType:   make(map[domain.CaseType]int),
		ByStatus: make(map[domain.CaseStatus]int),
	}
	for _, c := range s.cases {
		stats.ByType[c.Type]++
		stats.ByStatus[c.Status]++
	}
	return stats
}

func (s *CaseStore) booked(at time.Time) bool {
	for _, c := range s.cases {
		if c.Appointment != nil && c.Appointment.Equal(at) && c.Status != domain.CaseCancelled {
			return true
		}
	}
	return false
}

// Matches reports whether candidate is a possible match for rec: the opposite
// lost/found kind, the same animal type, an open status and at least one
// significant location word in common.
func Matches(rec, candidate domain.CaseRecord) bool {
	var want domain.CaseType
	switch rec.Type {
	case domain.CaseFound:
		want = domain.CaseLost
	case domain.CaseLost:
		want = domain.CaseFound
	default:
		return false
	}
	if candidate.Type != want {
		return false
	}
	if candidate.Status != domain.CaseSubmitted && candidate.Status != domain.CaseInProgress {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(rec.AnimalType), strings.TrimSpace(candidate.AnimalType)) {
		return false
	}
	words := locationWords(rec.Location)
	for w := range locationWords(candidate.Location) {
		if words[w] {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "and": true, "near": true, "by": true, "at": true, "on": true,
	"in": true, "of": true, "street": true, "st": true, "avenue": true, "ave": true, "road": true, "park": true,
}

func locationWords(location string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(location), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		words[w] = true
	}
	return words
}

func sortNewest(cases []domain.CaseRecord) {
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].ID > cases[j].ID
		}
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
}
