package ports

import (
	"context"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// CaseStore is the business collaborator consumed by individual conversation states.
// The orchestration core never calls it.
type CaseStore interface {
	// FindByContact returns the cases reported with the given contact, newest first.
	FindByContact(ctx context.Context, contact string) ([]domain.CaseRecord, error)

	// CreateRecord stores a new case and returns it with its assigned ID and timestamps.
	CreateRecord(ctx context.Context, record domain.CaseRecord) (*domain.CaseRecord, error)

	// CheckAvailability lists appointment slots for the given number of days starting at from.
	CheckAvailability(ctx context.Context, from time.Time, days int) ([]domain.Slot, error)

	// Get returns a case by ID or domain.ErrCaseNotFound.
	Get(ctx context.Context, id string) (*domain.CaseRecord, error)

	// FindMatches returns open cases of the complementary type (lost vs found) for the
	// same animal type sharing at least one location word.
	FindMatches(ctx context.Context, record domain.CaseRecord) ([]domain.CaseRecord, error)
}
