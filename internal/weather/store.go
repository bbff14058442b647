package weather

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no observation matches a requested id or location.
var ErrNotFound = errors.New("weather observation not found")

// ListQuery selects a page of observations, optionally filtered by location.
// Callers are expected to pass bounds-checked values (page >= 1, 1 <= size <= 100).
type ListQuery struct {
	Page int
	Size int

	// Case-insensitive exact-match filters; empty means no filter.
	City    string
	Country string
}

// Offset returns the row offset for the page window.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Size
}

// Store is the persistence contract for observations. Implementations do not
// touch the audit log; recording actions is the caller's concern.
type Store interface {
	// Create persists a new observation, filling DataTimestamp with the
	// current time when the input carries none.
	Create(ctx context.Context, input ObservationInput) (*Observation, error)

	// GetByID returns the observation or ErrNotFound.
	GetByID(ctx context.Context, id uint) (*Observation, error)

	// GetByLocation returns the most recent observation (by DataTimestamp)
	// matching city case-insensitively, and country case-insensitively when
	// non-empty. Absence is reported as ErrNotFound.
	GetByLocation(ctx context.Context, city, country string) (*Observation, error)

	// List returns one page ordered by DataTimestamp descending, plus the
	// total count matching the filter independently of the page window.
	List(ctx context.Context, q ListQuery) ([]Observation, int64, error)

	// Update applies the non-nil patch fields, bumps UpdatedAt, and returns
	// the updated record or ErrNotFound.
	Update(ctx context.Context, id uint, patch ObservationPatch) (*Observation, error)

	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id uint) (bool, error)

	// DistinctLocations returns the unique "City, Country" strings present
	// in the store, in no particular order.
	DistinctLocations(ctx context.Context) ([]string, error)
}

// Fetcher acquires an observation for a location query ("City" or
// "City,CountryCode") from an external source, degrading to synthetic data on
// provider failure. A nil result without error only occurs for queries
// malformed beyond recovery.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*ObservationInput, error)
}
