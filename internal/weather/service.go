package weather

import (
	"context"
	"errors"
	"sync"
)

// Service exposes the observation operations the API and scheduler consume,
// including the upsert-by-location workflow.
type Service struct {
	store Store

	// Upserts for one location key are serialized so a scheduled refresh and
	// an interactive fetch for the same city cannot interleave their
	// read-then-write. Cross-process writers are not covered.
	mu   sync.Mutex
	keys map[string]*locationLock
}

// locationLock is a refcounted per-key mutex. The map entry is dropped when
// the last holder releases it, so arbitrary interactive fetch locations do
// not grow the map without bound.
type locationLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a new Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		keys:  make(map[string]*locationLock),
	}
}

func (s *Service) lockLocation(city, country string) func() {
	key := LocationKey(city, country)

	s.mu.Lock()
	l, ok := s.keys[key]
	if !ok {
		l = &locationLock{}
		s.keys[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.keys, key)
		}
		s.mu.Unlock()
	}
}

// UpsertByLocation resolves the input against the current observation for its
// (city, country) key: an existing record is partially updated with the
// input's non-nil fields, otherwise a new record is created. The second
// return reports whether a record was newly created.
func (s *Service) UpsertByLocation(ctx context.Context, input ObservationInput) (*Observation, bool, error) {
	unlock := s.lockLocation(input.City, input.Country)
	defer unlock()

	existing, err := s.store.GetByLocation(ctx, input.City, input.Country)
	switch {
	case err == nil:
		updated, err := s.store.Update(ctx, existing.ID, input.Patch())
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	case errors.Is(err, ErrNotFound):
		created, err := s.store.Create(ctx, input)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	default:
		return nil, false, err
	}
}

// Create delegates to the underlying store.
func (s *Service) Create(ctx context.Context, input ObservationInput) (*Observation, error) {
	return s.store.Create(ctx, input)
}

// GetByID delegates to the underlying store.
func (s *Service) GetByID(ctx context.Context, id uint) (*Observation, error) {
	return s.store.GetByID(ctx, id)
}

// GetByLocation delegates to the underlying store.
func (s *Service) GetByLocation(ctx context.Context, city, country string) (*Observation, error) {
	return s.store.GetByLocation(ctx, city, country)
}

// List delegates to the underlying store.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Observation, int64, error) {
	return s.store.List(ctx, q)
}

// Update delegates to the underlying store.
func (s *Service) Update(ctx context.Context, id uint, patch ObservationPatch) (*Observation, error) {
	return s.store.Update(ctx, id, patch)
}

// Delete delegates to the underlying store.
func (s *Service) Delete(ctx context.Context, id uint) (bool, error) {
	return s.store.Delete(ctx, id)
}

// DistinctLocations delegates to the underlying store.
func (s *Service) DistinctLocations(ctx context.Context) ([]string, error) {
	return s.store.DistinctLocations(ctx)
}
