package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of the
// observation store, used when no database DSN is configured and by tests.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       uint
	observations []weather.Observation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Create(_ context.Context, input weather.ObservationInput) (*weather.Observation, error) {
	now := time.Now().UTC()

	obs := weather.Observation{
		City:               input.City,
		Country:            input.Country,
		Latitude:           input.Latitude,
		Longitude:          input.Longitude,
		Temperature:        input.Temperature,
		FeelsLike:          input.FeelsLike,
		Humidity:           input.Humidity,
		Pressure:           input.Pressure,
		WindSpeed:          input.WindSpeed,
		WindDirection:      input.WindDirection,
		Cloudiness:         input.Cloudiness,
		WeatherDescription: input.WeatherDescription,
		WeatherMain:        input.WeatherMain,
		Visibility:         input.Visibility,
		DataTimestamp:      now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if input.DataTimestamp != nil {
		obs.DataTimestamp = input.DataTimestamp.UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obs.ID = s.nextID
	s.nextID++
	s.observations = append(s.observations, obs)

	stored := obs
	return &stored, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uint) (*weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.observations {
		if s.observations[i].ID == id {
			obs := s.observations[i]
			return &obs, nil
		}
	}
	return nil, weather.ErrNotFound
}

func (s *MemoryStore) GetByLocation(_ context.Context, city, country string) (*weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *weather.Observation
	for i := range s.observations {
		o := &s.observations[i]
		if !strings.EqualFold(o.City, city) {
			continue
		}
		if country != "" && !strings.EqualFold(o.Country, country) {
			continue
		}
		if best == nil || o.DataTimestamp.After(best.DataTimestamp) ||
			(o.DataTimestamp.Equal(best.DataTimestamp) && o.ID > best.ID) {
			best = o
		}
	}
	if best == nil {
		return nil, weather.ErrNotFound
	}

	obs := *best
	return &obs, nil
}

func (s *MemoryStore) List(_ context.Context, q weather.ListQuery) ([]weather.Observation, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []weather.Observation
	for _, o := range s.observations {
		if q.City != "" && !strings.EqualFold(o.City, q.City) {
			continue
		}
		if q.Country != "" && !strings.EqualFold(o.Country, q.Country) {
			continue
		}
		matched = append(matched, o)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].DataTimestamp.Equal(matched[j].DataTimestamp) {
			return matched[i].DataTimestamp.After(matched[j].DataTimestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))

	start := q.Offset()
	if start >= len(matched) {
		return []weather.Observation{}, total, nil
	}
	end := start + q.Size
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]weather.Observation, end-start)
	copy(page, matched[start:end])
	return page, total, nil
}

func (s *MemoryStore) Update(_ context.Context, id uint, patch weather.ObservationPatch) (*weather.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.observations {
		if s.observations[i].ID != id {
			continue
		}
		patch.Apply(&s.observations[i])
		s.observations[i].UpdatedAt = time.Now().UTC()

		obs := s.observations[i]
		return &obs, nil
	}
	return nil, weather.ErrNotFound
}

func (s *MemoryStore) Delete(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.observations {
		if s.observations[i].ID == id {
			s.observations = append(s.observations[:i], s.observations[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DistinctLocations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var locations []string
	for _, o := range s.observations {
		display := weather.DisplayLocation(o.City, o.Country)
		if _, ok := seen[display]; ok {
			continue
		}
		seen[display] = struct{}{}
		locations = append(locations, display)
	}
	return locations, nil
}

// MemoryAuditLog is a concurrency-safe in-memory implementation of the
// action log.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	nextID  uint
	entries []audit.Entry
}

// NewMemoryAuditLog creates an empty MemoryAuditLog.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{nextID: 1}
}

func (l *MemoryAuditLog) Append(_ context.Context, rec audit.Record) (*audit.Entry, error) {
	status := rec.Status
	if status == "" {
		status = audit.StatusSuccess
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := audit.Entry{
		ID:           l.nextID,
		Action:       rec.Action,
		Entity:       rec.Entity,
		EntityID:     rec.EntityID,
		Details:      rec.Details,
		Status:       status,
		ErrorMessage: rec.ErrorMessage,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		CreatedAt:    time.Now().UTC(),
	}
	l.nextID++
	l.entries = append(l.entries, entry)

	stored := entry
	return &stored, nil
}

func (l *MemoryAuditLog) List(_ context.Context, q audit.ListQuery) ([]audit.Entry, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []audit.Entry
	for _, e := range l.entries {
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.Entity != "" && e.Entity != q.Entity {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if q.StartDate != nil && e.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && e.CreatedAt.After(*q.EndDate) {
			continue
		}
		matched = append(matched, e)
	}

	// Entries are insertion-ordered; newest first means highest id first.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))

	start := q.Offset()
	if start >= len(matched) {
		return []audit.Entry{}, total, nil
	}
	end := start + q.Size
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]audit.Entry, end-start)
	copy(page, matched[start:end])
	return page, total, nil
}

func (l *MemoryAuditLog) GetByID(_ context.Context, id uint) (*audit.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			entry := l.entries[i]
			return &entry, nil
		}
	}
	return nil, audit.ErrNotFound
}

func (l *MemoryAuditLog) Summarize(_ context.Context) (map[string]audit.StatusCounts, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := make(map[string]audit.StatusCounts)
	for _, e := range l.entries {
		counts := summary[e.Action]
		switch e.Status {
		case audit.StatusError:
			counts.Error++
		default:
			counts.Success++
		}
		summary[e.Action] = counts
	}
	return summary, nil
}
