package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/store"
	"github.com/aserikbay/weather-service/internal/weather"
)

// stubFetcher maps location queries to canned outcomes.
type stubFetcher struct {
	inputs map[string]*weather.ObservationInput
	errs   map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, query string) (*weather.ObservationInput, error) {
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.inputs[query], nil
}

func input(city, country string, temp float64) *weather.ObservationInput {
	return &weather.ObservationInput{
		City:        city,
		Country:     country,
		Temperature: temp,
		Humidity:    50,
		Pressure:    1010,
	}
}

func newTestScheduler(locations []string, f weather.Fetcher) (*Scheduler, *store.MemoryStore, *store.MemoryAuditLog) {
	memStore := store.NewMemoryStore()
	auditLog := store.NewMemoryAuditLog()
	svc := weather.NewService(memStore)
	return New(locations, time.Minute, svc, auditLog, f), memStore, auditLog
}

func TestRunCycleIsolatesPerLocationFailure(t *testing.T) {
	fetch := &stubFetcher{
		inputs: map[string]*weather.ObservationInput{
			"Almaty": input("Almaty", "KZ", 21),
			"Astana": input("Astana", "KZ", 14),
		},
		errs: map[string]error{
			"Taraz": errors.New("connection refused"),
		},
	}
	s, memStore, auditLog := newTestScheduler([]string{"Almaty", "Taraz", "Astana"}, fetch)

	stats := s.runCycle(context.Background())
	if stats.success != 2 || stats.failed != 1 {
		t.Fatalf("expected 2 success and 1 failure, got %+v", stats)
	}

	ctx := context.Background()

	// Exactly 2 success and 1 error audit entry, all SCHEDULED_FETCH.
	_, successTotal, err := auditLog.List(ctx, audit.ListQuery{
		Page: 1, Size: 10,
		Action: audit.ActionScheduledFetch,
		Status: audit.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if successTotal != 2 {
		t.Fatalf("expected 2 success entries, got %d", successTotal)
	}

	failures, failTotal, err := auditLog.List(ctx, audit.ListQuery{
		Page: 1, Size: 10,
		Action: audit.ActionScheduledFetch,
		Status: audit.StatusError,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failTotal != 1 {
		t.Fatalf("expected 1 error entry, got %d", failTotal)
	}
	if failures[0].ErrorMessage != "connection refused" {
		t.Fatalf("unexpected error message: %s", failures[0].ErrorMessage)
	}
	if !strings.Contains(failures[0].Details, "Taraz") {
		t.Fatalf("failure details must name the city: %s", failures[0].Details)
	}

	// Store contains records for the successful locations only.
	_, total, err := memStore.List(ctx, weather.ListQuery{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 stored observations, got %d", total)
	}
	if _, err := memStore.GetByLocation(ctx, "Taraz", ""); !errors.Is(err, weather.ErrNotFound) {
		t.Fatalf("failed location must not be stored, got %v", err)
	}
}

func TestRunCycleAuditsNoDataOutcome(t *testing.T) {
	// A fetch that yields neither data nor an error still counts as a
	// failure and leaves an audit trail.
	fetch := &stubFetcher{inputs: map[string]*weather.ObservationInput{}}
	s, _, auditLog := newTestScheduler([]string{"Ghost"}, fetch)

	stats := s.runCycle(context.Background())
	if stats.success != 0 || stats.failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", stats)
	}

	entries, total, err := auditLog.List(context.Background(), audit.ListQuery{
		Page: 1, Size: 10,
		Action: audit.ActionScheduledFetch,
		Status: audit.StatusError,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 error entry, got %d", total)
	}
	if entries[0].ErrorMessage != "no weather data received" {
		t.Fatalf("unexpected error message: %s", entries[0].ErrorMessage)
	}
}

func TestRunCycleUpsertsExistingRecords(t *testing.T) {
	fetch := &stubFetcher{
		inputs: map[string]*weather.ObservationInput{
			"Almaty": input("Almaty", "KZ", 18),
		},
	}
	s, memStore, auditLog := newTestScheduler([]string{"Almaty"}, fetch)
	ctx := context.Background()

	s.runCycle(ctx)
	fetch.inputs["Almaty"] = input("Almaty", "KZ", 23)
	s.runCycle(ctx)

	// The second cycle updated in place rather than inserting.
	_, total, err := memStore.List(ctx, weather.ListQuery{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected a single record after two cycles, got %d", total)
	}

	obs, err := memStore.GetByLocation(ctx, "Almaty", "KZ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Temperature != 23 {
		t.Fatalf("expected latest temperature 23, got %v", obs.Temperature)
	}

	entries, _, err := auditLog.List(ctx, audit.ListQuery{Page: 1, Size: 10, Action: audit.ActionScheduledFetch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	// Newest first: the update, then the create.
	if !strings.Contains(entries[0].Details, `"is_new":false`) {
		t.Fatalf("second cycle must audit is_new=false: %s", entries[0].Details)
	}
	if !strings.Contains(entries[1].Details, `"is_new":true`) {
		t.Fatalf("first cycle must audit is_new=true: %s", entries[1].Details)
	}
}

func TestRunCycleProcessesDuplicatesIndependently(t *testing.T) {
	fetch := &stubFetcher{
		inputs: map[string]*weather.ObservationInput{
			"Almaty": input("Almaty", "KZ", 18),
		},
	}
	s, memStore, auditLog := newTestScheduler([]string{"Almaty", "Almaty"}, fetch)
	ctx := context.Background()

	stats := s.runCycle(ctx)
	if stats.success != 2 {
		t.Fatalf("each duplicate must be processed, got %+v", stats)
	}

	// Both upserts hit the same key, so only one record exists.
	_, total, err := memStore.List(ctx, weather.ListQuery{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected a single record, got %d", total)
	}

	_, auditTotal, err := auditLog.List(ctx, audit.ListQuery{Page: 1, Size: 10, Action: audit.ActionScheduledFetch})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auditTotal != 2 {
		t.Fatalf("expected one audit entry per duplicate, got %d", auditTotal)
	}
}

func TestStartWithoutLocations(t *testing.T) {
	s, _, _ := newTestScheduler(nil, &stubFetcher{})

	if err := s.Start(); err != nil {
		t.Fatalf("empty location list must not fail startup: %v", err)
	}
	s.Stop()
}
