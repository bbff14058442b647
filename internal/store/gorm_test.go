package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/weather"
)

// openTestDB migrates the schema into a throwaway sqlite file so the
// database-backed stores run through the same queries the Postgres
// deployment issues.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "weather.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&weather.Observation{}, &audit.Entry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestGormStoreCRUD(t *testing.T) {
	s := NewGormStore(openTestDB(t))
	ctx := context.Background()

	obs, err := s.Create(ctx, newInput("Sydney", "AU", 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if obs.DataTimestamp.IsZero() {
		t.Fatal("expected data timestamp to be defaulted")
	}

	got, err := s.GetByID(ctx, obs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.City != "Sydney" || got.Temperature != 30 {
		t.Fatalf("unexpected observation: %+v", got)
	}

	temp := 32.5
	updated, err := s.Update(ctx, obs.ID, weather.ObservationPatch{Temperature: &temp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Temperature != 32.5 {
		t.Fatalf("expected temperature 32.5, got %v", updated.Temperature)
	}
	if updated.Humidity != obs.Humidity {
		t.Fatalf("untouched field changed: %v", updated.Humidity)
	}

	deleted, err := s.Delete(ctx, obs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report a removed row")
	}
	if _, err := s.GetByID(ctx, obs.ID); !errors.Is(err, weather.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	deleted, err = s.Delete(ctx, obs.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report no removed row")
	}
}

func TestGormStoreGetByLocationPicksMostRecent(t *testing.T) {
	s := NewGormStore(openTestDB(t))
	ctx := context.Background()

	older := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)

	first := newInput("Almaty", "KZ", 10)
	first.DataTimestamp = &older
	second := newInput("Almaty", "KZ", 15)
	second.DataTimestamp = &newer

	if _, err := s.Create(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Create(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetByLocation(ctx, "ALMATY", "kz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Temperature != 15 {
		t.Fatalf("expected the most recent observation, got temperature %v", got.Temperature)
	}

	if _, err := s.GetByLocation(ctx, "Astana", "KZ"); !errors.Is(err, weather.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown location, got %v", err)
	}
}

func TestGormStoreListFiltersAndPaginates(t *testing.T) {
	s := NewGormStore(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, newInput("Almaty", "KZ", float64(10+i))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := s.Create(ctx, newInput("Sydney", "AU", 25)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := s.List(ctx, weather.ListQuery{Page: 1, Size: 3, City: "almaty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(items) != 3 {
		t.Fatalf("expected total 5 with 3 items on page 1, got total %d, items %d", total, len(items))
	}

	items, total, err = s.List(ctx, weather.ListQuery{Page: 2, Size: 3, City: "almaty"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("expected 2 items on page 2, got total %d, items %d", total, len(items))
	}

	locations, err := s.DistinctLocations(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected 2 distinct locations, got %v", locations)
	}
}

func TestGormAuditLogAppendListSummarize(t *testing.T) {
	l := NewGormAuditLog(openTestDB(t))
	ctx := context.Background()

	entry, err := l.Append(ctx, audit.Record{Action: audit.ActionCreate, Entity: audit.EntityWeather})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != audit.StatusSuccess {
		t.Fatalf("expected status to default to success, got %q", entry.Status)
	}
	if _, err := l.Append(ctx, audit.Record{
		Action:       audit.ActionFetch,
		Entity:       audit.EntityWeather,
		Status:       audit.StatusError,
		ErrorMessage: "upstream unavailable",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := l.List(ctx, audit.ListQuery{Page: 1, Size: 10, Status: audit.StatusError})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Action != audit.ActionFetch {
		t.Fatalf("unexpected error-status listing: total %d, items %+v", total, items)
	}

	// The date window runs through the same created_at guards the
	// in-memory log applies.
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	_, total, err = l.List(ctx, audit.ListQuery{Page: 1, Size: 10, StartDate: &past, EndDate: &future})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected both entries inside the window, got %d", total)
	}
	_, total, err = l.List(ctx, audit.ListQuery{Page: 1, Size: 10, StartDate: &future})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no entries after a future start date, got %d", total)
	}

	got, err := l.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != audit.ActionCreate {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if _, err := l.GetByID(ctx, 999); !errors.Is(err, audit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing entry, got %v", err)
	}

	summary, err := l.Summarize(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary[audit.ActionCreate].Success != 1 || summary[audit.ActionFetch].Error != 1 {
		t.Fatalf("unexpected summary: %v", summary)
	}
}
