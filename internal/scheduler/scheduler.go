// Package scheduler runs the periodic multi-location weather refresh: one
// interval job that fetches every configured location concurrently, upserts
// each result independently, and records every outcome in the action log.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/weather"
)

const jobTag = "weather-refresh"

// Scheduler periodically refreshes weather data for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	weather   *weather.Service
	auditLog  audit.Store
	fetcher   weather.Fetcher
	locations []string
	interval  time.Duration
}

// New creates a Scheduler. Locations are processed in list order each cycle;
// duplicates are refreshed independently.
func New(locations []string, interval time.Duration, svc *weather.Service, auditLog audit.Store, fetcher weather.Fetcher) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		weather:   svc,
		auditLog:  auditLog,
		fetcher:   fetcher,
		locations: locations,
		interval:  interval,
	}
}

// Start registers the interval job (replacing any prior registration with the
// same tag) and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_ = s.scheduler.RemoveByTag(jobTag)
	_, err := s.scheduler.Every(minutes).Minutes().Tag(jobTag).Do(func() {
		s.runCycle(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Printf("scheduler: refreshing %d locations every %d minutes", len(s.locations), minutes)
	return nil
}

// Stop cancels future runs. An in-flight cycle is allowed to finish.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

type cycleStats struct {
	success int
	failed  int
}

// runCycle executes one refresh: concurrent fan-out fetch over all
// locations, then ordered per-location upsert with failure isolation.
func (s *Scheduler) runCycle(ctx context.Context) cycleStats {
	cycleID := uuid.NewString()
	log.Printf("scheduler: cycle %s starting for %d locations", cycleID, len(s.locations))

	type outcome struct {
		input *weather.ObservationInput
		err   error
	}
	outcomes := make([]outcome, len(s.locations))

	var wg sync.WaitGroup
	for i, loc := range s.locations {
		wg.Add(1)
		go func(i int, loc string) {
			defer wg.Done()
			input, err := s.fetcher.Fetch(ctx, loc)
			outcomes[i] = outcome{input: input, err: err}
		}(i, loc)
	}
	wg.Wait()

	var stats cycleStats
	for i, loc := range s.locations {
		out := outcomes[i]
		switch {
		case out.err != nil:
			log.Printf("scheduler: cycle %s fetch failed for %s: %v", cycleID, loc, out.err)
			audit.BestEffort(ctx, s.auditLog, audit.Record{
				Action:       audit.ActionScheduledFetch,
				Entity:       audit.EntityWeather,
				Status:       audit.StatusError,
				ErrorMessage: out.err.Error(),
				Details:      audit.MarshalDetails(map[string]any{"city": loc}),
			})
			stats.failed++

		case out.input == nil:
			log.Printf("scheduler: cycle %s received no data for %s", cycleID, loc)
			audit.BestEffort(ctx, s.auditLog, audit.Record{
				Action:       audit.ActionScheduledFetch,
				Entity:       audit.EntityWeather,
				Status:       audit.StatusError,
				ErrorMessage: "no weather data received",
				Details:      audit.MarshalDetails(map[string]any{"city": loc}),
			})
			stats.failed++

		default:
			obs, isNew, err := s.weather.UpsertByLocation(ctx, *out.input)
			if err != nil {
				log.Printf("scheduler: cycle %s failed to save weather for %s: %v", cycleID, loc, err)
				audit.BestEffort(ctx, s.auditLog, audit.Record{
					Action:       audit.ActionScheduledFetch,
					Entity:       audit.EntityWeather,
					Status:       audit.StatusError,
					ErrorMessage: err.Error(),
					Details:      audit.MarshalDetails(map[string]any{"city": loc}),
				})
				stats.failed++
				continue
			}

			audit.BestEffort(ctx, s.auditLog, audit.Record{
				Action:   audit.ActionScheduledFetch,
				Entity:   audit.EntityWeather,
				EntityID: &obs.ID,
				Details: audit.MarshalDetails(map[string]any{
					"city":        obs.City,
					"country":     obs.Country,
					"temperature": obs.Temperature,
					"is_new":      isNew,
				}),
			})
			stats.success++
		}
	}

	log.Printf("scheduler: cycle %s completed: %d success, %d errors", cycleID, stats.success, stats.failed)
	return stats
}
