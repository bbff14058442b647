package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "github.com/aserikbay/weather-service/internal/api/http"
	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/config"
	"github.com/aserikbay/weather-service/internal/fetcher"
	"github.com/aserikbay/weather-service/internal/scheduler"
	"github.com/aserikbay/weather-service/internal/store"
	"github.com/aserikbay/weather-service/internal/weather"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Storage: Postgres when a DSN is configured, otherwise in-memory.
	var (
		weatherStore weather.Store
		auditLog     audit.Store
	)
	if cfg.DatabaseDSN != "" {
		db, err := store.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		weatherStore = store.NewGormStore(db)
		auditLog = store.NewGormAuditLog(db)
	} else {
		log.Println("no DATABASE_DSN configured; using in-memory store")
		weatherStore = store.NewMemoryStore()
		auditLog = store.NewMemoryAuditLog()
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	fetch := fetcher.New(httpClient, cfg.WeatherAPIKey, cfg.WeatherAPIURL)
	svc := weather.NewService(weatherStore)

	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, svc, auditLog, fetch)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-service",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-service",
		})
	})

	httpapi.RegisterRoutes(app, svc, auditLog, fetch)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
