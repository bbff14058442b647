package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AppConfig is the immutable configuration value handed to every component at
// construction. There is no ambient lookup after Load.
type AppConfig struct {
	// External weather provider. An empty key is a valid configuration and
	// means the fetch gateway runs in permanent synthetic-fallback mode.
	WeatherAPIKey string
	WeatherAPIURL string

	// FetchInterval controls how often the scheduler refreshes each location.
	FetchInterval time.Duration

	// Locations to refresh each cycle, in order; duplicates are kept.
	Locations []string

	// DatabaseDSN selects the Postgres backing store; empty means in-memory.
	DatabaseDSN string

	// HTTPTimeout applies to the shared outbound HTTP client.
	HTTPTimeout time.Duration

	Port string
}

const defaultCities = "Astana,Almaty,Shymkent,Karagandy,Kostanay,Kyzylorda,Aktobe,Taraz,Turkestan"

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	cfg.WeatherAPIURL = os.Getenv("WEATHER_API_URL")
	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	cfg.Port = getenvDefault("PORT", "8080")

	intervalStr := getenvDefault("FETCH_INTERVAL", "30m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL: %w", err)
	}
	cfg.FetchInterval = interval

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Locations = splitCities(getenvDefault("DEFAULT_CITIES", defaultCities))

	return cfg, nil
}

func splitCities(raw string) []string {
	var cities []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	return cities
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
