// Package fetcher acquires weather observations from OpenWeatherMap, with
// deterministic degradation to synthetic data when the provider is
// unavailable or no API key is configured. It never talks to storage or the
// audit log.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aserikbay/weather-service/internal/weather"
)

// DefaultBaseURL is the OpenWeatherMap current-weather endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// fetchTimeout bounds one provider call, including retries.
const fetchTimeout = 10 * time.Second

var errEmptyCity = errors.New("location query must contain a city name")

// Client fetches observations for "City" or "City,CountryCode" queries.
type Client struct {
	client  *http.Client
	apiKey  string
	baseURL string
	backoff backoffConfig
	circuit *gobreaker.CircuitBreaker
}

// New creates a Client. An empty apiKey puts the client in permanent
// fallback mode; an empty baseURL selects the OpenWeatherMap endpoint.
func New(client *http.Client, apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		client:  client,
		apiKey:  apiKey,
		baseURL: baseURL,
		backoff: backoffConfig{
			maxRetries:      3,
			initialInterval: 500 * time.Millisecond,
			maxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

// Fetch returns an observation for the location query. Provider failures of
// any kind degrade to synthetic data; only a query without a city name
// yields nil.
func (c *Client) Fetch(ctx context.Context, query string) (*weather.ObservationInput, error) {
	city, country, err := splitQuery(query)
	if err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return synthetic(city, country), nil
	}

	input, err := c.fetchRemote(ctx, query)
	if err != nil {
		log.Printf("fetcher: provider call failed for %q, using synthetic data: %v", query, err)
		return synthetic(city, country), nil
	}
	return input, nil
}

// splitQuery parses "City" or "City,CountryCode"; country defaults to
// "Unknown" when not supplied.
func splitQuery(query string) (city, country string, err error) {
	parts := strings.SplitN(query, ",", 2)
	city = strings.TrimSpace(parts[0])
	if city == "" {
		return "", "", errEmptyCity
	}

	country = "Unknown"
	if len(parts) == 2 {
		if c := strings.TrimSpace(parts[1]); c != "" {
			country = c
		}
	}
	return city, country, nil
}

func (c *Client) fetchRemote(ctx context.Context, query string) (*weather.ObservationInput, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", query)
		values.Set("appid", c.apiKey)
		values.Set("units", "metric")

		return http.NewRequest(http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doWithResilience(ctx, c.client, c.backoff, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Name string `json:"name"`
		Dt   int64  `json:"dt"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Coord struct {
			Lat *float64 `json:"lat"`
			Lon *float64 `json:"lon"`
		} `json:"coord"`
		Main struct {
			Temp      float64  `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  float64  `json:"humidity"`
			Pressure  float64  `json:"pressure"`
		} `json:"main"`
		Wind struct {
			Speed *float64 `json:"speed"`
			Deg   *int     `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All *int `json:"all"`
		} `json:"clouds"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Visibility *int `json:"visibility"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	city := payload.Name
	if city == "" {
		city = "Unknown"
	}
	country := payload.Sys.Country
	if country == "" {
		country = "Unknown"
	}

	ts := time.Now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	input := &weather.ObservationInput{
		City:          city,
		Country:       country,
		Latitude:      payload.Coord.Lat,
		Longitude:     payload.Coord.Lon,
		Temperature:   payload.Main.Temp,
		FeelsLike:     payload.Main.FeelsLike,
		Humidity:      payload.Main.Humidity,
		Pressure:      payload.Main.Pressure,
		WindSpeed:     payload.Wind.Speed,
		WindDirection: payload.Wind.Deg,
		Cloudiness:    payload.Clouds.All,
		Visibility:    payload.Visibility,
		DataTimestamp: &ts,
	}
	if len(payload.Weather) > 0 {
		if d := payload.Weather[0].Description; d != "" {
			input.WeatherDescription = &d
		}
		if m := payload.Weather[0].Main; m != "" {
			input.WeatherMain = &m
		}
	}
	return input, nil
}

var (
	syntheticDescriptions = []string{
		"clear sky", "few clouds", "scattered clouds",
		"broken clouds", "shower rain", "rain", "thunderstorm",
		"snow", "mist",
	}
	syntheticConditions = []string{
		"Clear", "Clouds", "Rain", "Drizzle", "Thunderstorm", "Snow", "Mist",
	}
)

// synthetic generates a plausible reading for the location: fixed shape,
// random values within realistic ranges.
func synthetic(city, country string) *weather.ObservationInput {
	temp := round1(uniform(-10, 35))
	feelsLike := round1(temp + uniform(-3, 3))
	humidity := round1(uniform(20, 100))
	pressure := round1(uniform(990, 1030))
	windSpeed := round1(uniform(0, 20))
	windDir := rand.Intn(360)
	cloudiness := rand.Intn(101)
	visibility := 1000 + rand.Intn(9001)
	lat := round4(uniform(-90, 90))
	lon := round4(uniform(-180, 180))
	description := syntheticDescriptions[rand.Intn(len(syntheticDescriptions))]
	condition := syntheticConditions[rand.Intn(len(syntheticConditions))]
	now := time.Now().UTC()

	return &weather.ObservationInput{
		City:               city,
		Country:            country,
		Latitude:           &lat,
		Longitude:          &lon,
		Temperature:        temp,
		FeelsLike:          &feelsLike,
		Humidity:           humidity,
		Pressure:           pressure,
		WindSpeed:          &windSpeed,
		WindDirection:      &windDir,
		Cloudiness:         &cloudiness,
		WeatherDescription: &description,
		WeatherMain:        &condition,
		Visibility:         &visibility,
		DataTimestamp:      &now,
	}
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
