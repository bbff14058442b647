package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc *weather.Service, logs audit.Store, fetch weather.Fetcher) {
	v1 := app.Group("/api/v1")

	w := v1.Group("/weather")
	w.Post("/", createWeather(svc, logs))
	w.Get("/", listWeather(svc))
	w.Get("/locations", listLocations(svc))
	w.Get("/city/:name", getWeatherByCity(svc))
	w.Post("/fetch/:name", fetchWeather(svc, logs, fetch))
	w.Get("/:id", getWeather(svc))
	w.Put("/:id", updateWeather(svc, logs))
	w.Delete("/:id", deleteWeather(svc, logs))

	l := v1.Group("/logs")
	l.Get("/", listLogs(logs))
	l.Get("/summary", logsSummary(logs))
	l.Get("/:id", getLog(logs))
}

// observationPayload is the request body for creating an observation.
// Optional numeric fields are pointers so zero values survive validation.
type observationPayload struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required"`

	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`

	Temperature *float64 `json:"temperature" validate:"required"`
	FeelsLike   *float64 `json:"feels_like"`
	Humidity    *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	Pressure    *float64 `json:"pressure" validate:"required,gt=0"`

	WindSpeed          *float64 `json:"wind_speed" validate:"omitempty,gte=0"`
	WindDirection      *int     `json:"wind_direction" validate:"omitempty,gte=0,lte=360"`
	Cloudiness         *int     `json:"cloudiness" validate:"omitempty,gte=0,lte=100"`
	WeatherDescription *string  `json:"weather_description"`
	WeatherMain        *string  `json:"weather_main"`
	Visibility         *int     `json:"visibility" validate:"omitempty,gte=0"`

	DataTimestamp *time.Time `json:"data_timestamp"`
}

func (p observationPayload) toInput() weather.ObservationInput {
	return weather.ObservationInput{
		City:               p.City,
		Country:            p.Country,
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Temperature:        *p.Temperature,
		FeelsLike:          p.FeelsLike,
		Humidity:           *p.Humidity,
		Pressure:           *p.Pressure,
		WindSpeed:          p.WindSpeed,
		WindDirection:      p.WindDirection,
		Cloudiness:         p.Cloudiness,
		WeatherDescription: p.WeatherDescription,
		WeatherMain:        p.WeatherMain,
		Visibility:         p.Visibility,
		DataTimestamp:      p.DataTimestamp,
	}
}

// updatePayload is the request body for a partial update; every field is
// optional and absent fields are left unchanged.
type updatePayload struct {
	City    *string `json:"city,omitempty" validate:"omitempty,min=1"`
	Country *string `json:"country,omitempty" validate:"omitempty,min=1"`

	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	Temperature *float64 `json:"temperature,omitempty"`
	FeelsLike   *float64 `json:"feels_like,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Pressure    *float64 `json:"pressure,omitempty" validate:"omitempty,gt=0"`

	WindSpeed          *float64 `json:"wind_speed,omitempty" validate:"omitempty,gte=0"`
	WindDirection      *int     `json:"wind_direction,omitempty" validate:"omitempty,gte=0,lte=360"`
	Cloudiness         *int     `json:"cloudiness,omitempty" validate:"omitempty,gte=0,lte=100"`
	WeatherDescription *string  `json:"weather_description,omitempty"`
	WeatherMain        *string  `json:"weather_main,omitempty"`
	Visibility         *int     `json:"visibility,omitempty" validate:"omitempty,gte=0"`

	DataTimestamp *time.Time `json:"data_timestamp,omitempty"`
}

func (p updatePayload) toPatch() weather.ObservationPatch {
	return weather.ObservationPatch{
		City:               p.City,
		Country:            p.Country,
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Temperature:        p.Temperature,
		FeelsLike:          p.FeelsLike,
		Humidity:           p.Humidity,
		Pressure:           p.Pressure,
		WindSpeed:          p.WindSpeed,
		WindDirection:      p.WindDirection,
		Cloudiness:         p.Cloudiness,
		WeatherDescription: p.WeatherDescription,
		WeatherMain:        p.WeatherMain,
		Visibility:         p.Visibility,
		DataTimestamp:      p.DataTimestamp,
	}
}

type listResponse struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

func newListResponse(items any, total int64, page, size int) listResponse {
	pages := 1
	if total > 0 {
		pages = int(math.Ceil(float64(total) / float64(size)))
	}
	return listResponse{Items: items, Total: total, Page: page, Size: size, Pages: pages}
}

func parsePagination(c *fiber.Ctx, defaultSize int) (page, size int, err error) {
	page = c.QueryInt("page", 1)
	size = c.QueryInt("size", defaultSize)
	if page < 1 {
		return 0, 0, errors.New("page must be >= 1")
	}
	if size < 1 || size > 100 {
		return 0, 0, errors.New("size must be between 1 and 100")
	}
	return page, size, nil
}

func clientInfo(c *fiber.Ctx) (ip, userAgent string) {
	return c.IP(), c.Get(fiber.HeaderUserAgent)
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

func createWeather(svc *weather.Service, logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var payload observationPayload
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ip, userAgent := clientInfo(c)
		obs, err := svc.Create(c.UserContext(), payload.toInput())
		if err != nil {
			audit.BestEffort(c.UserContext(), logs, audit.Record{
				Action:       audit.ActionCreate,
				Entity:       audit.EntityWeather,
				Status:       audit.StatusError,
				ErrorMessage: err.Error(),
				IPAddress:    ip,
				UserAgent:    userAgent,
			})
			return fiber.NewError(fiber.StatusInternalServerError, "failed to create weather record")
		}

		audit.BestEffort(c.UserContext(), logs, audit.Record{
			Action:   audit.ActionCreate,
			Entity:   audit.EntityWeather,
			EntityID: &obs.ID,
			Details: audit.MarshalDetails(map[string]any{
				"city":    obs.City,
				"country": obs.Country,
			}),
			IPAddress: ip,
			UserAgent: userAgent,
		})
		return c.Status(fiber.StatusCreated).JSON(obs)
	}
}

func listWeather(svc *weather.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, size, err := parsePagination(c, 10)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		items, total, err := svc.List(c.UserContext(), weather.ListQuery{
			Page:    page,
			Size:    size,
			City:    c.Query("city"),
			Country: c.Query("country"),
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list weather records")
		}
		return c.JSON(newListResponse(items, total, page, size))
	}
}

func listLocations(svc *weather.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		locations, err := svc.DistinctLocations(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list locations")
		}
		if locations == nil {
			locations = []string{}
		}
		return c.JSON(locations)
	}
}

func getWeatherByCity(svc *weather.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		city, err := urlParam(c, "name")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		obs, err := svc.GetByLocation(c.UserContext(), city, c.Query("country"))
		if errors.Is(err, weather.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("weather data for %s not found", city))
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}
		return c.JSON(obs)
	}
}

func getWeather(svc *weather.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		obs, err := svc.GetByID(c.UserContext(), id)
		if errors.Is(err, weather.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "weather record not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather record")
		}
		return c.JSON(obs)
	}
}

func updateWeather(svc *weather.Service, logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var payload updatePayload
		if err := c.BodyParser(&payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(payload); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ip, userAgent := clientInfo(c)
		obs, err := svc.Update(c.UserContext(), id, payload.toPatch())
		if errors.Is(err, weather.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "weather record not found")
		}
		if err != nil {
			audit.BestEffort(c.UserContext(), logs, audit.Record{
				Action:       audit.ActionUpdate,
				Entity:       audit.EntityWeather,
				EntityID:     &id,
				Status:       audit.StatusError,
				ErrorMessage: err.Error(),
				IPAddress:    ip,
				UserAgent:    userAgent,
			})
			return fiber.NewError(fiber.StatusInternalServerError, "failed to update weather record")
		}

		audit.BestEffort(c.UserContext(), logs, audit.Record{
			Action:    audit.ActionUpdate,
			Entity:    audit.EntityWeather,
			EntityID:  &obs.ID,
			Details:   audit.MarshalDetails(payload),
			IPAddress: ip,
			UserAgent: userAgent,
		})
		return c.JSON(obs)
	}
}

func deleteWeather(svc *weather.Service, logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ip, userAgent := clientInfo(c)
		found, err := svc.Delete(c.UserContext(), id)
		if err != nil {
			audit.BestEffort(c.UserContext(), logs, audit.Record{
				Action:       audit.ActionDelete,
				Entity:       audit.EntityWeather,
				EntityID:     &id,
				Status:       audit.StatusError,
				ErrorMessage: err.Error(),
				IPAddress:    ip,
				UserAgent:    userAgent,
			})
			return fiber.NewError(fiber.StatusInternalServerError, "failed to delete weather record")
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "weather record not found")
		}

		audit.BestEffort(c.UserContext(), logs, audit.Record{
			Action:    audit.ActionDelete,
			Entity:    audit.EntityWeather,
			EntityID:  &id,
			IPAddress: ip,
			UserAgent: userAgent,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func fetchWeather(svc *weather.Service, logs audit.Store, fetch weather.Fetcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query, err := urlParam(c, "name")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ip, userAgent := clientInfo(c)
		input, err := fetch.Fetch(c.UserContext(), query)
		if err != nil || input == nil {
			return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("failed to fetch weather data for %s", query))
		}

		obs, isNew, err := svc.UpsertByLocation(c.UserContext(), *input)
		if err != nil {
			audit.BestEffort(c.UserContext(), logs, audit.Record{
				Action:       audit.ActionFetch,
				Entity:       audit.EntityWeather,
				Status:       audit.StatusError,
				ErrorMessage: err.Error(),
				Details:      audit.MarshalDetails(map[string]any{"city": query}),
				IPAddress:    ip,
				UserAgent:    userAgent,
			})
			return fiber.NewError(fiber.StatusInternalServerError, "failed to save fetched weather data")
		}

		audit.BestEffort(c.UserContext(), logs, audit.Record{
			Action:   audit.ActionFetch,
			Entity:   audit.EntityWeather,
			EntityID: &obs.ID,
			Details: audit.MarshalDetails(map[string]any{
				"city":    obs.City,
				"country": obs.Country,
				"is_new":  isNew,
			}),
			IPAddress: ip,
			UserAgent: userAgent,
		})
		return c.JSON(obs)
	}
}

func listLogs(logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, size, err := parsePagination(c, 20)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		q := audit.ListQuery{
			Page:   page,
			Size:   size,
			Action: c.Query("action"),
			Entity: c.Query("entity"),
			Status: c.Query("status"),
		}
		if v := c.Query("start_date"); v != "" {
			ts, err := parseTime(v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			q.StartDate = &ts
		}
		if v := c.Query("end_date"); v != "" {
			ts, err := parseTime(v)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			q.EndDate = &ts
		}

		items, total, err := logs.List(c.UserContext(), q)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list action logs")
		}
		return c.JSON(newListResponse(items, total, page, size))
	}
}

func logsSummary(logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := logs.Summarize(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to summarize action logs")
		}
		return c.JSON(summary)
	}
}

func getLog(logs audit.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, err := logs.GetByID(c.UserContext(), id)
		if errors.Is(err, audit.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "log entry not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch log entry")
		}
		return c.JSON(entry)
	}
}

func urlParam(c *fiber.Ctx, name string) (string, error) {
	v, err := url.PathUnescape(c.Params(name))
	if err != nil || v == "" {
		return "", fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

// parseTime tries RFC3339 first, then Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
