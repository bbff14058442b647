package weather

import (
	"fmt"
	"strings"
	"time"
)

// Observation is one weather reading for a (city, country) location at a
// point in time. History is retained: the natural key is not unique, and the
// "current" observation for a location is the most recent by DataTimestamp.
type Observation struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Location
	City      string   `gorm:"size:100;not null;index:ix_weather_city_country,priority:1" json:"city"`
	Country   string   `gorm:"size:100;not null;index:ix_weather_city_country,priority:2" json:"country"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Measurements
	Temperature float64  `gorm:"not null" json:"temperature"` // Celsius
	FeelsLike   *float64 `json:"feels_like,omitempty"`
	Humidity    float64  `gorm:"not null" json:"humidity"` // percent
	Pressure    float64  `gorm:"not null" json:"pressure"` // hPa

	WindSpeed          *float64 `json:"wind_speed,omitempty"` // m/s
	WindDirection      *int     `json:"wind_direction,omitempty"`
	Cloudiness         *int     `json:"cloudiness,omitempty"`
	WeatherDescription *string  `gorm:"size:200" json:"weather_description,omitempty"`
	WeatherMain        *string  `gorm:"size:50" json:"weather_main,omitempty"`
	Visibility         *int     `json:"visibility,omitempty"` // meters

	// DataTimestamp is when the reading was taken by the source; ingestion
	// time is used when the source does not report one.
	DataTimestamp time.Time `gorm:"not null;index:ix_weather_data_timestamp" json:"data_timestamp"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (Observation) TableName() string { return "weather" }

// LocationKey returns the canonical case-insensitive key for this observation.
func (o Observation) LocationKey() string {
	return LocationKey(o.City, o.Country)
}

// LocationKey normalizes a (city, country) pair for case-insensitive matching.
func LocationKey(city, country string) string {
	return strings.ToLower(city) + ":" + strings.ToLower(country)
}

// DisplayLocation formats a location the way the distinct-locations listing
// reports it.
func DisplayLocation(city, country string) string {
	return fmt.Sprintf("%s, %s", city, country)
}

// ObservationInput carries the validated fields for creating an observation.
// Optional fields are pointers so absence survives into the upsert patch.
type ObservationInput struct {
	City    string `validate:"required"`
	Country string `validate:"required"`

	Latitude  *float64 `validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `validate:"omitempty,gte=-180,lte=180"`

	Temperature float64
	FeelsLike   *float64
	Humidity    float64 `validate:"gte=0,lte=100"`
	Pressure    float64 `validate:"gt=0"`

	WindSpeed          *float64 `validate:"omitempty,gte=0"`
	WindDirection      *int     `validate:"omitempty,gte=0,lte=360"`
	Cloudiness         *int     `validate:"omitempty,gte=0,lte=100"`
	WeatherDescription *string
	WeatherMain        *string
	Visibility         *int `validate:"omitempty,gte=0"`

	DataTimestamp *time.Time
}

// Patch converts the input into a partial update carrying only its non-nil
// fields, for the upsert-as-update path.
func (in ObservationInput) Patch() ObservationPatch {
	return ObservationPatch{
		City:               &in.City,
		Country:            &in.Country,
		Temperature:        &in.Temperature,
		Humidity:           &in.Humidity,
		Pressure:           &in.Pressure,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		FeelsLike:          in.FeelsLike,
		WindSpeed:          in.WindSpeed,
		WindDirection:      in.WindDirection,
		Cloudiness:         in.Cloudiness,
		WeatherDescription: in.WeatherDescription,
		WeatherMain:        in.WeatherMain,
		Visibility:         in.Visibility,
		DataTimestamp:      in.DataTimestamp,
	}
}

// ObservationPatch is a partial update: nil fields are left unchanged.
type ObservationPatch struct {
	City    *string
	Country *string

	Latitude  *float64
	Longitude *float64

	Temperature *float64
	FeelsLike   *float64
	Humidity    *float64
	Pressure    *float64

	WindSpeed          *float64
	WindDirection      *int
	Cloudiness         *int
	WeatherDescription *string
	WeatherMain        *string
	Visibility         *int

	DataTimestamp *time.Time
}

// Apply copies the non-nil patch fields onto the observation.
func (p ObservationPatch) Apply(o *Observation) {
	if p.City != nil {
		o.City = *p.City
	}
	if p.Country != nil {
		o.Country = *p.Country
	}
	if p.Latitude != nil {
		o.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		o.Longitude = p.Longitude
	}
	if p.Temperature != nil {
		o.Temperature = *p.Temperature
	}
	if p.FeelsLike != nil {
		o.FeelsLike = p.FeelsLike
	}
	if p.Humidity != nil {
		o.Humidity = *p.Humidity
	}
	if p.Pressure != nil {
		o.Pressure = *p.Pressure
	}
	if p.WindSpeed != nil {
		o.WindSpeed = p.WindSpeed
	}
	if p.WindDirection != nil {
		o.WindDirection = p.WindDirection
	}
	if p.Cloudiness != nil {
		o.Cloudiness = p.Cloudiness
	}
	if p.WeatherDescription != nil {
		o.WeatherDescription = p.WeatherDescription
	}
	if p.WeatherMain != nil {
		o.WeatherMain = p.WeatherMain
	}
	if p.Visibility != nil {
		o.Visibility = p.Visibility
	}
	if p.DataTimestamp != nil {
		o.DataTimestamp = p.DataTimestamp.UTC()
	}
}
