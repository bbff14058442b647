package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/aserikbay/weather-service/internal/audit"
	"github.com/aserikbay/weather-service/internal/weather"
)

// Open connects to Postgres, tunes the underlying connection pool, and
// migrates the observation and action log tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&weather.Observation{}, &audit.Entry{}); err != nil {
		return nil, err
	}
	return db, nil
}

// GormStore is the database-backed observation store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore over an open connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, input weather.ObservationInput) (*weather.Observation, error) {
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
	}
	if input.DataTimestamp != nil {
		obs.DataTimestamp = input.DataTimestamp.UTC()
	}

	if err := s.db.WithContext(ctx).Create(&obs).Error; err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *GormStore) GetByID(ctx context.Context, id uint) (*weather.Observation, error) {
	var obs weather.Observation
	err := s.db.WithContext(ctx).First(&obs, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, weather.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *GormStore) GetByLocation(ctx context.Context, city, country string) (*weather.Observation, error) {
	q := s.db.WithContext(ctx).Where("LOWER(city) = LOWER(?)", city)
	if country != "" {
		q = q.Where("LOWER(country) = LOWER(?)", country)
	}

	var obs weather.Observation
	err := q.Order("data_timestamp DESC, id DESC").First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, weather.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *GormStore) List(ctx context.Context, q weather.ListQuery) ([]weather.Observation, int64, error) {
	base := s.db.WithContext(ctx).Model(&weather.Observation{})
	if q.City != "" {
		base = base.Where("LOWER(city) = LOWER(?)", q.City)
	}
	if q.Country != "" {
		base = base.Where("LOWER(country) = LOWER(?)", q.Country)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []weather.Observation
	err := base.
		Order("data_timestamp DESC, id DESC").
		Offset(q.Offset()).
		Limit(q.Size).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *GormStore) Update(ctx context.Context, id uint, patch weather.ObservationPatch) (*weather.Observation, error) {
	var obs weather.Observation
	err := s.db.WithContext(ctx).First(&obs, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, weather.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(&obs)
	obs.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(&obs).Error; err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *GormStore) Delete(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&weather.Observation{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DistinctLocations(ctx context.Context) ([]string, error) {
	var rows []struct {
		City    string
		Country string
	}
	err := s.db.WithContext(ctx).
		Model(&weather.Observation{}).
		Distinct("city", "country").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	locations := make([]string, 0, len(rows))
	for _, r := range rows {
		locations = append(locations, weather.DisplayLocation(r.City, r.Country))
	}
	return locations, nil
}

// GormAuditLog is the database-backed action log.
type GormAuditLog struct {
	db *gorm.DB
}

// NewGormAuditLog creates a GormAuditLog over an open connection.
func NewGormAuditLog(db *gorm.DB) *GormAuditLog {
	return &GormAuditLog{db: db}
}

func (l *GormAuditLog) Append(ctx context.Context, rec audit.Record) (*audit.Entry, error) {
	status := rec.Status
	if status == "" {
		status = audit.StatusSuccess
	}

	entry := audit.Entry{
		Action:       rec.Action,
		Entity:       rec.Entity,
		EntityID:     rec.EntityID,
		Details:      rec.Details,
		Status:       status,
		ErrorMessage: rec.ErrorMessage,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
	}
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *GormAuditLog) List(ctx context.Context, q audit.ListQuery) ([]audit.Entry, int64, error) {
	base := l.db.WithContext(ctx).Model(&audit.Entry{})
	if q.Action != "" {
		base = base.Where("action = ?", q.Action)
	}
	if q.Entity != "" {
		base = base.Where("entity = ?", q.Entity)
	}
	if q.Status != "" {
		base = base.Where("status = ?", q.Status)
	}
	if q.StartDate != nil {
		base = base.Where("created_at >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		base = base.Where("created_at <= ?", *q.EndDate)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []audit.Entry
	err := base.
		Order("created_at DESC, id DESC").
		Offset(q.Offset()).
		Limit(q.Size).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (l *GormAuditLog) GetByID(ctx context.Context, id uint) (*audit.Entry, error) {
	var entry audit.Entry
	err := l.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (l *GormAuditLog) Summarize(ctx context.Context) (map[string]audit.StatusCounts, error) {
	var rows []struct {
		Action string
		Status string
		Count  int64
	}
	err := l.db.WithContext(ctx).
		Model(&audit.Entry{}).
		Select("action, status, count(id) as count").
		Group("action").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := make(map[string]audit.StatusCounts)
	for _, r := range rows {
		counts := summary[r.Action]
		switch r.Status {
		case audit.StatusError:
			counts.Error += r.Count
		default:
			counts.Success += r.Count
		}
		summary[r.Action] = counts
	}
	return summary, nil
}
