// Package audit provides the append-only action log: every externally
// observable mutation to an observation (or failed attempt) produces exactly
// one entry, and entries are never mutated or deleted after creation.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNotFound is returned when no entry matches a requested id.
var ErrNotFound = errors.New("action log entry not found")

// Well-known action kinds. The action field is a free-form tag; these are the
// ones this service writes.
const (
	ActionCreate         = "CREATE"
	ActionUpdate         = "UPDATE"
	ActionDelete         = "DELETE"
	ActionFetch          = "FETCH"
	ActionScheduledFetch = "SCHEDULED_FETCH"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// EntityWeather is the entity tag for observation records.
const EntityWeather = "weather"

// Entry is one immutable action log record. EntityID is a soft reference to
// the affected record, not a foreign key.
type Entry struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Action   string `gorm:"size:50;not null;index" json:"action"`
	Entity   string `gorm:"size:50;not null" json:"entity"`
	EntityID *uint  `json:"entity_id,omitempty"`

	// Details is pre-serialized text; structured payloads are converted by
	// the caller (see MarshalDetails), never by the log itself.
	Details      string `gorm:"type:text" json:"details,omitempty"`
	Status       string `gorm:"size:20;not null;default:success" json:"status"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	IPAddress string `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent string `gorm:"size:500" json:"user_agent,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Entry) TableName() string { return "action_logs" }

// Record carries the fields for a new entry. Status defaults to success when
// left empty.
type Record struct {
	Action       string
	Entity       string
	EntityID     *uint
	Details      string
	Status       string
	ErrorMessage string
	IPAddress    string
	UserAgent    string
}

// ListQuery selects a page of entries with optional filters. Date bounds are
// inclusive.
type ListQuery struct {
	Page int
	Size int

	Action    string
	Entity    string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
}

// Offset returns the row offset for the page window.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Size
}

// StatusCounts aggregates outcomes for one action kind.
type StatusCounts struct {
	Success int64 `json:"success"`
	Error   int64 `json:"error"`
}

// Store is the persistence contract for the action log.
type Store interface {
	// Append writes a new entry and returns it. Entries are insertion-ordered.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// List returns one page ordered by creation time descending, plus the
	// total count matching the filters.
	List(ctx context.Context, q ListQuery) ([]Entry, int64, error)

	// GetByID returns the entry or ErrNotFound.
	GetByID(ctx context.Context, id uint) (*Entry, error)

	// Summarize aggregates the whole log into per-action success/error counts.
	Summarize(ctx context.Context) (map[string]StatusCounts, error)
}

// MarshalDetails converts a structured details payload to its text form.
// Callers own this conversion; the log stores text only.
func MarshalDetails(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// BestEffort appends an entry and swallows any failure: a broken audit write
// must not take down the request or cycle it describes.
func BestEffort(ctx context.Context, s Store, rec Record) {
	if _, err := s.Append(ctx, rec); err != nil {
		log.Printf("audit: failed to record %s/%s action: %v", rec.Action, rec.Entity, err)
	}
}
