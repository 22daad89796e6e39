// models/event.go
package models

import (
	"fmt"
	"time"
)

// UnknownPath is reported in top paths for events that carried no path.
const UnknownPath = "(unknown)"

// Event is the wire and queue form of a tracked event.
type Event struct {
	SiteID    string `json:"site_id" validate:"required"`
	EventType string `json:"event_type" validate:"required"`
	Path      string `json:"path,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// PersistedEvent is one row of the events table.
type PersistedEvent struct {
	ID             int64     `json:"id"`
	SiteID         string    `json:"site_id"`
	EventType      string    `json:"event_type"`
	Path           *string   `json:"path"`
	UserID         *string   `json:"user_id"`
	EventTimestamp time.Time `json:"event_timestamp"`
}

// ToPersisted normalizes the event into its row form. Empty optional fields
// become NULL and the timestamp is stored in UTC at millisecond precision,
// matching the 23:59:59.999 end of the stats day window.
func (e Event) ToPersisted() (*PersistedEvent, error) {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", e.Timestamp, err)
	}

	row := &PersistedEvent{
		SiteID:         e.SiteID,
		EventType:      e.EventType,
		EventTimestamp: ts.UTC().Truncate(time.Millisecond),
	}
	if e.Path != "" {
		p := e.Path
		row.Path = &p
	}
	if e.UserID != "" {
		u := e.UserID
		row.UserID = &u
	}
	return row, nil
}

type TopPathResult struct {
	Path  string `json:"path"`
	Views uint64 `json:"views"`
}

// DailyStats is computed per request and never stored.
type DailyStats struct {
	SiteID      string          `json:"site_id"`
	Date        string          `json:"date"`
	TotalViews  uint64          `json:"total_views"`
	UniqueUsers uint64          `json:"unique_users"`
	TopPaths    []TopPathResult `json:"top_paths"`
}
