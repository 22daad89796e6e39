// store/event_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"eventpipe/models"
	"eventpipe/utils"
)

// TopPathsLimit bounds the top_paths list of a daily aggregate.
const TopPathsLimit = 10

// EventStore is the durable store as seen by the worker and the stats path.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.PersistedEvent) error
	DailyStats(ctx context.Context, siteID string, start, end time.Time) (*models.DailyStats, error)
	Ping(ctx context.Context) error
}

type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

// EnsureSchema creates the events table and the (site_id, event_timestamp)
// index used by the daily range scans.
func (s *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			site_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			path TEXT NULL,
			user_id TEXT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_site_ts ON events (site_id, event_timestamp)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// InsertEvent writes a single row and sets event.ID on success.
func (s *PostgresEventStore) InsertEvent(ctx context.Context, event *models.PersistedEvent) error {
	query := `
		INSERT INTO events (site_id, event_type, path, user_id, event_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		event.SiteID,
		event.EventType,
		event.Path,
		event.UserID,
		event.EventTimestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// DailyStats runs the three read-only aggregates for siteID over the
// inclusive window [start, end].
func (s *PostgresEventStore) DailyStats(ctx context.Context, siteID string, start, end time.Time) (*models.DailyStats, error) {
	stats := &models.DailyStats{
		SiteID:   siteID,
		Date:     start.UTC().Format(utils.DateLayout),
		TopPaths: []models.TopPathResult{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events
		WHERE site_id = $1 AND event_timestamp >= $2 AND event_timestamp <= $3
	`, siteID, start, end).Scan(&stats.TotalViews)
	if err != nil {
		return nil, fmt.Errorf("failed to query total views: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM events
		WHERE site_id = $1 AND event_timestamp >= $2 AND event_timestamp <= $3 AND user_id IS NOT NULL
	`, siteID, start, end).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique users: %w", err)
	}

	// Ties on views are broken by the first row that carried the path.
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(path, ''), '`+models.UnknownPath+`') AS label, COUNT(*) AS views
		FROM events
		WHERE site_id = $1 AND event_timestamp >= $2 AND event_timestamp <= $3
		GROUP BY label
		ORDER BY views DESC, MIN(id) ASC
		LIMIT $4
	`, siteID, start, end, TopPathsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top paths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.TopPathResult
		if err := rows.Scan(&r.Path, &r.Views); err != nil {
			return nil, fmt.Errorf("failed to scan top path row: %w", err)
		}
		stats.TopPaths = append(stats.TopPaths, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top paths: %w", err)
	}

	return stats, nil
}

func (s *PostgresEventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
