// store/clickhouse_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"eventpipe/database"
	"eventpipe/models"
	"eventpipe/utils"
)

// ClickHouseEventStore keeps events in a MergeTree table ordered by
// (site_id, event_timestamp). It has no surrogate id, so top path ties are
// broken by the earliest event timestamp.
type ClickHouseEventStore struct {
	DB *database.ClickHouseClient
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient) *ClickHouseEventStore {
	return &ClickHouseEventStore{DB: chClient}
}

func (s *ClickHouseEventStore) EnsureSchema(ctx context.Context) error {
	err := s.DB.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			site_id String,
			event_type String,
			path Nullable(String),
			user_id Nullable(String),
			event_timestamp DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (site_id, event_timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to apply clickhouse schema: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) InsertEvent(ctx context.Context, event *models.PersistedEvent) error {
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO events (site_id, event_type, path, user_id, event_timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	if err := batch.Append(
		event.SiteID,
		event.EventType,
		event.Path,
		event.UserID,
		event.EventTimestamp,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send insert: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) DailyStats(ctx context.Context, siteID string, start, end time.Time) (*models.DailyStats, error) {
	stats := &models.DailyStats{
		SiteID:   siteID,
		Date:     start.UTC().Format(utils.DateLayout),
		TopPaths: []models.TopPathResult{},
	}
	where := `WHERE site_id = ? AND event_timestamp >= ? AND event_timestamp <= ?`

	if err := s.DB.Conn.QueryRow(ctx, `SELECT count() FROM events `+where, siteID, start, end).Scan(&stats.TotalViews); err != nil {
		return nil, fmt.Errorf("failed to query total views: %w", err)
	}

	// uniqExact skips NULL user ids.
	if err := s.DB.Conn.QueryRow(ctx, `SELECT uniqExact(user_id) FROM events `+where, siteID, start, end).Scan(&stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to query unique users: %w", err)
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT ifNull(nullIf(path, ''), '`+models.UnknownPath+`') AS label, count() AS views
		FROM events
		`+where+`
		GROUP BY label
		ORDER BY views DESC, min(event_timestamp) ASC
		LIMIT ?
	`, siteID, start, end, uint64(TopPathsLimit))
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

func (s *ClickHouseEventStore) Ping(ctx context.Context) error {
	return s.DB.Conn.Ping(ctx)
}
