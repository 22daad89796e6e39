package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"eventpipe/config"
	"eventpipe/database"
)

// Open connects the configured backend, applies its schema and returns the
// store with a close func for its connection.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (EventStore, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverClickHouse:
		ch, err := database.NewClickHouseDB(ctx, cfg.CH, log)
		if err != nil {
			return nil, nil, err
		}
		s := NewClickHouseEventStore(ch)
		if err := s.EnsureSchema(ctx); err != nil {
			ch.Close()
			return nil, nil, err
		}
		return s, ch.Close, nil

	case config.StoreDriverPostgres:
		pg, err := database.NewPostgresDB(ctx, cfg.Postgres.DSN(), log)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgresEventStore(pg.DB)
		if err := s.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return s, pg.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
