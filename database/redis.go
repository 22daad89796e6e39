package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventpipe/config"
)

type RedisClient struct {
	RDB *redis.Client
	log *zap.Logger
}

// NewRedis connects to the queue's Redis and verifies connectivity.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("connected to Redis", zap.String("addr", cfg.Addr()))
	return &RedisClient{RDB: rdb, log: log}, nil
}

func (c *RedisClient) Close() {
	if c.RDB != nil {
		if err := c.RDB.Close(); err != nil {
			c.log.Error("error closing Redis connection", zap.Error(err))
			return
		}
		c.log.Info("Redis connection closed")
	}
}
