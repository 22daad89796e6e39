package database

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventpipe/config"
)

func redisConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	host, port, ok := strings.Cut(mr.Addr(), ":")
	require.True(t, ok)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: p}
}

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedis(context.Background(), redisConfig(t, mr), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RDB.Set(context.Background(), "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewRedis_WithPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")
	cfg := redisConfig(t, mr)

	_, err := NewRedis(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg.Password = "secret"
	c, err := NewRedis(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	c.Close()
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(t, mr)
	mr.Close()

	_, err := NewRedis(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "redis ping failed")
}
