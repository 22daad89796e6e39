package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"eventpipe/config"
)

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	s, closeFn, err := Open(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown store driver "sqlite"`)
	assert.Nil(t, s)
	assert.Nil(t, closeFn)
}
