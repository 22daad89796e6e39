package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"eventpipe/metrics"
	"eventpipe/middleware"
)

func newLimitedRouter(t *testing.T, trusted []string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	log := zap.NewNop()
	m := metrics.New(nil)

	return NewRouter(RouterConfig{
		Events: NewEventHandlers(&stubQueue{}, 0, m, log),
		Stats:  NewStatsHandlers(&stubStats{}, log),
		EventRateLimit: middleware.RateLimit(rdb, middleware.RateLimitConfig{
			Max:    1,
			Window: 10 * time.Second,
			Now:    func() time.Time { return time.Unix(1700000000, 0) },
		}, log),
		TrustedProxies: trusted,
		Log:            log,
	})
}

func postFrom(r http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/event",
		strings.NewReader(`{"site_id":"s1","event_type":"pageview","timestamp":"2024-01-01T10:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRouter_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	r := newLimitedRouter(t, nil)

	assert.Equal(t, http.StatusAccepted, postFrom(r, "203.0.113.7:5000", "198.51.100.1"))
	for _, xff := range []string{"198.51.100.2", "198.51.100.3", "198.51.100.4"} {
		assert.Equal(t, http.StatusTooManyRequests, postFrom(r, "203.0.113.7:5000", xff), xff)
	}
}

func TestRouter_RateLimitHonoursTrustedProxy(t *testing.T) {
	r := newLimitedRouter(t, []string{"10.0.0.1"})

	assert.Equal(t, http.StatusAccepted, postFrom(r, "10.0.0.1:5000", "198.51.100.1"))
	assert.Equal(t, http.StatusAccepted, postFrom(r, "10.0.0.1:5000", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postFrom(r, "10.0.0.1:5000", "198.51.100.1"))
}
