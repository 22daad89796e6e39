package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RateLimitConfig struct {
	// Max requests per Window per client IP. Zero disables limiting.
	Max    int64
	Window time.Duration
	Prefix string
	Now    func() time.Time
}

// RateLimit is a Redis fixed-window counter per client IP, shared by all API
// instances. Redis errors fail open.
func RateLimit(rdb *redis.Client, cfg RateLimitConfig, log *zap.Logger) gin.HandlerFunc {
	if cfg.Prefix == "" {
		cfg.Prefix = "eventpipe:rate_limit"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(c *gin.Context) {
		if cfg.Max <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		now := cfg.Now()
		window := now.UnixNano() / int64(cfg.Window)
		key := fmt.Sprintf("%s:%s:%s:%d", cfg.Prefix, c.FullPath(), ip, window)

		ctx := c.Request.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, cfg.Window+time.Second)
		}

		if count > cfg.Max {
			resetAt := time.Unix(0, (window+1)*int64(cfg.Window))
			retry := int(math.Ceil(resetAt.Sub(now).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}

		c.Next()
	}
}
