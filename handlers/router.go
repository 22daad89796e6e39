package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpipe/middleware"
)

type RouterConfig struct {
	Events *EventHandlers
	Stats  *StatsHandlers
	Health *HealthHandlers
	// Optional; nil entries are skipped.
	Metrics        http.Handler
	EventRateLimit gin.HandlerFunc
	StatsAuth      gin.HandlerFunc
	AllowedOrigins []string
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured.
	TrustedProxies []string
	Log            *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		cfg.Log.Warn("invalid trusted proxies, trusting none", zap.Error(err), zap.Strings("proxies", cfg.TrustedProxies))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.Recovery(cfg.Log))
	r.Use(middleware.Logger(cfg.Log))
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	event := []gin.HandlerFunc{}
	if cfg.EventRateLimit != nil {
		event = append(event, cfg.EventRateLimit)
	}
	r.POST("/event", append(event, cfg.Events.TrackEvent)...)

	stats := []gin.HandlerFunc{}
	if cfg.StatsAuth != nil {
		stats = append(stats, cfg.StatsAuth)
	}
	r.GET("/stats", append(stats, cfg.Stats.GetDailyStats)...)

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Healthz)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return r
}
