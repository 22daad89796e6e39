package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandlers struct {
	Checks map[string]Pinger
}

func NewHealthHandlers(checks map[string]Pinger) *HealthHandlers {
	return &HealthHandlers{Checks: checks}
}

// Healthz pings every dependency. Any failure makes the whole probe 503.
func (h *HealthHandlers) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := StatusHealthy
	deps := make(gin.H, len(h.Checks))
	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			status = StatusUnhealthy
			deps[name] = gin.H{"status": StatusUnhealthy, "message": err.Error()}
			continue
		}
		deps[name] = gin.H{"status": StatusHealthy}
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}
