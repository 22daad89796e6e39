// handlers/stats_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpipe/models"
	"eventpipe/utils"
)

// StatsReader answers the daily aggregate query contract.
type StatsReader interface {
	DailyStats(ctx context.Context, siteID string, start, end time.Time) (*models.DailyStats, error)
}

type StatsHandlers struct {
	Store StatsReader
	Now   func() time.Time
	Log   *zap.Logger
}

func NewStatsHandlers(s StatsReader, log *zap.Logger) *StatsHandlers {
	return &StatsHandlers{Store: s, Now: time.Now, Log: log}
}

// GetDailyStats serves GET /stats?site_id=&date=YYYY-MM-DD.
func (h *StatsHandlers) GetDailyStats(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site_id missing"})
		return
	}

	day, err := utils.ParseDay(c.Query("date"), h.Now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date", "details": "date must be YYYY-MM-DD"})
		return
	}
	start, end := utils.DayWindow(day)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.Store.DailyStats(ctx, siteID, start, end)
	if err != nil {
		h.Log.Error("db error", zap.Error(err), zap.String("site_id", siteID), zap.Time("day", start))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db_error"})
		return
	}

	stats.SiteID = siteID
	stats.Date = start.Format(utils.DateLayout)
	if stats.TopPaths == nil {
		stats.TopPaths = []models.TopPathResult{}
	}
	c.JSON(http.StatusOK, stats)
}
