package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventpipe/models"
)

type stubStats struct {
	stats *models.DailyStats
	err   error

	siteID     string
	start, end time.Time
}

func (s *stubStats) DailyStats(ctx context.Context, siteID string, start, end time.Time) (*models.DailyStats, error) {
	s.siteID, s.start, s.end = siteID, start, end
	if s.err != nil {
		return nil, s.err
	}
	if s.stats == nil {
		return &models.DailyStats{}, nil
	}
	return s.stats, nil
}

func getStats(h *StatsHandlers, query string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/stats", h.GetDailyStats)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats"+query, nil))
	return w
}

func TestGetDailyStats_EmptyDay(t *testing.T) {
	st := &stubStats{}
	w := getStats(NewStatsHandlers(st, zap.NewNop()), "?site_id=s1&date=2024-01-01")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"site_id":"s1","date":"2024-01-01","total_views":0,"unique_users":0,"top_paths":[]}`, w.Body.String())

	assert.Equal(t, "s1", st.siteID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), st.start)
	assert.Equal(t, time.Date(2024, 1, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC), st.end)
}

func TestGetDailyStats_ReturnsAggregate(t *testing.T) {
	st := &stubStats{stats: &models.DailyStats{
		TotalViews:  3,
		UniqueUsers: 1,
		TopPaths: []models.TopPathResult{
			{Path: "/home", Views: 2},
			{Path: models.UnknownPath, Views: 1},
		},
	}}
	w := getStats(NewStatsHandlers(st, zap.NewNop()), "?site_id=s1&date=2024-01-01")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"site_id":"s1","date":"2024-01-01","total_views":3,"unique_users":1,
		"top_paths":[{"path":"/home","views":2},{"path":"(unknown)","views":1}]
	}`, w.Body.String())
}

func TestGetDailyStats_DefaultsToToday(t *testing.T) {
	st := &stubStats{}
	h := NewStatsHandlers(st, zap.NewNop())
	h.Now = func() time.Time {
		return time.Date(2024, 3, 5, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	}

	w := getStats(h, "?site_id=s1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"date":"2024-03-04"`)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), st.start)
}

func TestGetDailyStats_MissingSite(t *testing.T) {
	st := &stubStats{}
	w := getStats(NewStatsHandlers(st, zap.NewNop()), "?date=2024-01-01")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"site_id missing"}`, w.Body.String())
	assert.Empty(t, st.siteID, "store must not be queried")
}

func TestGetDailyStats_InvalidDate(t *testing.T) {
	for _, date := range []string{"2024-13-01", "01-01-2024", "yesterday", "2024-01-01T00:00:00Z"} {
		t.Run(date, func(t *testing.T) {
			w := getStats(NewStatsHandlers(&stubStats{}, zap.NewNop()), "?site_id=s1&date="+date)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error":"invalid_date"`)
		})
	}
}

func TestGetDailyStats_StoreError(t *testing.T) {
	st := &stubStats{err: errors.New("pq: connection refused")}
	w := getStats(NewStatsHandlers(st, zap.NewNop()), "?site_id=s1&date=2024-01-01")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"db_error"}`, w.Body.String())
}
