package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthz(checks map[string]Pinger) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/healthz", NewHealthHandlers(checks).Healthz)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	return w
}

func TestHealthz_AllHealthy(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	w := healthz(map[string]Pinger{"redis": ok, "store": ok})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","dependencies":{"redis":{"status":"healthy"},"store":{"status":"healthy"}}}`, w.Body.String())
}

func TestHealthz_OneDown(t *testing.T) {
	w := healthz(map[string]Pinger{
		"redis": pingFunc(func(context.Context) error { return nil }),
		"store": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","dependencies":{
		"redis":{"status":"healthy"},
		"store":{"status":"unhealthy","message":"connection refused"}
	}}`, w.Body.String())
}
