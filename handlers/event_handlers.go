// handlers/event_handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventpipe/metrics"
	"eventpipe/queue"
	"eventpipe/validation"
)

// DefaultMaxBodyBytes caps POST /event bodies.
const DefaultMaxBodyBytes = 1 << 20

// EventQueue is the producer side of the durable queue.
type EventQueue interface {
	Enqueue(ctx context.Context, item []byte) (queue.EnqueueResult, error)
}

type EventHandlers struct {
	Queue        EventQueue
	MaxBodyBytes int64
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

func NewEventHandlers(q EventQueue, maxBodyBytes int64, m *metrics.Metrics, log *zap.Logger) *EventHandlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &EventHandlers{
		Queue:        q,
		MaxBodyBytes: maxBodyBytes,
		Metrics:      m,
		Log:          log,
	}
}

// TrackEvent validates one event and appends it to the queue. 202 means
// queued, not persisted.
func (h *EventHandlers) TrackEvent(c *gin.Context) {
	if c.Request.ContentLength > h.MaxBodyBytes {
		h.tooLarge(c)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return
		}
		h.Log.Info("failed to read event body", zap.Error(err))
		h.Metrics.IngestTotal.WithLabelValues(metrics.IngestInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "details": []validation.Violation{}})
		return
	}

	event, err := validation.ValidateEvent(body)
	if err != nil {
		var verr *validation.Error
		if !errors.As(err, &verr) {
			h.Log.Error("event validation failed unexpectedly", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		h.Metrics.IngestTotal.WithLabelValues(metrics.IngestInvalid).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "details": verr.Violations})
		return
	}

	item, err := json.Marshal(event)
	if err != nil {
		h.Log.Error("failed to encode event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Queue.Enqueue(ctx, item)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		h.Metrics.IngestTotal.WithLabelValues(metrics.IngestQueueFull).Inc()
		h.Log.Warn("queue full, rejecting event", zap.String("site_id", event.SiteID))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_full"})
		return
	case err != nil:
		h.Metrics.IngestTotal.WithLabelValues(metrics.IngestQueueError).Inc()
		h.Log.Error("redis error", zap.Error(err), zap.String("site_id", event.SiteID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue_error"})
		return
	}

	if res.Dropped > 0 {
		h.Log.Warn("queue trimmed on overflow", zap.Int64("dropped", res.Dropped), zap.Int64("length", res.Length))
	}
	h.Metrics.IngestTotal.WithLabelValues(metrics.IngestAccepted).Inc()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *EventHandlers) tooLarge(c *gin.Context) {
	h.Metrics.IngestTotal.WithLabelValues(metrics.IngestTooLarge).Inc()
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
}
