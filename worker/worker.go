// Package worker drains the event queue into the durable store.
//
// Each cycle moves through Waiting → Processing → Writing and ends in
// Committed or Failed. A failed write puts the original item back on the
// queue tail and backs off; there is no attempt limit, so delivery is
// at-least-once and a row may be duplicated when a commit is not observed.
// Shutdown is only honoured in Waiting, never mid-write.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"eventpipe/metrics"
	"eventpipe/models"
	"eventpipe/validation"
)

type State string

const (
	StateWaiting    State = "waiting"
	StateProcessing State = "processing"
	StateWriting    State = "writing"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Outcome is the result of one Step.
type Outcome int

const (
	// OutcomeIdle means the pop timed out with nothing to do.
	OutcomeIdle Outcome = iota
	OutcomeCommitted
	// OutcomeMalformed means the item could never persist and was dropped.
	OutcomeMalformed
	// OutcomeRequeued means the write failed and the item is back on the tail.
	OutcomeRequeued
	// OutcomePopError means the queue was unreachable.
	OutcomePopError
)

// Source is the consumer side of the durable queue.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Requeue(ctx context.Context, item []byte) error
}

// lengthReporter is implemented by sources that can report their backlog.
// RedisQueue.Len also refreshes the queue length gauge.
type lengthReporter interface {
	Len(ctx context.Context) (int64, error)
}

// EventWriter persists one normalized event.
type EventWriter interface {
	InsertEvent(ctx context.Context, event *models.PersistedEvent) error
}

type Config struct {
	PopTimeout   time.Duration
	WriteTimeout time.Duration
	Backoff      Backoff
	Sleep        SleepFunc
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

type Worker struct {
	src     Source
	store   EventWriter
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger

	state    State
	failures int
}

func New(src Source, store EventWriter, cfg Config, m *metrics.Metrics, log *zap.Logger) *Worker {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = FixedBackoff{Interval: time.Second}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	return &Worker{
		src:     src,
		store:   store,
		cfg:     cfg,
		metrics: m,
		log:     log,
		state:   StateWaiting,
	}
}

// State returns the current state.
func (w *Worker) State() State { return w.state }

// Run loops until ctx is cancelled. Cancellation is observed between cycles,
// so shutdown waits out at most one pop timeout plus an in-flight write.
// Every failure inside a cycle is retried, so Run only returns on shutdown.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started, waiting for events",
		zap.Duration("pop_timeout", w.cfg.PopTimeout),
		zap.Duration("write_timeout", w.cfg.WriteTimeout),
	)
	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("worker stopping", zap.Error(err))
			return
		}
		w.Step(ctx)
	}
}

// Step runs one Waiting → ... → Committed|Failed cycle.
func (w *Worker) Step(ctx context.Context) Outcome {
	w.transition(StateWaiting)

	item, err := w.src.Pop(ctx, w.cfg.PopTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeIdle
		}
		w.failures++
		delay := w.cfg.Backoff.Next(w.failures)
		w.log.Error("queue pop failed",
			zap.Error(err),
			zap.Int("consecutive_failures", w.failures),
			zap.Duration("backoff", delay),
		)
		_ = w.cfg.Sleep(ctx, delay)
		return OutcomePopError
	}
	if item == nil {
		w.reportLength(ctx)
		return OutcomeIdle
	}

	w.transition(StateProcessing)
	row, err := decode(item)
	if err != nil {
		w.metrics.WorkerEventsTotal.WithLabelValues(metrics.WorkerMalformed).Inc()
		w.log.Error("invalid item in queue, dropping",
			zap.Error(err),
			zap.ByteString("item", truncate(item, 512)),
		)
		return OutcomeMalformed
	}

	w.transition(StateWriting)
	if err := w.write(ctx, row); err != nil {
		w.transition(StateFailed)
		w.failures++
		w.metrics.WorkerEventsTotal.WithLabelValues(metrics.WorkerFailed).Inc()
		delay := w.cfg.Backoff.Next(w.failures)
		w.log.Error("db insert failed, requeueing",
			zap.Error(err),
			zap.String("site_id", row.SiteID),
			zap.Int("consecutive_failures", w.failures),
			zap.Duration("backoff", delay),
		)
		w.requeue(ctx, item)
		_ = w.cfg.Sleep(ctx, delay)
		return OutcomeRequeued
	}

	w.transition(StateCommitted)
	w.failures = 0
	w.metrics.WorkerEventsTotal.WithLabelValues(metrics.WorkerPersisted).Inc()
	w.log.Debug("event persisted", zap.Int64("id", row.ID), zap.String("site_id", row.SiteID))
	w.reportLength(ctx)
	return OutcomeCommitted
}

func (w *Worker) reportLength(ctx context.Context) {
	lr, ok := w.src.(lengthReporter)
	if !ok {
		return
	}
	if _, err := lr.Len(ctx); err != nil && ctx.Err() == nil {
		w.log.Debug("queue length refresh failed", zap.Error(err))
	}
}

// write is not cancelled by shutdown; it runs to completion or WriteTimeout.
func (w *Worker) write(ctx context.Context, row *models.PersistedEvent) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := w.store.InsertEvent(writeCtx, row)
	w.metrics.WorkerWriteDuration.Observe(time.Since(start).Seconds())
	return err
}

// requeue retries until the item is back on the queue. The item only exists
// in this process once popped, so giving up would lose it.
func (w *Worker) requeue(ctx context.Context, item []byte) {
	reqCtx := context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		err := w.src.Requeue(reqCtx, item)
		if err == nil {
			return
		}
		delay := w.cfg.Backoff.Next(attempt)
		w.log.Error("requeue failed, holding item and retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		_ = w.cfg.Sleep(reqCtx, delay)
	}
}

func (w *Worker) transition(to State) {
	from := w.state
	w.state = to
	if w.cfg.OnTransition != nil && from != to {
		w.cfg.OnTransition(from, to)
	}
}

// ErrMalformedItem wraps queue items that can never be persisted.
var ErrMalformedItem = errors.New("malformed queue item")

func decode(item []byte) (*models.PersistedEvent, error) {
	event, err := validation.ValidateEvent(item)
	if err != nil {
		return nil, errors.Join(ErrMalformedItem, err)
	}
	row, err := event.ToPersisted()
	if err != nil {
		return nil, errors.Join(ErrMalformedItem, err)
	}
	return row, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
