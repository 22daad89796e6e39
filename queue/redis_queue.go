// Package queue implements the durable event queue on a Redis list.
//
// Producers append to the tail, consumers pop destructively from the head.
// Every append is paired with a trim to the configured cap inside a single
// MULTI/EXEC (or a Lua script for the reject policy), so concurrent appends
// can never leave the list longer than the cap.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventpipe/metrics"
)

// ErrQueueFull is returned by Enqueue under the reject policy when the list
// is at capacity.
var ErrQueueFull = errors.New("queue is at capacity")

// OverflowPolicy decides what happens when an append would exceed the cap.
type OverflowPolicy string

const (
	// DropOldest trims the head, shedding the oldest unpersisted events.
	DropOldest OverflowPolicy = "drop_oldest"
	// Reject refuses the new event and leaves the list untouched.
	Reject OverflowPolicy = "reject"
)

// pushIfRoom appends ARGV[1] unless the list already holds ARGV[2] items.
var pushIfRoom = redis.NewScript(`
local n = redis.call('LLEN', KEYS[1])
if n >= tonumber(ARGV[2]) then
	return -1
end
return redis.call('RPUSH', KEYS[1], ARGV[1])
`)

type Options struct {
	Key            string
	MaxLen         int64
	OverflowPolicy OverflowPolicy
}

// EnqueueResult reports the list length after the append and how many head
// items the trim removed.
type EnqueueResult struct {
	Length  int64
	Dropped int64
}

type RedisQueue struct {
	rdb     *redis.Client
	opts    Options
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewRedisQueue(rdb *redis.Client, opts Options, m *metrics.Metrics, log *zap.Logger) *RedisQueue {
	if opts.OverflowPolicy == "" {
		opts.OverflowPolicy = DropOldest
	}
	return &RedisQueue{rdb: rdb, opts: opts, metrics: m, log: log}
}

// Key returns the name of the Redis list.
func (q *RedisQueue) Key() string { return q.opts.Key }

// Enqueue appends item to the tail and enforces the cap per the overflow
// policy.
func (q *RedisQueue) Enqueue(ctx context.Context, item []byte) (EnqueueResult, error) {
	if q.opts.OverflowPolicy == Reject {
		return q.pushIfRoom(ctx, item)
	}
	return q.pushAndTrim(ctx, item)
}

// Requeue puts a previously popped item back on the tail. The item loses its
// original position. Requeues always use head-trim so a retry is never
// refused by the reject policy.
func (q *RedisQueue) Requeue(ctx context.Context, item []byte) error {
	_, err := q.pushAndTrim(ctx, item)
	return err
}

// Pop blocks up to timeout for the head item. It returns nil, nil when the
// wait times out.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.opts.Key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", q.opts.Key, err)
	}
	// res is [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("blpop %s: unexpected reply of %d elements", q.opts.Key, len(res))
	}
	return []byte(res[1]), nil
}

// Len returns the current list length.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.opts.Key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.opts.Key, err)
	}
	q.metrics.QueueLength.Set(float64(n))
	return n, nil
}

// Ping checks that Redis is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) pushAndTrim(ctx context.Context, item []byte) (EnqueueResult, error) {
	pipe := q.rdb.TxPipeline()
	push := pipe.RPush(ctx, q.opts.Key, item)
	pipe.LTrim(ctx, q.opts.Key, -q.opts.MaxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return EnqueueResult{}, fmt.Errorf("rpush+ltrim %s: %w", q.opts.Key, err)
	}

	res := EnqueueResult{Length: push.Val()}
	if res.Length > q.opts.MaxLen {
		res.Dropped = res.Length - q.opts.MaxLen
		res.Length = q.opts.MaxLen
		q.metrics.QueueDroppedTotal.Add(float64(res.Dropped))
		q.log.Warn("queue over capacity, dropped oldest events",
			zap.String("key", q.opts.Key),
			zap.Int64("dropped", res.Dropped),
			zap.Int64("max_len", q.opts.MaxLen),
		)
	}
	q.metrics.QueueLength.Set(float64(res.Length))
	return res, nil
}

func (q *RedisQueue) pushIfRoom(ctx context.Context, item []byte) (EnqueueResult, error) {
	n, err := pushIfRoom.Run(ctx, q.rdb, []string{q.opts.Key}, item, q.opts.MaxLen).Int64()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("push-if-room %s: %w", q.opts.Key, err)
	}
	if n < 0 {
		q.metrics.QueueRejectedTotal.Inc()
		q.metrics.QueueLength.Set(float64(q.opts.MaxLen))
		return EnqueueResult{Length: q.opts.MaxLen}, ErrQueueFull
	}
	q.metrics.QueueLength.Set(float64(n))
	return EnqueueResult{Length: n}, nil
}
