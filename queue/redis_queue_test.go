package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventpipe/metrics"
)

const testKey = "events:queue"

func setupQueueTest(t *testing.T, maxLen int64, policy OverflowPolicy) (*RedisQueue, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	m := metrics.New(nil)
	q := NewRedisQueue(rdb, Options{Key: testKey, MaxLen: maxLen, OverflowPolicy: policy}, m, zap.NewNop())
	return q, mr, m
}

func listContents(t *testing.T, mr *miniredis.Miniredis) []string {
	t.Helper()
	if !mr.Exists(testKey) {
		return nil
	}
	items, err := mr.List(testKey)
	require.NoError(t, err)
	return items
}

func TestEnqueue_PopIsFIFO(t *testing.T) {
	q, _, _ := setupQueueTest(t, 10, DropOldest)
	ctx := context.Background()

	for _, item := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, []byte(item))
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestEnqueue_ItemIsPoppableImmediately(t *testing.T) {
	q, mr, _ := setupQueueTest(t, 10, DropOldest)

	res, err := q.Enqueue(context.Background(), []byte(`{"site_id":"s1"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Length)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, []string{`{"site_id":"s1"}`}, listContents(t, mr))
}

func TestEnqueue_DropOldestKeepsNewest(t *testing.T) {
	q, mr, m := setupQueueTest(t, 3, DropOldest)
	ctx := context.Background()

	var dropped int64
	for i := 1; i <= 5; i++ {
		res, err := q.Enqueue(ctx, []byte(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Length, int64(3))
		dropped += res.Dropped
	}

	assert.Equal(t, []string{"e3", "e4", "e5"}, listContents(t, mr))
	assert.Equal(t, int64(2), dropped)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.QueueDroppedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueLength))
}

func TestEnqueue_ConcurrentAppendsNeverExceedCap(t *testing.T) {
	q, mr, m := setupQueueTest(t, 100, DropOldest)
	ctx := context.Background()

	const producers, perProducer = 20, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := q.Enqueue(ctx, []byte(fmt.Sprintf("p%d-%d", p, i)))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, listContents(t, mr), 100)
	assert.Equal(t, float64(producers*perProducer-100), testutil.ToFloat64(m.QueueDroppedTotal))
}

func TestEnqueue_RejectPolicy(t *testing.T) {
	q, mr, m := setupQueueTest(t, 2, Reject)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte("a"))
	require.NoError(t, err)
	res, err := q.Enqueue(ctx, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Length)

	_, err = q.Enqueue(ctx, []byte("c"))
	assert.True(t, errors.Is(err, ErrQueueFull))

	assert.Equal(t, []string{"a", "b"}, listContents(t, mr))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueueRejectedTotal))
	assert.Zero(t, testutil.ToFloat64(m.QueueDroppedTotal))
}

func TestRequeue_AppendsToTailEvenWhenFull(t *testing.T) {
	q, mr, _ := setupQueueTest(t, 2, Reject)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, []byte("b"))
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, []byte("retry")))
	assert.Equal(t, []string{"b", "retry"}, listContents(t, mr))
}

func TestRequeue_LosesOriginalPosition(t *testing.T) {
	q, mr, _ := setupQueueTest(t, 10, DropOldest)
	ctx := context.Background()

	for _, item := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, []byte(item))
		require.NoError(t, err)
	}
	head, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Requeue(ctx, head))

	assert.Equal(t, []string{"b", "c", "a"}, listContents(t, mr))
}

func TestPop_TimeoutReturnsNil(t *testing.T) {
	q, _, _ := setupQueueTest(t, 10, DropOldest)

	item, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestLen(t *testing.T) {
	q, _, m := setupQueueTest(t, 10, DropOldest)
	ctx := context.Background()

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.Enqueue(ctx, []byte("a"))
	require.NoError(t, err)
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueueLength))
}

func TestEnqueue_Unreachable(t *testing.T) {
	q, mr, _ := setupQueueTest(t, 10, DropOldest)
	mr.Close()

	_, err := q.Enqueue(context.Background(), []byte("a"))
	assert.Error(t, err)
	assert.Error(t, q.Ping(context.Background()))
}
