package inmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs"
)

func TestQueue_ProcessesEveryJob(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := NewQueue(10, 3, WithResultHook(func(job jobs.Payload, r jobs.Result) {
		mu.Lock()
		defer mu.Unlock()
		seen[job.BatchItemID] = r.Success
	}))
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Start(ctx, func(_ context.Context, job jobs.Payload) jobs.Result {
		return jobs.Result{BatchItemID: job.BatchItemID, Success: job.BatchItemID != "item-3"}
	}))

	for _, id := range []string{"item-1", "item-2", "item-3", "item-4", "item-5"} {
		eventID, err := q.Publish(ctx, jobs.Payload{BatchID: "b", BatchItemID: id})
		require.NoError(t, err)
		assert.NotEmpty(t, eventID)
	}

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	assert.False(t, seen["item-3"])
	assert.True(t, seen["item-5"])
}

func TestQueue_RunsJobsConcurrently(t *testing.T) {
	q := NewQueue(4, 4)
	defer q.Close()

	var running, peak atomic.Int32
	release := make(chan struct{})
	ctx := context.Background()
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Payload) jobs.Result {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return jobs.Result{Success: true}
	}))

	for i := 0; i < 4; i++ {
		_, err := q.Publish(ctx, jobs.Payload{BatchID: "b", BatchItemID: "i"})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return peak.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, q.Drain(ctx))
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1)
	require.NoError(t, q.Stop(context.Background()))

	_, err := q.Publish(context.Background(), jobs.Payload{BatchID: "b", BatchItemID: "i"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), ErrClosed)
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, 1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Publish(ctx, jobs.Payload{BatchID: "b", BatchItemID: "i"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, q.Drain(context.Background()), "an abandoned publish is not pending")
}

func TestQueue_StopDropsBufferedJobs(t *testing.T) {
	q := NewQueue(5, 1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := q.Publish(ctx, jobs.Payload{BatchID: "b", BatchItemID: "i"})
		require.NoError(t, err)
	}

	require.NoError(t, q.Stop(ctx))
	assert.NoError(t, q.Drain(ctx))
}
