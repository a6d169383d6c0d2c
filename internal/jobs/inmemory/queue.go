// Package inmemory is a channel-backed job queue with a fixed worker pool.
// It suits single-instance deployments and tests.
package inmemory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/jobs"
)

// ErrClosed is returned when publishing to a stopped queue.
var ErrClosed = errors.New("queue is closed")

// Queue distributes jobs to a pool of workers. Jobs of the same batch run
// concurrently and in no particular order. The queue never retries a job;
// retries are an explicit, separate action.
type Queue struct {
	jobChan   chan jobs.Payload
	closeChan chan struct{}
	logger    *slog.Logger
	onResult  func(jobs.Payload, jobs.Result)
	idle      chan struct{}
	wg        sync.WaitGroup
	workers   int
	pending   int
	mu        sync.RWMutex
	pendingMu sync.Mutex
	closed    bool
	started   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithResultHook calls fn after every processed job.
func WithResultHook(fn func(jobs.Payload, jobs.Result)) Option {
	return func(q *Queue) { q.onResult = fn }
}

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// NewQueue creates a queue holding up to bufferSize waiting jobs, drained by
// workers goroutines once started.
func NewQueue(bufferSize, workers int, opts ...Option) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	q := &Queue{
		jobChan:   make(chan jobs.Payload, bufferSize),
		closeChan: make(chan struct{}),
		workers:   workers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("component", "job_queue")
	return q
}

// Publish enqueues job. It blocks while the buffer is full.
func (q *Queue) Publish(ctx context.Context, job jobs.Payload) (string, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	if job.EventID == "" {
		job.EventID = uuid.New().String()
	}

	q.addPending()
	select {
	case q.jobChan <- job:
		return job.EventID, nil
	case <-ctx.Done():
		q.donePending()
		return "", ctx.Err()
	case <-q.closeChan:
		q.donePending()
		return "", ErrClosed
	}
}

func (q *Queue) addPending() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
}

func (q *Queue) donePending() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.started {
		return errors.New("queue already started")
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, handler)
	}
	q.logger.Info("job queue started", "workers", q.workers)
	return nil
}

func (q *Queue) worker(ctx context.Context, id int, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			q.process(ctx, id, job, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, worker int, job jobs.Payload, handler jobs.Handler) {
	defer q.donePending()

	start := time.Now()
	result := handler(ctx, job)

	q.logger.Debug("job processed",
		"worker", worker,
		"event_id", job.EventID,
		"batch_id", job.BatchID,
		"item_id", job.BatchItemID,
		"success", result.Success,
		"duration_ms", time.Since(start).Milliseconds())

	if q.onResult != nil {
		q.onResult(job, result)
	}
}

// Drain waits until every published job has been processed or ctx ends.
func (q *Queue) Drain(ctx context.Context) error {
	q.pendingMu.Lock()
	if q.pending == 0 {
		q.pendingMu.Unlock()
		return nil
	}
	idle := q.idle
	q.pendingMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting jobs and waits for running workers to finish their
// current job. Jobs still buffered are dropped; their items stay pending and
// can be re-enqueued.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	dropped := 0
	for {
		select {
		case <-q.jobChan:
			dropped++
			q.donePending()
		default:
			q.logger.Info("job queue stopped", "dropped", dropped)
			return nil
		}
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
