// Package jobs runs background work on a small in-process worker pool.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxRetryDelay = 30 * time.Second

// Job is one unit of queued work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry.
type Handler func(context.Context, Job) error

// FailureHandler receives a job that used up its retries.
type FailureHandler func(Job, error)

// QueueConfig sizes the pool. RetryDelay is the first backoff step and
// doubles per attempt up to 30s.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	OnFailure  FailureHandler
	Logger     *zap.Logger
}

// Queue fans jobs out to a fixed set of goroutines.
type Queue struct {
	name    string
	handle  Handler
	cfg     QueueConfig
	log     *zap.Logger
	pending chan Job

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewQueue builds an idle queue; Start must run before Enqueue.
func NewQueue(name string, handle Handler, cfg QueueConfig) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 4 * cfg.Workers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handle:  handle,
		cfg:     cfg,
		log:     cfg.Logger.Named("jobs").With(zap.String("queue", name)),
		pending: make(chan Job, cfg.BufferSize),
	}
}

// Start spawns the workers once; repeated calls do nothing.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for n := 0; n < q.cfg.Workers; n++ {
		q.running.Add(1)
		go q.work(q.ctx)
	}
	q.log.Info("workers started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and waits for them. Jobs still buffered are lost.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.ctx, q.cancel = nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.running.Wait()
	q.log.Info("workers stopped")
}

// Enqueue hands job to the pool, blocking while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	qctx := q.ctx
	q.mu.Unlock()
	if qctx == nil {
		return fmt.Errorf("queue %s is not running", q.name)
	}
	return q.push(ctx, qctx, job)
}

func (q *Queue) push(ctx, qctx context.Context, job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.pending <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-qctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, qctx.Err())
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.running.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.pending:
			if err := q.run(ctx, job); err != nil {
				q.fail(ctx, job, err)
			}
		}
	}
}

// run shields the worker from a panicking handler.
func (q *Queue) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return q.handle(ctx, job)
}

func (q *Queue) fail(ctx context.Context, job Job, err error) {
	job.Attempt++
	log := q.log.With(zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt))
	if job.Attempt > q.cfg.MaxRetries {
		log.Error("job abandoned", zap.Error(err))
		if q.cfg.OnFailure != nil {
			q.cfg.OnFailure(job, err)
		}
		return
	}

	delay := q.backoff(job.Attempt)
	log.Warn("job failed; retry scheduled", zap.Duration("delay", delay), zap.Error(err))
	q.running.Add(1)
	go func() {
		defer q.running.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			if err := q.push(ctx, ctx, job); err != nil {
				log.Error("requeue failed", zap.Error(err))
			}
		}
	}()
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
