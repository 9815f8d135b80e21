package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoHandler is returned when a job type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")
	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("queue not running")
	// ErrFull is returned when the buffer cannot take another job.
	ErrFull = errors.New("queue full")
)

// Job is a unit of background work. Jobs sharing a non-empty Key coalesce:
// while one is waiting in the buffer, further enqueues of the same key are
// accepted and dropped. A job that has started running no longer blocks its key.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue dispatches jobs to per-type handlers on a fixed pool of goroutines.
// Failed jobs are retried after RetryDelay up to MaxRetries times.
type Queue struct {
	name       string
	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	jobs       chan Job

	mu       sync.RWMutex
	handlers map[string]Handler
	waiting  map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool

	wg sync.WaitGroup
}

// NewQueue builds a stopped queue.
func NewQueue(name string, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
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
		name:       name,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job, cfg.BufferSize),
		handlers:   make(map[string]Handler),
		waiting:    make(map[string]struct{}),
	}
}

// Handle registers the handler for a job type, replacing any earlier one.
func (q *Queue) Handle(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Start launches the workers. Calling it on a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 1; i <= q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels the workers and pending retries and waits for them. Jobs still
// buffered are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	dropped := len(q.jobs)
	for len(q.jobs) > 0 {
		<-q.jobs
	}
	q.waiting = make(map[string]struct{})
	q.mu.Unlock()
	q.logger.Info("queue stopped", zap.Int("dropped", dropped))
}

// Enqueue buffers a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if _, ok := q.handlers[job.Type]; !ok {
		return fmt.Errorf("%s: %w: %s", q.name, ErrNoHandler, job.Type)
	}
	if job.Key != "" {
		if _, dup := q.waiting[job.Key]; dup {
			return nil
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		if job.Key != "" {
			q.waiting[job.Key] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrFull)
	}
}

// Pending reports how many jobs are buffered.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) work(worker int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.mu.Lock()
			if job.Key != "" {
				delete(q.waiting, job.Key)
			}
			handler := q.handlers[job.Type]
			q.mu.Unlock()

			if err := handler(q.ctx, job); err != nil {
				q.retry(worker, job, err)
			}
		}
	}
}

func (q *Queue) retry(worker int, job Job, cause error) {
	fields := []zap.Field{
		zap.Int("worker", worker),
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Error(cause),
	}
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job abandoned", append(fields, zap.Int("attempts", job.Attempt))...)
		return
	}
	q.logger.Warn("job failed, retrying", append(fields, zap.Int("attempt", job.Attempt))...)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.logger.Error("job requeue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()
}
