// Package queue implements the Queue & Worker Pool (C6): an in-memory FIFO
// of pending work handed to a bounded pool of workers, rate-limited and
// retried with exponential backoff before falling to a dead-letter list.
// Grounded on the teacher's internal/trading/execution_engine.go
// ExecutionPool worker pool and internal/security/rate_limiter.go token
// bucket.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/pkg/observability"
)

// Job is one unit of work the queue carries. OrderID doubles as the job's
// identity: there is exactly one live job per order at a time, so the
// queue never needs a separate job id.
type Job struct {
	OrderID    string
	Attempt    int
	EnqueuedAt time.Time
}

// Handler processes a single job. A non-nil error triggers a retry (subject
// to MaxAttempts) unless it wraps engineerr.ErrVenuePermanent or
// engineerr.ErrValidation, which fail the job immediately.
type Handler func(ctx context.Context, job Job) error

// Config tunes the worker pool, rate limiter, and retry policy.
type Config struct {
	Concurrency   int           // number of workers, default 10
	RatePerMinute int           // token bucket refill rate, default 100
	MaxAttempts   int           // default 3
	BaseDelay     time.Duration // default 1s
	MaxDelay      time.Duration // default 30s
	QueueSize     int           // default 1000
}

// DefaultConfig returns the spec's default tuning.
func DefaultConfig() Config {
	return Config{
		Concurrency:   10,
		RatePerMinute: 100,
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		QueueSize:     1000,
	}
}

// Record is a housekeeping entry retained after a job finishes.
type Record struct {
	OrderID   string
	Attempts  int
	Succeeded bool
	Err       error
	At        time.Time
}

// Queue is the Queue & Worker Pool (C6).
type Queue struct {
	cfg     Config
	logger  *observability.Logger
	limiter *rate.Limiter

	jobs    chan Job
	stopCh  chan struct{}
	wg      sync.WaitGroup

	handler Handler

	mu         sync.Mutex
	depth      int
	completed  []Record // bounded to 100, newest first
	deadLetter []Record // bounded to 50, newest first

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Queue. Start must be called before jobs are processed.
func New(cfg Config, logger *observability.Logger, handler Handler) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	perSecond := float64(cfg.RatePerMinute) / 60.0

	return &Queue{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), cfg.RatePerMinute),
		jobs:    make(chan Job, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		handler: handler,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info(ctx, "queue started", map[string]interface{}{
		"workers":         q.cfg.Concurrency,
		"rate_per_minute": q.cfg.RatePerMinute,
	})
}

// Stop signals every worker to stop dequeuing and waits for in-flight jobs
// to finish. Enqueue still accepts jobs afterwards; they are not processed.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

// Enqueue submits a job for processing. Returns engineerr.ErrQueueError if
// the queue is full.
func (q *Queue) Enqueue(job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		q.mu.Lock()
		q.depth++
		q.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("%w: queue is full", engineerr.ErrQueueError)
	}
}

// Depth returns the current queue depth (jobs enqueued and not yet
// finished, including in-flight retries).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Completed returns the most recent completed job records, newest first.
func (q *Queue) Completed() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, len(q.completed))
	copy(out, q.completed)
	return out
}

// DeadLetter returns the most recent permanently-failed job records,
// newest first.
func (q *Queue) DeadLetter() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, len(q.deadLetter))
	copy(out, q.deadLetter)
	return out
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	if err := q.limiter.Wait(ctx); err != nil {
		q.finish(job, false, err)
		return
	}

	start := time.Now()
	err := q.handler(ctx, job)

	if err == nil {
		q.logger.Info(ctx, "job completed", map[string]interface{}{
			"order_id": job.OrderID,
			"attempt":  job.Attempt,
			"duration": time.Since(start).String(),
		})
		q.finish(job, true, nil)
		return
	}

	if errPermanent(err) || job.Attempt+1 >= q.cfg.MaxAttempts {
		q.logger.Warn(ctx, "job failed permanently", map[string]interface{}{
			"order_id": job.OrderID,
			"attempt":  job.Attempt,
			"error":    err.Error(),
		})
		q.finish(job, false, err)
		return
	}

	delay := q.backoff(job.Attempt)
	job.Attempt++
	q.logger.Warn(ctx, "job failed, retrying", map[string]interface{}{
		"order_id": job.OrderID,
		"attempt":  job.Attempt,
		"delay":    delay.String(),
		"error":    err.Error(),
	})

	go func() {
		select {
		case <-time.After(delay):
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}
		// The job is still counted in depth from its first Enqueue, so it
		// goes back on the channel directly rather than through Enqueue.
		select {
		case q.jobs <- job:
		default:
			err := fmt.Errorf("%w: queue is full", engineerr.ErrQueueError)
			q.logger.Error(ctx, "failed to re-enqueue retried job", err, map[string]interface{}{
				"order_id": job.OrderID,
			})
			q.finish(job, false, err)
		}
	}()
}

func errPermanent(err error) bool {
	return errors.Is(err, engineerr.ErrVenuePermanent) || errors.Is(err, engineerr.ErrValidation)
}

func (q *Queue) backoff(attempt int) time.Duration {
	base := float64(q.cfg.BaseDelay) * pow2(attempt)
	capped := base
	if capped > float64(q.cfg.MaxDelay) {
		capped = float64(q.cfg.MaxDelay)
	}

	q.rngMu.Lock()
	jitterFraction := (q.rng.Float64()*2 - 1) * 0.2 // +/-20%
	q.rngMu.Unlock()

	return time.Duration(capped * (1 + jitterFraction))
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

func (q *Queue) finish(job Job, succeeded bool, err error) {
	record := Record{
		OrderID:   job.OrderID,
		Attempts:  job.Attempt + 1,
		Succeeded: succeeded,
		Err:       err,
		At:        time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depth > 0 {
		q.depth--
	}

	if succeeded {
		q.completed = prepend(q.completed, record, 100)
		return
	}
	q.deadLetter = prepend(q.deadLetter, record, 50)
}

func prepend(records []Record, r Record, max int) []Record {
	records = append([]Record{r}, records...)
	if len(records) > max {
		records = records[:max]
	}
	return records
}
