package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/velmie/cadence"
)

const (
	defaultQueueSize    = 256
	defaultQueueWorkers = 4
	defaultRetryDelay   = time.Second
)

// QueueConfig configures a Queue.
type QueueConfig struct {
	// Size is the buffer capacity, 256 when zero.
	Size int
	// Workers is the number of concurrent deliveries, 4 when zero.
	Workers int
	// Rate limits deliveries per second across all workers. Zero disables the limit.
	Rate float64
	// Burst is the limiter burst, at least 1.
	Burst int
	// Retries is the number of extra attempts per delivery.
	Retries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	Logger     cadence.Logger
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Size <= 0 {
		c.Size = defaultQueueSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultQueueWorkers
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = cadence.NopLogger{}
	}

	return c
}

// Queue makes a blocking sender fire-and-forget. Dispatch only enqueues;
// workers deliver with the configured rate and retries.
type Queue struct {
	sender  cadence.Dispatcher
	cfg     QueueConfig
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
	items  chan cadence.StepDispatch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ cadence.Dispatcher = (*Queue)(nil)

// NewQueue starts the workers of a queue in front of sender.
func NewQueue(sender cadence.Dispatcher, cfg QueueConfig) (*Queue, error) {
	if sender == nil {
		return nil, ErrSenderRequired
	}
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		items:   make(chan cadence.StepDispatch, cfg.Size),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q, nil
}

// Dispatch enqueues d without blocking. The caller's context is not used for delivery.
func (q *Queue) Dispatch(_ context.Context, d cadence.StepDispatch) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued dispatches.
func (q *Queue) Len() int {
	return len(q.items)
}

// Close stops accepting dispatches and waits until the buffer is drained.
// If ctx ends first, in-flight deliveries are canceled and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for d := range q.items {
		q.deliver(d)
	}
}

func (q *Queue) deliver(d cadence.StepDispatch) {
	var err error
	for attempt := 0; attempt <= q.cfg.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(q.cfg.RetryDelay)
			select {
			case <-q.ctx.Done():
				timer.Stop()
				q.drop(d, q.ctx.Err())
				return
			case <-timer.C:
			}
		}
		if waitErr := q.limiter.Wait(q.ctx); waitErr != nil {
			q.drop(d, waitErr)
			return
		}
		if err = q.sender.Dispatch(q.ctx, d); err == nil {
			return
		}
		q.cfg.Logger.Debug("dispatch attempt failed",
			"enrollment", d.EnrollmentID,
			"attempt", attempt+1,
			"err", err,
		)
	}
	q.drop(d, err)
}

func (q *Queue) drop(d cadence.StepDispatch, err error) {
	q.cfg.Logger.Warn("dispatch dropped",
		"enrollment", d.EnrollmentID,
		"lead", d.LeadID,
		"step", d.StepNumber,
		"err", err,
	)
}
