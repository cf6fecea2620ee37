package cadence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BatchRequest selects what RunBatch processes.
type BatchRequest struct {
	// EnrollmentID processes exactly this enrollment, due or not.
	EnrollmentID string
	// BatchSize caps the number of due enrollments, the configured size when <= 0.
	BatchSize int
}

// BatchItem is the outcome for one enrollment of a batch.
type BatchItem struct {
	EnrollmentID string      `json:"enrollmentId"`
	Success      bool        `json:"success"`
	Result       *StepResult `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
	Kind         ErrorKind   `json:"kind,omitempty"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Processed int         `json:"processed"`
	Results   []BatchItem `json:"results"`
}

// Failed returns the number of unsuccessful items.
func (r BatchResult) Failed() int {
	failed := 0
	for _, item := range r.Results {
		if !item.Success {
			failed++
		}
	}

	return failed
}

// Scheduler selects due enrollments and advances them one by one.
// A failing enrollment never stops the rest of its batch.
type Scheduler struct {
	store    Store
	advancer *Advancer
	cfg      Config

	dueMu sync.Mutex
	dueAt time.Time
}

// NewScheduler constructs a Scheduler with defaults and optional settings.
func NewScheduler(store Store, advancer *Advancer, opts ...Option) *Scheduler {
	if store == nil {
		panic("cadence: nil Store")
	}
	if advancer == nil {
		panic("cadence: nil Advancer")
	}

	return &Scheduler{store: store, advancer: advancer, cfg: newConfig(opts)}
}

// RunBatch processes one enrollment or one batch of due enrollments ordered by due time.
// The returned error is only set when the batch could not be selected or ctx was canceled.
func (s *Scheduler) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	start := time.Now()
	defer func() {
		s.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	result := BatchResult{Results: make([]BatchItem, 0)}

	if req.EnrollmentID != "" {
		enrollment, err := s.selectOne(ctx, req.EnrollmentID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Processed = 1
			result.Results = append(result.Results, failedItem(req.EnrollmentID, err))

			return result, nil
		}
		result.Results = append(result.Results, s.process(ctx, enrollment))
		result.Processed = 1

		return result, nil
	}

	size := req.BatchSize
	if size <= 0 {
		size = s.cfg.BatchSize
	}
	enrollments, err := s.selectDue(ctx, size)
	if err != nil {
		return result, err
	}

	for i := range enrollments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Results = append(result.Results, s.process(ctx, enrollments[i]))
		result.Processed++
	}

	s.cfg.Logger.Debug("cadence batch done", "processed", result.Processed, "failed", result.Failed())

	return result, nil
}

// Run polls for due enrollments until ctx is canceled. Full batches with progress are followed
// by an immediate poll, otherwise the scheduler waits PollInterval.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.cfg.Logger.Error("cadence scheduler panic", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrSchedulerPanic, rec)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		result, err := s.RunBatch(ctx, BatchRequest{})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.cfg.Logger.Warn("cadence batch failed", "err", err)
		}

		progressed := result.Processed > 0 && result.Failed() < result.Processed
		if err == nil && result.Processed >= s.cfg.BatchSize && progressed {
			continue
		}

		s.maybeRecordDue(ctx)
		if sleepErr := s.sleep(ctx, s.cfg.PollInterval); sleepErr != nil {
			return nil
		}
	}
}

func (s *Scheduler) selectOne(ctx context.Context, id string) (Enrollment, error) {
	now := s.cfg.Clock.Now().UTC()
	if claimer, ok := s.store.(Claimer); ok {
		return claimer.ClaimEnrollment(ctx, id, now, now.Add(s.cfg.ClaimTTL))
	}

	return s.store.FindEnrollment(ctx, id)
}

func (s *Scheduler) selectDue(ctx context.Context, size int) ([]Enrollment, error) {
	now := s.cfg.Clock.Now().UTC()
	var (
		enrollments []Enrollment
		err         error
	)
	if claimer, ok := s.store.(Claimer); ok {
		enrollments, err = claimer.ClaimDue(ctx, now, size, now.Add(s.cfg.ClaimTTL))
	} else {
		enrollments, err = s.store.FindDueEnrollments(ctx, now, size)
	}
	if err != nil {
		return nil, fmt.Errorf("cadence: select due enrollments: %w", err)
	}

	return enrollments, nil
}

func (s *Scheduler) process(ctx context.Context, enrollment Enrollment) BatchItem {
	advanceCtx := ctx
	cancel := func() {}
	if s.cfg.AdvanceTimeout > 0 {
		advanceCtx, cancel = context.WithTimeout(ctx, s.cfg.AdvanceTimeout)
	}
	res, err := s.advancer.Advance(advanceCtx, enrollment)
	cancel()

	if err != nil {
		if ctx.Err() == nil {
			s.recordFailure(ctx, enrollment, err)
		}

		return failedItem(enrollment.ID, err)
	}

	return BatchItem{EnrollmentID: enrollment.ID, Success: true, Result: &res}
}

func (s *Scheduler) recordFailure(ctx context.Context, enrollment Enrollment, err error) {
	if errors.Is(err, ErrStaleEnrollment) {
		s.cfg.Logger.Debug("cadence enrollment changed concurrently", "enrollment", enrollment.ID, "err", err)

		return
	}

	s.cfg.Metrics.AddErrors(1)
	action := s.cfg.FailureClassifier(ctx, enrollment, err)
	failure := s.cfg.RetryPolicy.failure(action, enrollment.Attempts+1, err, s.cfg.Clock.Now().UTC())

	recorder, ok := s.store.(FailureRecorder)
	if !ok {
		if failure.Dead {
			s.cfg.Logger.Warn("cadence store does not record failures; falling back to retry", "enrollment", enrollment.ID)
		}
		s.cfg.Metrics.AddRetries(1)
		s.cfg.Logger.Warn("cadence advance failed", "enrollment", enrollment.ID, "err", err)

		return
	}

	if recErr := recorder.RecordFailure(ctx, enrollment.ID, failure); recErr != nil {
		s.cfg.Logger.Warn("cadence failure record failed", "enrollment", enrollment.ID, "err", recErr)
	}
	if failure.Dead {
		s.cfg.Metrics.AddDead(1)
		s.cfg.Logger.Error("cadence enrollment failed permanently", "enrollment", enrollment.ID, "attempts", failure.Attempts, "err", err)

		return
	}
	s.cfg.Metrics.AddRetries(1)
	s.cfg.Logger.Warn("cadence advance failed", "enrollment", enrollment.ID, "attempts", failure.Attempts, "err", err)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) maybeRecordDue(ctx context.Context) {
	counter, ok := s.store.(DueCounter)
	if !ok {
		return
	}
	if s.cfg.DueInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := s.cfg.Clock.Now().UTC()
	s.dueMu.Lock()
	nextAllowed := s.dueAt.Add(s.cfg.DueInterval)
	if !s.dueAt.IsZero() && now.Before(nextAllowed) {
		s.dueMu.Unlock()

		return
	}
	s.dueAt = now
	s.dueMu.Unlock()

	count, err := counter.DueCount(ctx, now)
	if err != nil {
		s.cfg.Logger.Warn("cadence due count failed", "err", err)

		return
	}

	s.cfg.Metrics.SetDue(count)
}

func failedItem(id string, err error) BatchItem {
	return BatchItem{EnrollmentID: id, Success: false, Error: err.Error(), Kind: Kind(err)}
}
