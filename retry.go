package cadence

import (
	"context"
	"time"
)

// FailureAction defines how a failed advance should be handled.
type FailureAction int

const (
	// FailureRetry leaves the enrollment to be selected again.
	FailureRetry FailureAction = iota
	// FailureDead marks the enrollment failed immediately.
	FailureDead
)

// FailureClassifier decides whether a failure is retryable.
type FailureClassifier func(ctx context.Context, enrollment Enrollment, err error) FailureAction

// RetryPolicy bounds retries of failed advances.
//
// The zero value retries on every poll without limit.
type RetryPolicy struct {
	// MaxAttempts marks the enrollment failed once this many consecutive advances failed.
	// Zero disables the ceiling.
	MaxAttempts int
	// Backoff postpones the next attempt by this duration. Zero retries on the next poll.
	Backoff time.Duration
}

func (p RetryPolicy) failure(action FailureAction, attempts int, err error, now time.Time) Failure {
	f := Failure{Attempts: attempts, Err: err, At: now}
	if action == FailureDead || (p.MaxAttempts > 0 && attempts >= p.MaxAttempts) {
		f.Dead = true

		return f
	}
	if p.Backoff > 0 {
		retryAt := now.Add(p.Backoff)
		f.RetryAt = &retryAt
	}

	return f
}

func defaultFailureClassifier(context.Context, Enrollment, error) FailureAction {
	return FailureRetry
}
