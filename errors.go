package cadence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every lookup failure.
	ErrNotFound = errors.New("cadence: not found")
	// ErrLeadNotFound is returned when a lead id does not resolve.
	ErrLeadNotFound = fmt.Errorf("%w: lead", ErrNotFound)
	// ErrCadenceNotFound is returned when a cadence id does not resolve.
	ErrCadenceNotFound = fmt.Errorf("%w: cadence", ErrNotFound)
	// ErrEnrollmentNotFound is returned when an enrollment id does not resolve.
	ErrEnrollmentNotFound = fmt.Errorf("%w: enrollment", ErrNotFound)
	// ErrConflict is matched by ConflictError.
	ErrConflict = errors.New("cadence: lead already has an active enrollment")
	// ErrProcessing is matched by ProcessingError.
	ErrProcessing = errors.New("cadence: step processing failed")
	// ErrInvalidCadence indicates a cadence template that cannot be scheduled.
	ErrInvalidCadence = errors.New("cadence: invalid cadence")
	// ErrInvalidTimeOfDay is returned when a step time is not HH:MM.
	ErrInvalidTimeOfDay = errors.New("cadence: time of day must be HH:MM")
	// ErrLeadIDRequired is returned when enrolling with an empty lead id.
	ErrLeadIDRequired = errors.New("cadence: lead id is required")
	// ErrCadenceIDRequired is returned when enrolling with an empty cadence id.
	ErrCadenceIDRequired = errors.New("cadence: cadence id is required")
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("cadence: batch size must be positive")
	// ErrStaleEnrollment is returned by stores when a guarded update lost a race.
	ErrStaleEnrollment = errors.New("cadence: enrollment changed concurrently")
	// ErrClaimed is returned when an enrollment is leased by another runner.
	ErrClaimed = errors.New("cadence: enrollment is claimed by another runner")
	// ErrSchedulerPanic indicates a scheduler loop panic.
	ErrSchedulerPanic = errors.New("cadence: scheduler panic")
)

// ConflictError reports an enrollment rejected because the lead is already active in a cadence.
type ConflictError struct {
	LeadID       string
	EnrollmentID string
	CadenceID    string
}

func (e *ConflictError) Error() string {
	if e.CadenceID == "" {
		return fmt.Sprintf("cadence: lead %s already has an active enrollment", e.LeadID)
	}

	return fmt.Sprintf("cadence: lead %s already active in cadence %s", e.LeadID, e.CadenceID)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ProcessingError wraps a store or computation failure raised while advancing an enrollment.
// The enrollment is left as it was before the failed call.
type ProcessingError struct {
	EnrollmentID string
	Err          error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("cadence: advance enrollment %s: %v", e.EnrollmentID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProcessing.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}

// ErrorKind classifies errors for aggregate results.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindProcessing ErrorKind = "processing"
	KindInvalid    ErrorKind = "invalid"
	KindInternal   ErrorKind = "internal"
)

// Kind returns the ErrorKind of err, or an empty kind for nil.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrProcessing):
		return KindProcessing
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCadence),
		errors.Is(err, ErrInvalidTimeOfDay),
		errors.Is(err, ErrLeadIDRequired),
		errors.Is(err, ErrCadenceIDRequired),
		errors.Is(err, ErrInvalidBatchSize):
		return KindInvalid
	default:
		return KindInternal
	}
}
