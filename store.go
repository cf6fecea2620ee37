package cadence

import (
	"context"
	"time"
)

// Store is the persistence contract of the engine. Lookups return an error matching
// ErrNotFound when the record does not exist.
type Store interface {
	// FindLead returns the lead or ErrLeadNotFound.
	FindLead(ctx context.Context, leadID string) (Lead, error)
	// FindCadence returns the cadence or ErrCadenceNotFound.
	FindCadence(ctx context.Context, cadenceID string) (Cadence, error)
	// FindActiveEnrollmentByLead returns the active enrollment of a lead across all cadences.
	FindActiveEnrollmentByLead(ctx context.Context, leadID string) (Enrollment, bool, error)
	// FindEnrollment returns the enrollment or ErrEnrollmentNotFound.
	FindEnrollment(ctx context.Context, id string) (Enrollment, error)
	// InsertEnrollment persists a new enrollment. It must return a *ConflictError if the lead
	// already has an active enrollment, atomically with the insert.
	InsertEnrollment(ctx context.Context, enrollment Enrollment) (Enrollment, error)
	// UpdateEnrollment applies a guarded patch, see EnrollmentPatch.
	UpdateEnrollment(ctx context.Context, id string, patch EnrollmentPatch) (Enrollment, error)
	// FindDueEnrollments returns active enrollments with NextActivityAt <= now,
	// oldest NextActivityAt first, at most limit rows.
	FindDueEnrollments(ctx context.Context, now time.Time, limit int) ([]Enrollment, error)
	// AppendActivity writes an activity record.
	AppendActivity(ctx context.Context, record ActivityRecord) error
	// SetLeadStatus updates the status field of a lead.
	SetLeadStatus(ctx context.Context, leadID, status string) error
	// IncrementCadenceUsage bumps the usage counter of a cadence.
	IncrementCadenceUsage(ctx context.Context, cadenceID string) error
	// IncrementCampaignLeadCount bumps the lead counter of a campaign.
	IncrementCampaignLeadCount(ctx context.Context, campaignID string) error
}

// Claimer leases due enrollments so that concurrent schedulers do not process the same row.
// A lease is released by UpdateEnrollment, RecordFailure or by expiring.
type Claimer interface {
	// ClaimDue selects like FindDueEnrollments, skipping unexpired leases, and leases the rows until leaseUntil.
	ClaimDue(ctx context.Context, now time.Time, limit int, leaseUntil time.Time) ([]Enrollment, error)
	// ClaimEnrollment leases a single enrollment regardless of its due time.
	// It returns ErrClaimed if another unexpired lease exists.
	ClaimEnrollment(ctx context.Context, id string, now, leaseUntil time.Time) (Enrollment, error)
}

// FailureRecorder persists retry bookkeeping for failed advances.
type FailureRecorder interface {
	// RecordFailure increments attempts, stores the error and releases the claim.
	RecordFailure(ctx context.Context, id string, failure Failure) error
}

// DueCounter provides a total count of due enrollments.
type DueCounter interface {
	// DueCount returns the current number of due enrollments.
	DueCount(ctx context.Context, now time.Time) (int, error)
}

// Transactor runs a function against a transactional view of the store.
// The view is committed when fn returns nil and rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

func withinTx(ctx context.Context, store Store, fn func(ctx context.Context, tx Store) error) error {
	if txr, ok := store.(Transactor); ok {
		return txr.WithinTx(ctx, fn)
	}

	return fn(ctx, store)
}
