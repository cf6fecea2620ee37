package cadence

import "time"

// Enrollment is the runtime record of one lead's progress through one cadence.
type Enrollment struct {
	ID         string `json:"id"`
	LeadID     string `json:"leadId"`
	CadenceID  string `json:"cadenceId"`
	CampaignID string `json:"campaignId,omitempty"`
	// CurrentStepIndex points at the next step to execute.
	CurrentStepIndex int `json:"currentStepIndex"`
	// CurrentDay is the day of the most recently executed step.
	CurrentDay          int        `json:"currentDay"`
	Status              Status     `json:"status"`
	NextActivityAt      *time.Time `json:"nextActivityAt"`
	NextActivityChannel Channel    `json:"nextActivityChannel,omitempty"`
	NextActivityType    Action     `json:"nextActivityType,omitempty"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`

	// Attempts counts consecutive failed advances of the current step.
	Attempts     int        `json:"attempts,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	ClaimedUntil *time.Time `json:"claimedUntil,omitempty"`
}

// IsDue reports whether the enrollment is active and scheduled at or before now.
func (e Enrollment) IsDue(now time.Time) bool {
	return e.Status == StatusActive && e.NextActivityAt != nil && !e.NextActivityAt.After(now)
}

// EnrollmentPatch is the state written by the Advancer.
//
// Stores apply it only if the enrollment is still active at ExpectedStepIndex,
// otherwise they return ErrStaleEnrollment. Applying a patch resets Attempts and LastError
// and releases any claim.
type EnrollmentPatch struct {
	ExpectedStepIndex   int
	CurrentStepIndex    int
	CurrentDay          int
	Status              Status
	NextActivityAt      *time.Time
	NextActivityChannel Channel
	NextActivityType    Action
	CompletedAt         *time.Time
	UpdatedAt           time.Time
}

// Apply returns e with the patch applied.
func (p EnrollmentPatch) Apply(e Enrollment) Enrollment {
	e.CurrentStepIndex = p.CurrentStepIndex
	e.CurrentDay = p.CurrentDay
	e.Status = p.Status
	e.NextActivityAt = p.NextActivityAt
	e.NextActivityChannel = p.NextActivityChannel
	e.NextActivityType = p.NextActivityType
	e.CompletedAt = p.CompletedAt
	e.UpdatedAt = p.UpdatedAt
	e.Attempts = 0
	e.LastError = ""
	e.ClaimedUntil = nil

	return e
}

// Failure captures a failed advance for stores that track retries.
type Failure struct {
	Attempts int
	Err      error
	// RetryAt moves NextActivityAt when set.
	RetryAt *time.Time
	// Dead marks the enrollment failed.
	Dead bool
	At   time.Time
}
