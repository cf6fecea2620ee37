package cadence

import "time"

// DirectionOutbound is the only direction produced by the engine.
const DirectionOutbound = "outbound"

const (
	// ActivityStatusScheduled marks a step handed to the automation engine.
	ActivityStatusScheduled = "scheduled"
	// ActivityStatusCompleted marks bookkeeping activities such as cadence starts.
	ActivityStatusCompleted = "completed"
)

// ActivityRecord is an append-only log entry. It is never updated after it is written,
// in particular not with the delivery outcome of a dispatched step.
type ActivityRecord struct {
	ID           string
	LeadID       string
	CampaignID   string
	EnrollmentID string
	Type         Action
	Channel      Channel
	Direction    string
	Content      string
	Status       string
	Metadata     ActivityMetadata
	ScheduledAt  *time.Time
	PerformedAt  time.Time
}

// ActivityMetadata describes where in its cadence an activity happened.
type ActivityMetadata struct {
	CadenceID   string `json:"cadenceId,omitempty"`
	CadenceName string `json:"cadenceName,omitempty"`
	StepNumber  int    `json:"stepNumber,omitempty"`
	TotalSteps  int    `json:"totalSteps,omitempty"`
	Day         int    `json:"day"`
}
