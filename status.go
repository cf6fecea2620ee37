package cadence

// Status represents the lifecycle state of an enrollment.
type Status string

const (
	// StatusActive indicates the enrollment is progressing through its cadence.
	StatusActive Status = "active"
	// StatusCompleted indicates every step was processed.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the enrollment exceeded the configured retry policy.
	// It is only produced when a retry ceiling or a dead classifier is configured.
	StatusFailed Status = "failed"
)
