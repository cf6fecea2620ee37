package cadence

import "time"

// Metrics captures engine-level telemetry.
type Metrics interface {
	// ObserveBatchDuration records the time to process a batch.
	ObserveBatchDuration(duration time.Duration)
	// AddEnrolled increments the count of created enrollments.
	AddEnrolled(count int)
	// AddAdvanced increments the count of processed steps.
	AddAdvanced(count int)
	// AddCompleted increments the count of completed enrollments.
	AddCompleted(count int)
	// AddErrors increments the count of failed advances.
	AddErrors(count int)
	// AddRetries increments the count of failures left for a later retry.
	AddRetries(count int)
	// AddDead increments the count of dead-lettered enrollments.
	AddDead(count int)
	// AddDispatchErrors increments the count of dispatches the dispatcher rejected.
	AddDispatchErrors(count int)
	// SetDue updates the current number of due enrollments.
	SetDue(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// AddEnrolled implements Metrics.
func (NopMetrics) AddEnrolled(int) {}

// AddAdvanced implements Metrics.
func (NopMetrics) AddAdvanced(int) {}

// AddCompleted implements Metrics.
func (NopMetrics) AddCompleted(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// AddDispatchErrors implements Metrics.
func (NopMetrics) AddDispatchErrors(int) {}

// SetDue implements Metrics.
func (NopMetrics) SetDue(int) {}
