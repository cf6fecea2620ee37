package cadence

import (
	"fmt"
	"time"
)

// StepClock computes due times from a cadence's steps. It performs no I/O.
type StepClock struct {
	// Location is used for calendar arithmetic, time.Local when nil.
	Location *time.Location
	// DefaultTime applies to steps without a time, 09:00 when zero.
	DefaultTime TimeOfDay
}

// NextDueTime returns the first due time of a new enrollment: now when startImmediately,
// otherwise tomorrow at the time of steps[currentStepIndex] (or the default time).
func (c StepClock) NextDueTime(steps []Step, currentStepIndex int, startImmediately bool, now time.Time) (time.Time, error) {
	if startImmediately {
		return now, nil
	}

	tod := c.defaultTime()
	if currentStepIndex >= 0 && currentStepIndex < len(steps) {
		var err error
		if tod, err = c.stepTime(steps[currentStepIndex]); err != nil {
			return time.Time{}, err
		}
	}

	return c.at(now, 1, tod), nil
}

// AdvanceDueTime returns the due time of steps[nextStepIndex] counted from now by the day delta
// between the two steps. The boolean is false when nextStepIndex is past the last step.
// A template with descending days yields a zero or negative delta, which is applied as is.
func (c StepClock) AdvanceDueTime(steps []Step, currentStepIndex, nextStepIndex int, now time.Time) (time.Time, bool, error) {
	if nextStepIndex < 0 || nextStepIndex >= len(steps) {
		return time.Time{}, false, nil
	}
	if currentStepIndex < 0 || currentStepIndex >= len(steps) {
		return time.Time{}, false, fmt.Errorf("cadence: step index %d out of range", currentStepIndex)
	}

	next := steps[nextStepIndex]
	tod, err := c.stepTime(next)
	if err != nil {
		return time.Time{}, false, err
	}
	delta := next.Day - steps[currentStepIndex].Day

	return c.at(now, delta, tod), true, nil
}

func (c StepClock) at(now time.Time, days int, tod TimeOfDay) time.Time {
	local := now.In(c.location())
	y, m, d := local.Date()

	return time.Date(y, m, d+days, tod.Hour, tod.Minute, 0, 0, local.Location())
}

func (c StepClock) stepTime(step Step) (TimeOfDay, error) {
	if step.Time == "" {
		return c.defaultTime(), nil
	}

	return ParseTimeOfDay(step.Time)
}

func (c StepClock) defaultTime() TimeOfDay {
	if c.DefaultTime == (TimeOfDay{}) {
		return DefaultTimeOfDay
	}

	return c.DefaultTime
}

func (c StepClock) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}

	return c.Location
}
