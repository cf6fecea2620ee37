package cadence

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel is the medium a step is executed on.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelLinkedIn  Channel = "linkedin"
	ChannelEmail     Channel = "email"
	ChannelInstagram Channel = "instagram"
	ChannelSMS       Channel = "sms"
	ChannelPhone     Channel = "phone"
)

// Action is what the automation engine does on a channel.
type Action string

const (
	ActionMessage           Action = "message"
	ActionConnectionRequest Action = "connection_request"
	ActionEmail             Action = "email"
	ActionFollowUp          Action = "follow_up"
	ActionCall              Action = "call"
	ActionVisitProfile      Action = "visit_profile"
	ActionLikePost          Action = "like_post"
	// ActionCadenceStarted is only used for the activity written at enrollment.
	ActionCadenceStarted Action = "cadence_started"
)

// Step is one unit of a cadence. Day is relative to the cadence start, not a calendar date.
type Step struct {
	Day        int     `json:"day"`
	Time       string  `json:"time,omitempty"`
	Channel    Channel `json:"channel"`
	Action     Action  `json:"action"`
	Content    string  `json:"content,omitempty"`
	TemplateID string  `json:"templateId,omitempty"`
}

// Cadence is an immutable, ordered template of outreach steps.
type Cadence struct {
	ID         string
	Name       string
	Steps      []Step
	UsageCount int
}

// CadenceSummary is the cadence view returned by Enroll.
type CadenceSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalSteps int    `json:"totalSteps"`
}

// Summary returns the cadence summary.
func (c Cadence) Summary() CadenceSummary {
	return CadenceSummary{ID: c.ID, Name: c.Name, TotalSteps: len(c.Steps)}
}

// Validate checks that the cadence can be scheduled.
// Steps whose days are not ascending are accepted, the step clock handles the resulting deltas.
func (c Cadence) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidCadence, c.ID)
	}
	for i, step := range c.Steps {
		if step.Day < 0 {
			return fmt.Errorf("%w: %s step %d has negative day", ErrInvalidCadence, c.ID, i+1)
		}
		if step.Channel == "" || step.Action == "" {
			return fmt.Errorf("%w: %s step %d needs channel and action", ErrInvalidCadence, c.ID, i+1)
		}
		if step.Time != "" {
			if _, err := ParseTimeOfDay(step.Time); err != nil {
				return fmt.Errorf("%w: %s step %d: %w", ErrInvalidCadence, c.ID, i+1, err)
			}
		}
	}

	return nil
}

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultTimeOfDay is used for steps that do not specify a time.
var DefaultTimeOfDay = TimeOfDay{Hour: 9}

// ParseTimeOfDay parses "HH:MM" (a single digit hour is accepted).
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String returns the HH:MM form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
