package cadence

import (
	"context"
	"time"
)

// StepDispatch is the notification sent to the external automation engine for a processed step.
type StepDispatch struct {
	EnrollmentID string             `json:"enrollmentId"`
	LeadID       string             `json:"leadId"`
	LeadName     string             `json:"leadName,omitempty"`
	Contacts     map[Channel]string `json:"contacts"`
	Channel      Channel            `json:"channel"`
	Action       Action             `json:"action"`
	Content      string             `json:"content,omitempty"`
	TemplateID   string             `json:"templateId,omitempty"`
	CadenceID    string             `json:"cadenceId"`
	CadenceName  string             `json:"cadenceName"`
	StepNumber   int                `json:"stepNumber"`
	TotalSteps   int                `json:"totalSteps"`
	CampaignID   string             `json:"campaignId,omitempty"`
	ScheduledAt  *time.Time         `json:"scheduledAt,omitempty"`
}

// Dispatcher hands a processed step to the automation engine.
//
// Dispatch must not block on delivery. An error only means the dispatch was not accepted,
// it is logged and never changes enrollment state. Wrap blocking senders with dispatch.Queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, d StepDispatch) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, d StepDispatch) error

// Dispatch implements Dispatcher.
func (fn DispatcherFunc) Dispatch(ctx context.Context, d StepDispatch) error {
	return fn(ctx, d)
}

// NopDispatcher drops every dispatch.
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(context.Context, StepDispatch) error {
	return nil
}
