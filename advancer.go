package cadence

import (
	"context"
	"fmt"
	"time"
)

// StepAction is the outcome of a single advance.
type StepAction string

const (
	// StepProcessed means a step was recorded and dispatched.
	StepProcessed StepAction = "step_processed"
	// StepCompleted means the enrollment had no step left.
	StepCompleted StepAction = "completed"
)

// StepInfo describes a cadence step in advance results.
type StepInfo struct {
	Number      int        `json:"stepNumber"`
	Day         int        `json:"day"`
	Channel     Channel    `json:"channel"`
	Action      Action     `json:"action"`
	Content     string     `json:"content,omitempty"`
	TemplateID  string     `json:"templateId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// StepResult is returned by Advance.
type StepResult struct {
	Action       StepAction `json:"action"`
	EnrollmentID string     `json:"enrollmentId"`
	LeadID       string     `json:"leadId"`
	Status       Status     `json:"status"`
	Step         *StepInfo  `json:"step,omitempty"`
	NextStep     *StepInfo  `json:"nextStep"`
}

// Advancer executes the due step of one enrollment.
type Advancer struct {
	store Store
	cfg   Config
	clock StepClock
}

// NewAdvancer constructs an Advancer with defaults and optional settings.
func NewAdvancer(store Store, opts ...Option) *Advancer {
	if store == nil {
		panic("cadence: nil Store")
	}
	cfg := newConfig(opts)

	return &Advancer{store: store, cfg: cfg, clock: cfg.stepClock()}
}

// Advance records the current step of the enrollment, moves it to the next step or completes it,
// and dispatches the step. Store failures return a *ProcessingError and leave the enrollment unchanged.
// Advancing a completed enrollment is a no-op.
func (a *Advancer) Advance(ctx context.Context, enrollment Enrollment) (StepResult, error) {
	result := StepResult{EnrollmentID: enrollment.ID, LeadID: enrollment.LeadID, Status: enrollment.Status}

	switch enrollment.Status {
	case StatusCompleted:
		result.Action = StepCompleted

		return result, nil
	case StatusActive:
	default:
		return result, a.fail(enrollment, fmt.Errorf("%w: status is %s", ErrStaleEnrollment, enrollment.Status))
	}

	cad, err := a.store.FindCadence(ctx, enrollment.CadenceID)
	if err != nil {
		return result, a.fail(enrollment, err)
	}

	index := enrollment.CurrentStepIndex
	if index < 0 {
		return result, a.fail(enrollment, fmt.Errorf("cadence: negative step index %d", index))
	}
	if index >= len(cad.Steps) {
		return a.complete(ctx, enrollment)
	}

	now := a.cfg.Clock.Now().UTC()
	step := cad.Steps[index]
	nextIndex := index + 1

	nextAt, hasNext, err := a.clock.AdvanceDueTime(cad.Steps, index, nextIndex, now)
	if err != nil {
		return result, a.fail(enrollment, err)
	}

	patch := EnrollmentPatch{
		ExpectedStepIndex: index,
		CurrentStepIndex:  nextIndex,
		CurrentDay:        step.Day,
		Status:            StatusActive,
		UpdatedAt:         now,
	}
	var nextInfo *StepInfo
	if hasNext {
		next := cad.Steps[nextIndex]
		due := nextAt.UTC()
		patch.NextActivityAt = &due
		patch.NextActivityChannel = next.Channel
		patch.NextActivityType = next.Action
		nextInfo = stepInfo(next, nextIndex, &due)
	} else {
		patch.Status = StatusCompleted
		patch.CompletedAt = &now
	}

	activityID, err := a.cfg.IDGenerator.New()
	if err != nil {
		return result, a.fail(enrollment, err)
	}
	activity := ActivityRecord{
		ID:           activityID,
		LeadID:       enrollment.LeadID,
		CampaignID:   enrollment.CampaignID,
		EnrollmentID: enrollment.ID,
		Type:         step.Action,
		Channel:      step.Channel,
		Direction:    DirectionOutbound,
		Content:      step.Content,
		Status:       ActivityStatusScheduled,
		Metadata: ActivityMetadata{
			CadenceID:   cad.ID,
			CadenceName: cad.Name,
			StepNumber:  index + 1,
			TotalSteps:  len(cad.Steps),
			Day:         step.Day,
		},
		ScheduledAt: enrollment.NextActivityAt,
		PerformedAt: now,
	}

	var updated Enrollment
	err = withinTx(ctx, a.store, func(ctx context.Context, tx Store) error {
		if err := tx.AppendActivity(ctx, activity); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateEnrollment(ctx, enrollment.ID, patch)

		return err
	})
	if err != nil {
		return result, a.fail(enrollment, err)
	}

	a.cfg.Metrics.AddAdvanced(1)
	a.cfg.Logger.Debug("cadence step processed",
		"enrollment", enrollment.ID, "lead", enrollment.LeadID, "step", index+1, "channel", step.Channel, "action", step.Action)
	if updated.Status == StatusCompleted {
		a.cfg.Metrics.AddCompleted(1)
		a.cfg.Logger.Info("cadence enrollment completed", "enrollment", enrollment.ID, "lead", enrollment.LeadID)
	}

	a.dispatch(ctx, enrollment, cad, index)

	result.Action = StepProcessed
	result.Status = updated.Status
	result.Step = stepInfo(step, index, enrollment.NextActivityAt)
	result.NextStep = nextInfo

	return result, nil
}

func (a *Advancer) complete(ctx context.Context, enrollment Enrollment) (StepResult, error) {
	now := a.cfg.Clock.Now().UTC()
	patch := EnrollmentPatch{
		ExpectedStepIndex: enrollment.CurrentStepIndex,
		CurrentStepIndex:  enrollment.CurrentStepIndex,
		CurrentDay:        enrollment.CurrentDay,
		Status:            StatusCompleted,
		CompletedAt:       &now,
		UpdatedAt:         now,
	}
	if _, err := a.store.UpdateEnrollment(ctx, enrollment.ID, patch); err != nil {
		return StepResult{EnrollmentID: enrollment.ID, LeadID: enrollment.LeadID, Status: enrollment.Status}, a.fail(enrollment, err)
	}

	a.cfg.Metrics.AddCompleted(1)
	a.cfg.Logger.Info("cadence enrollment completed", "enrollment", enrollment.ID, "lead", enrollment.LeadID)

	return StepResult{
		Action:       StepCompleted,
		EnrollmentID: enrollment.ID,
		LeadID:       enrollment.LeadID,
		Status:       StatusCompleted,
	}, nil
}

// dispatch runs after the state change is persisted, so nothing here may fail the advance.
func (a *Advancer) dispatch(ctx context.Context, enrollment Enrollment, cad Cadence, index int) {
	lead, err := a.store.FindLead(ctx, enrollment.LeadID)
	if err != nil {
		a.cfg.Metrics.AddDispatchErrors(1)
		a.cfg.Logger.Warn("cadence dispatch skipped, lead lookup failed", "enrollment", enrollment.ID, "lead", enrollment.LeadID, "err", err)

		return
	}

	step := cad.Steps[index]
	d := StepDispatch{
		EnrollmentID: enrollment.ID,
		LeadID:       lead.ID,
		LeadName:     lead.Name,
		Contacts:     lead.Contacts(),
		Channel:      step.Channel,
		Action:       step.Action,
		Content:      step.Content,
		TemplateID:   step.TemplateID,
		CadenceID:    cad.ID,
		CadenceName:  cad.Name,
		StepNumber:   index + 1,
		TotalSteps:   len(cad.Steps),
		CampaignID:   enrollment.CampaignID,
		ScheduledAt:  enrollment.NextActivityAt,
	}
	if err := a.cfg.Dispatcher.Dispatch(ctx, d); err != nil {
		a.cfg.Metrics.AddDispatchErrors(1)
		a.cfg.Logger.Warn("cadence dispatch rejected", "enrollment", enrollment.ID, "step", index+1, "err", err)
	}
}

func (a *Advancer) fail(enrollment Enrollment, err error) error {
	return &ProcessingError{EnrollmentID: enrollment.ID, Err: err}
}

func stepInfo(step Step, index int, scheduledAt *time.Time) *StepInfo {
	return &StepInfo{
		Number:      index + 1,
		Day:         step.Day,
		Channel:     step.Channel,
		Action:      step.Action,
		Content:     step.Content,
		TemplateID:  step.TemplateID,
		ScheduledAt: scheduledAt,
	}
}
