package cadence

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EnrollRequest enrolls one lead into a cadence.
type EnrollRequest struct {
	LeadID     string `json:"leadId"`
	CadenceID  string `json:"cadenceId"`
	CampaignID string `json:"campaignId,omitempty"`
	// StartImmediately makes the first step due now and advances it in the background.
	StartImmediately bool `json:"startImmediately,omitempty"`
}

// ScheduledActivity previews the first step of a new enrollment.
type ScheduledActivity struct {
	Channel     Channel   `json:"channel"`
	Action      Action    `json:"action"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// EnrollResult is returned by Enroll.
type EnrollResult struct {
	Enrollment    Enrollment        `json:"enrollment"`
	Lead          LeadSummary       `json:"lead"`
	Cadence       CadenceSummary    `json:"cadence"`
	FirstActivity ScheduledActivity `json:"firstActivity"`
}

// BulkEnrollRequest enrolls many leads into one cadence.
type BulkEnrollRequest struct {
	LeadIDs          []string `json:"leadIds"`
	CadenceID        string   `json:"cadenceId"`
	CampaignID       string   `json:"campaignId,omitempty"`
	StartImmediately bool     `json:"startImmediately,omitempty"`
}

// BulkError is the failure of one lead in a bulk enrollment.
type BulkError struct {
	LeadID string    `json:"leadId"`
	Kind   ErrorKind `json:"kind"`
	Error  string    `json:"error"`
	// CadenceID is the cadence the lead is already active in, set for conflicts only.
	CadenceID string `json:"cadenceId,omitempty"`
}

// BulkResult aggregates a bulk enrollment. Results and Errors keep the input order.
type BulkResult struct {
	Total    int            `json:"total"`
	Enrolled int            `json:"enrolled"`
	Failed   int            `json:"failed"`
	Results  []EnrollResult `json:"results"`
	Errors   []BulkError    `json:"errors"`
}

// Manager creates enrollments and keeps at most one active enrollment per lead.
type Manager struct {
	store     Store
	scheduler *Scheduler
	cfg       Config
	clock     StepClock

	wg sync.WaitGroup
}

// NewManager constructs a Manager. The scheduler runs immediate starts and may be nil,
// in which case immediately started enrollments wait for the next poll.
func NewManager(store Store, scheduler *Scheduler, opts ...Option) *Manager {
	if store == nil {
		panic("cadence: nil Store")
	}
	cfg := newConfig(opts)

	return &Manager{store: store, scheduler: scheduler, cfg: cfg, clock: cfg.stepClock()}
}

// Enroll creates an active enrollment for the lead.
//
// It fails with ErrLeadNotFound, a *ConflictError when the lead is active in any cadence,
// ErrCadenceNotFound, or ErrInvalidCadence, in that order of checks.
// Side effects after the insert are best-effort and never undo it.
func (m *Manager) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	if req.LeadID == "" {
		return EnrollResult{}, ErrLeadIDRequired
	}
	if req.CadenceID == "" {
		return EnrollResult{}, ErrCadenceIDRequired
	}

	lead, err := m.store.FindLead(ctx, req.LeadID)
	if err != nil {
		return EnrollResult{}, err
	}

	if existing, ok, err := m.store.FindActiveEnrollmentByLead(ctx, req.LeadID); err != nil {
		return EnrollResult{}, err
	} else if ok {
		return EnrollResult{}, &ConflictError{LeadID: req.LeadID, EnrollmentID: existing.ID, CadenceID: existing.CadenceID}
	}

	cad, err := m.store.FindCadence(ctx, req.CadenceID)
	if err != nil {
		return EnrollResult{}, err
	}
	if err := cad.Validate(); err != nil {
		return EnrollResult{}, err
	}

	now := m.cfg.Clock.Now().UTC()
	due, err := m.clock.NextDueTime(cad.Steps, 0, req.StartImmediately, now)
	if err != nil {
		return EnrollResult{}, err
	}
	due = due.UTC()

	id, err := m.cfg.IDGenerator.New()
	if err != nil {
		return EnrollResult{}, err
	}

	first := cad.Steps[0]
	enrollment, err := m.store.InsertEnrollment(ctx, Enrollment{
		ID:                  id,
		LeadID:              req.LeadID,
		CadenceID:           req.CadenceID,
		CampaignID:          req.CampaignID,
		CurrentStepIndex:    0,
		CurrentDay:          0,
		Status:              StatusActive,
		NextActivityAt:      &due,
		NextActivityChannel: first.Channel,
		NextActivityType:    first.Action,
		StartedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		return EnrollResult{}, m.conflictDetail(ctx, err)
	}

	m.cfg.Metrics.AddEnrolled(1)
	m.cfg.Logger.Info("cadence enrollment created",
		"enrollment", enrollment.ID, "lead", req.LeadID, "cadence", req.CadenceID, "next_activity_at", due)

	m.applySideEffects(ctx, enrollment, cad, now)

	if req.StartImmediately {
		m.startImmediately(enrollment.ID)
	}

	return EnrollResult{
		Enrollment: enrollment,
		Lead:       lead.Summary(),
		Cadence:    cad.Summary(),
		FirstActivity: ScheduledActivity{
			Channel:     first.Channel,
			Action:      first.Action,
			ScheduledAt: due,
		},
	}, nil
}

// EnrollBulk enrolls every lead independently. A failing lead never stops the others.
// The returned error is only set when ctx is canceled, together with the partial result.
func (m *Manager) EnrollBulk(ctx context.Context, req BulkEnrollRequest) (BulkResult, error) {
	result := BulkResult{
		Total:   len(req.LeadIDs),
		Results: make([]EnrollResult, 0, len(req.LeadIDs)),
		Errors:  make([]BulkError, 0),
	}

	for _, leadID := range req.LeadIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := m.Enroll(ctx, EnrollRequest{
			LeadID:           leadID,
			CadenceID:        req.CadenceID,
			CampaignID:       req.CampaignID,
			StartImmediately: req.StartImmediately,
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, bulkError(leadID, err))

			continue
		}
		result.Enrolled++
		result.Results = append(result.Results, res)
	}

	m.cfg.Logger.Info("cadence bulk enrollment done",
		"cadence", req.CadenceID, "total", result.Total, "enrolled", result.Enrolled, "failed", result.Failed)

	return result, nil
}

// Wait blocks until background immediate starts finish or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// conflictDetail fills the conflicting cadence of an insert that lost the race with another enroll.
func (m *Manager) conflictDetail(ctx context.Context, err error) error {
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.CadenceID != "" {
		return err
	}

	existing, ok, findErr := m.store.FindActiveEnrollmentByLead(ctx, conflict.LeadID)
	if findErr != nil || !ok {
		return err
	}

	return &ConflictError{LeadID: conflict.LeadID, EnrollmentID: existing.ID, CadenceID: existing.CadenceID}
}

func (m *Manager) applySideEffects(ctx context.Context, enrollment Enrollment, cad Cadence, now time.Time) {
	if err := m.store.SetLeadStatus(ctx, enrollment.LeadID, LeadStatusInCadence); err != nil {
		m.cfg.Logger.Warn("cadence lead status update failed", "lead", enrollment.LeadID, "err", err)
	}
	if err := m.store.IncrementCadenceUsage(ctx, cad.ID); err != nil {
		m.cfg.Logger.Warn("cadence usage counter update failed", "cadence", cad.ID, "err", err)
	}
	if enrollment.CampaignID != "" {
		if err := m.store.IncrementCampaignLeadCount(ctx, enrollment.CampaignID); err != nil {
			m.cfg.Logger.Warn("cadence campaign counter update failed", "campaign", enrollment.CampaignID, "err", err)
		}
	}

	activityID, err := m.cfg.IDGenerator.New()
	if err != nil {
		m.cfg.Logger.Warn("cadence start activity skipped", "enrollment", enrollment.ID, "err", err)

		return
	}
	record := ActivityRecord{
		ID:           activityID,
		LeadID:       enrollment.LeadID,
		CampaignID:   enrollment.CampaignID,
		EnrollmentID: enrollment.ID,
		Type:         ActionCadenceStarted,
		Direction:    DirectionOutbound,
		Content:      "Enrolled in cadence " + cad.Name,
		Status:       ActivityStatusCompleted,
		Metadata: ActivityMetadata{
			CadenceID:   cad.ID,
			CadenceName: cad.Name,
			TotalSteps:  len(cad.Steps),
		},
		ScheduledAt: enrollment.NextActivityAt,
		PerformedAt: now,
	}
	if err := m.store.AppendActivity(ctx, record); err != nil {
		m.cfg.Logger.Warn("cadence start activity failed", "enrollment", enrollment.ID, "err", err)
	}
}

// startImmediately advances the new enrollment in the background. The caller's context is
// not used so that a finished request does not cancel the advance.
func (m *Manager) startImmediately(enrollmentID string) {
	if m.scheduler == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				m.cfg.Logger.Error("cadence immediate start panic", "enrollment", enrollmentID, "panic", rec)
			}
		}()

		result, err := m.scheduler.RunBatch(context.Background(), BatchRequest{EnrollmentID: enrollmentID})
		if err != nil {
			m.cfg.Logger.Warn("cadence immediate start failed", "enrollment", enrollmentID, "err", err)

			return
		}
		for _, item := range result.Results {
			if !item.Success {
				m.cfg.Logger.Warn("cadence immediate start failed", "enrollment", enrollmentID, "err", item.Error)
			}
		}
	}()
}

func bulkError(leadID string, err error) BulkError {
	entry := BulkError{LeadID: leadID, Kind: Kind(err), Error: err.Error()}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		entry.CadenceID = conflict.CadenceID
	}

	return entry
}
