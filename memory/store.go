package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/velmie/cadence"
)

// Store keeps leads, cadences, enrollments and activities in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	leads       map[string]cadence.Lead
	cadences    map[string]cadence.Cadence
	campaigns   map[string]int
	enrollments map[string]cadence.Enrollment
	activities  []cadence.ActivityRecord
}

var (
	_ cadence.Store           = (*Store)(nil)
	_ cadence.Claimer         = (*Store)(nil)
	_ cadence.FailureRecorder = (*Store)(nil)
	_ cadence.DueCounter      = (*Store)(nil)
	_ cadence.Transactor      = (*Store)(nil)
)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		leads:       make(map[string]cadence.Lead),
		cadences:    make(map[string]cadence.Cadence),
		campaigns:   make(map[string]int),
		enrollments: make(map[string]cadence.Enrollment),
	}
}

// PutLead inserts or replaces a lead.
func (s *Store) PutLead(lead cadence.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
}

// PutCadence inserts or replaces a cadence.
func (s *Store) PutCadence(cad cadence.Cadence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cad.Steps = append([]cadence.Step(nil), cad.Steps...)
	s.cadences[cad.ID] = cad
}

// PutCampaign registers a campaign with a zero lead count.
func (s *Store) PutCampaign(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		s.campaigns[id] = 0
	}
}

// PutEnrollment inserts or replaces an enrollment without checks.
func (s *Store) PutEnrollment(e cadence.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
}

// Activities returns a copy of the activity log in insertion order.
func (s *Store) Activities() []cadence.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]cadence.ActivityRecord(nil), s.activities...)
}

// Enrollments returns all enrollments ordered by start time.
func (s *Store) Enrollments() []cadence.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]cadence.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out
}

// Lead returns the stored lead.
func (s *Store) Lead(id string) (cadence.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]

	return lead, ok
}

// Cadence returns the stored cadence.
func (s *Store) Cadence(id string) (cadence.Cadence, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cad, ok := s.cadences[id]

	return cad, ok
}

// CampaignLeadCount returns the lead counter of a campaign.
func (s *Store) CampaignLeadCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.campaigns[id]
}

// FindLead implements cadence.Store.
func (s *Store) FindLead(_ context.Context, leadID string) (cadence.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return cadence.Lead{}, fmt.Errorf("%w: %s", cadence.ErrLeadNotFound, leadID)
	}

	return lead, nil
}

// FindCadence implements cadence.Store.
func (s *Store) FindCadence(_ context.Context, cadenceID string) (cadence.Cadence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cad, ok := s.cadences[cadenceID]
	if !ok {
		return cadence.Cadence{}, fmt.Errorf("%w: %s", cadence.ErrCadenceNotFound, cadenceID)
	}
	cad.Steps = append([]cadence.Step(nil), cad.Steps...)

	return cad, nil
}

// FindActiveEnrollmentByLead implements cadence.Store.
func (s *Store) FindActiveEnrollmentByLead(_ context.Context, leadID string) (cadence.Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.activeByLead(leadID)

	return e, ok, nil
}

// FindEnrollment implements cadence.Store.
func (s *Store) FindEnrollment(_ context.Context, id string) (cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}

	return e, nil
}

// InsertEnrollment implements cadence.Store. The active-lead check and the insert
// happen under one lock.
func (s *Store) InsertEnrollment(_ context.Context, e cadence.Enrollment) (cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertEnrollment(e)
}

func (s *Store) insertEnrollment(e cadence.Enrollment) (cadence.Enrollment, error) {
	if _, ok := s.enrollments[e.ID]; ok {
		return cadence.Enrollment{}, fmt.Errorf("memory: duplicate enrollment id %s", e.ID)
	}
	if e.Status == cadence.StatusActive {
		if existing, ok := s.activeByLead(e.LeadID); ok {
			return cadence.Enrollment{}, &cadence.ConflictError{
				LeadID:       e.LeadID,
				EnrollmentID: existing.ID,
				CadenceID:    existing.CadenceID,
			}
		}
	}
	s.enrollments[e.ID] = e

	return e, nil
}

// UpdateEnrollment implements cadence.Store.
func (s *Store) UpdateEnrollment(_ context.Context, id string, patch cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateEnrollment(id, patch)
}

func (s *Store) updateEnrollment(id string, patch cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	e, ok := s.enrollments[id]
	if !ok {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}
	if e.Status != cadence.StatusActive || e.CurrentStepIndex != patch.ExpectedStepIndex {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s at step %d, expected %d",
			cadence.ErrStaleEnrollment, id, e.CurrentStepIndex, patch.ExpectedStepIndex)
	}
	e = patch.Apply(e)
	s.enrollments[id] = e

	return e, nil
}

// FindDueEnrollments implements cadence.Store.
func (s *Store) FindDueEnrollments(_ context.Context, now time.Time, limit int) ([]cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.due(now, limit, false), nil
}

// AppendActivity implements cadence.Store.
func (s *Store) AppendActivity(_ context.Context, record cadence.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities = append(s.activities, record)

	return nil
}

// SetLeadStatus implements cadence.Store.
func (s *Store) SetLeadStatus(_ context.Context, leadID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("%w: %s", cadence.ErrLeadNotFound, leadID)
	}
	lead.Status = status
	s.leads[leadID] = lead

	return nil
}

// IncrementCadenceUsage implements cadence.Store.
func (s *Store) IncrementCadenceUsage(_ context.Context, cadenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cad, ok := s.cadences[cadenceID]
	if !ok {
		return fmt.Errorf("%w: %s", cadence.ErrCadenceNotFound, cadenceID)
	}
	cad.UsageCount++
	s.cadences[cadenceID] = cad

	return nil
}

// IncrementCampaignLeadCount implements cadence.Store. Unknown campaigns are created.
func (s *Store) IncrementCampaignLeadCount(_ context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.campaigns[campaignID]++

	return nil
}

// ClaimDue implements cadence.Claimer.
func (s *Store) ClaimDue(_ context.Context, now time.Time, limit int, leaseUntil time.Time) ([]cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := s.due(now, limit, true)
	for i := range due {
		lease := leaseUntil
		due[i].ClaimedUntil = &lease
		s.enrollments[due[i].ID] = due[i]
	}

	return due, nil
}

// ClaimEnrollment implements cadence.Claimer.
func (s *Store) ClaimEnrollment(_ context.Context, id string, now, leaseUntil time.Time) (cadence.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}
	if claimed(e, now) {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s", cadence.ErrClaimed, id)
	}
	lease := leaseUntil
	e.ClaimedUntil = &lease
	s.enrollments[id] = e

	return e, nil
}

// RecordFailure implements cadence.FailureRecorder.
func (s *Store) RecordFailure(_ context.Context, id string, failure cadence.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[id]
	if !ok {
		return fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}
	e.Attempts = failure.Attempts
	if failure.Err != nil {
		e.LastError = failure.Err.Error()
	}
	e.ClaimedUntil = nil
	e.UpdatedAt = failure.At
	if failure.RetryAt != nil {
		retryAt := *failure.RetryAt
		e.NextActivityAt = &retryAt
	}
	if failure.Dead && e.Status == cadence.StatusActive {
		e.Status = cadence.StatusFailed
	}
	s.enrollments[id] = e

	return nil
}

// DueCount implements cadence.DueCounter.
func (s *Store) DueCount(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.enrollments {
		if e.IsDue(now) {
			count++
		}
	}

	return count, nil
}

func (s *Store) activeByLead(leadID string) (cadence.Enrollment, bool) {
	for _, e := range s.enrollments {
		if e.LeadID == leadID && e.Status == cadence.StatusActive {
			return e, true
		}
	}

	return cadence.Enrollment{}, false
}

func (s *Store) due(now time.Time, limit int, skipClaimed bool) []cadence.Enrollment {
	out := make([]cadence.Enrollment, 0)
	for _, e := range s.enrollments {
		if !e.IsDue(now) {
			continue
		}
		if skipClaimed && claimed(e, now) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := *out[i].NextActivityAt, *out[j].NextActivityAt
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func claimed(e cadence.Enrollment, now time.Time) bool {
	return e.ClaimedUntil != nil && e.ClaimedUntil.After(now)
}
