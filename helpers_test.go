package cadence_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velmie/cadence"
	"github.com/velmie/cadence/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordingDispatcher struct {
	mu    sync.Mutex
	sent  []cadence.StepDispatch
	err   error
	ready chan struct{}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, sd cadence.StepDispatch) error {
	d.mu.Lock()
	d.sent = append(d.sent, sd)
	d.mu.Unlock()
	if d.ready != nil {
		select {
		case d.ready <- struct{}{}:
		default:
		}
	}
	return d.err
}

func (d *recordingDispatcher) Sent() []cadence.StepDispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]cadence.StepDispatch(nil), d.sent...)
}

// flakyStore injects errors in front of a memory store.
type flakyStore struct {
	*memory.Store
	updateErr      error
	findCadenceErr error
	leadStatusErr  error
	findLeadErr    error
	findLeadCalls  atomic.Int32
	failFindLeadAt int32
}

func (s *flakyStore) UpdateEnrollment(ctx context.Context, id string, patch cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	if s.updateErr != nil {
		return cadence.Enrollment{}, s.updateErr
	}
	return s.Store.UpdateEnrollment(ctx, id, patch)
}

// WithinTx keeps the injected update error in effect inside transactions.
func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx cadence.Store) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx cadence.Store) error {
		if s.updateErr != nil {
			tx = failingUpdates{Store: tx, err: s.updateErr}
		}
		return fn(ctx, tx)
	})
}

type failingUpdates struct {
	cadence.Store
	err error
}

func (f failingUpdates) UpdateEnrollment(context.Context, string, cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	return cadence.Enrollment{}, f.err
}

func (s *flakyStore) FindCadence(ctx context.Context, id string) (cadence.Cadence, error) {
	if s.findCadenceErr != nil {
		return cadence.Cadence{}, s.findCadenceErr
	}
	return s.Store.FindCadence(ctx, id)
}

func (s *flakyStore) SetLeadStatus(ctx context.Context, leadID, status string) error {
	if s.leadStatusErr != nil {
		return s.leadStatusErr
	}
	return s.Store.SetLeadStatus(ctx, leadID, status)
}

// FindLead fails on the failFindLeadAt-th call when set.
func (s *flakyStore) FindLead(ctx context.Context, leadID string) (cadence.Lead, error) {
	n := s.findLeadCalls.Add(1)
	if s.findLeadErr != nil && n == s.failFindLeadAt {
		return cadence.Lead{}, s.findLeadErr
	}
	return s.Store.FindLead(ctx, leadID)
}

type countingMetrics struct {
	cadence.NopMetrics
	mu         sync.Mutex
	enrolled   int
	advanced   int
	completed  int
	errors     int
	retries    int
	dead       int
	dispatches int
	due        int
}

func (m *countingMetrics) AddEnrolled(n int)       { m.add(&m.enrolled, n) }
func (m *countingMetrics) AddAdvanced(n int)       { m.add(&m.advanced, n) }
func (m *countingMetrics) AddCompleted(n int)      { m.add(&m.completed, n) }
func (m *countingMetrics) AddErrors(n int)         { m.add(&m.errors, n) }
func (m *countingMetrics) AddRetries(n int)        { m.add(&m.retries, n) }
func (m *countingMetrics) AddDead(n int)           { m.add(&m.dead, n) }
func (m *countingMetrics) AddDispatchErrors(n int) { m.add(&m.dispatches, n) }

func (m *countingMetrics) SetDue(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.due = n
}

func (m *countingMetrics) add(field *int, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func sequentialIDs(prefix string) cadence.IDGenerator {
	var n atomic.Int64
	return cadence.IDGeneratorFunc(func() (string, error) {
		return fmt.Sprintf("%s-%03d", prefix, n.Add(1)), nil
	})
}

var start = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func threeStepCadence() cadence.Cadence {
	return cadence.Cadence{
		ID:   "c1",
		Name: "Warm outreach",
		Steps: []cadence.Step{
			{Day: 0, Channel: cadence.ChannelLinkedIn, Action: cadence.ActionConnectionRequest},
			{Day: 3, Channel: cadence.ChannelWhatsApp, Action: cadence.ActionMessage, Content: "Hi there"},
			{Day: 7, Channel: cadence.ChannelEmail, Action: cadence.ActionEmail, TemplateID: "tpl-1"},
		},
	}
}

func seededStore(leadIDs ...string) *memory.Store {
	store := memory.NewStore()
	for _, id := range leadIDs {
		store.PutLead(cadence.Lead{
			ID:          id,
			Name:        "Lead " + id,
			Company:     "Acme",
			Status:      "new",
			Email:       id + "@example.com",
			LinkedInURL: "https://linkedin.com/in/" + id,
		})
	}
	store.PutCadence(threeStepCadence())
	store.PutCampaign("camp-1")
	return store
}

func testOptions(clock cadence.Clock, extra ...cadence.Option) []cadence.Option {
	opts := []cadence.Option{
		cadence.WithClock(clock),
		cadence.WithLocation(time.UTC),
		cadence.WithIDGenerator(sequentialIDs("id")),
	}
	return append(opts, extra...)
}

// stepActivities returns the activity log without cadence_started records.
func stepActivities(store *memory.Store) []cadence.ActivityRecord {
	var out []cadence.ActivityRecord
	for _, a := range store.Activities() {
		if a.Type != cadence.ActionCadenceStarted {
			out = append(out, a)
		}
	}
	return out
}
