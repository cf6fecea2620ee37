package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/velmie/cadence"
)

func TestStoreInsertEnforcesSingleActiveEnrollment(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.InsertEnrollment(ctx, cadence.Enrollment{ID: "e1", LeadID: "L1", CadenceID: "c1", Status: cadence.StatusActive})
	require.NoError(t, err)

	_, err = store.InsertEnrollment(ctx, cadence.Enrollment{ID: "e2", LeadID: "L1", CadenceID: "c2", Status: cadence.StatusActive})
	var conflict *cadence.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "c1", conflict.CadenceID)
	require.Equal(t, "e1", conflict.EnrollmentID)

	_, err = store.InsertEnrollment(ctx, cadence.Enrollment{ID: "e3", LeadID: "L1", CadenceID: "c2", Status: cadence.StatusCompleted})
	require.NoError(t, err)
}

func TestStoreConcurrentInsertKeepsOneActive(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		inserted  int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.InsertEnrollment(ctx, cadence.Enrollment{
				ID:     string(rune('a' + i)),
				LeadID: "L1",
				Status: cadence.StatusActive,
			})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, cadence.ErrConflict) {
				conflicts++
				return
			}
			if err == nil {
				inserted++
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, inserted)
	require.Equal(t, 19, conflicts)
}

func TestStoreUpdateRejectsStalePatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.PutEnrollment(cadence.Enrollment{ID: "e1", LeadID: "L1", Status: cadence.StatusActive, CurrentStepIndex: 2})

	_, err := store.UpdateEnrollment(ctx, "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 1, CurrentStepIndex: 2, Status: cadence.StatusActive})
	require.ErrorIs(t, err, cadence.ErrStaleEnrollment)

	updated, err := store.UpdateEnrollment(ctx, "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 2, CurrentStepIndex: 3, Status: cadence.StatusActive})
	require.NoError(t, err)
	require.Equal(t, 3, updated.CurrentStepIndex)

	_, err = store.UpdateEnrollment(ctx, "missing", cadence.EnrollmentPatch{})
	require.ErrorIs(t, err, cadence.ErrEnrollmentNotFound)
	require.ErrorIs(t, err, cadence.ErrNotFound)
}

func TestStoreDueOrderingAndClaims(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{-time.Minute, -time.Hour, time.Hour, -2 * time.Hour} {
		at := now.Add(offset)
		store.PutEnrollment(cadence.Enrollment{
			ID:             string(rune('a' + i)),
			LeadID:         string(rune('A' + i)),
			Status:         cadence.StatusActive,
			NextActivityAt: &at,
		})
	}
	doneAt := now.Add(-3 * time.Hour)
	store.PutEnrollment(cadence.Enrollment{ID: "z", LeadID: "Z", Status: cadence.StatusCompleted, NextActivityAt: &doneAt})

	due, err := store.FindDueEnrollments(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "b", "a"}, ids(due))

	count, err := store.DueCount(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	claimed, err := store.ClaimDue(ctx, now, 2, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"d", "b"}, ids(claimed))

	claimed, err = store.ClaimDue(ctx, now, 10, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids(claimed))

	_, err = store.ClaimEnrollment(ctx, "d", now, now.Add(time.Minute))
	require.ErrorIs(t, err, cadence.ErrClaimed)

	later := now.Add(2 * time.Minute)
	claimed, err = store.ClaimDue(ctx, later, 10, later.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"d", "b", "a"}, ids(claimed))
}

func TestStoreRecordFailure(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lease := now.Add(time.Minute)
	store.PutEnrollment(cadence.Enrollment{ID: "e1", Status: cadence.StatusActive, NextActivityAt: &now, ClaimedUntil: &lease})

	retryAt := now.Add(time.Hour)
	require.NoError(t, store.RecordFailure(ctx, "e1", cadence.Failure{Attempts: 1, Err: errors.New("boom"), RetryAt: &retryAt, At: now}))

	e, err := store.FindEnrollment(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, e.Attempts)
	require.Equal(t, "boom", e.LastError)
	require.Nil(t, e.ClaimedUntil)
	require.Equal(t, retryAt, *e.NextActivityAt)
	require.Equal(t, cadence.StatusActive, e.Status)

	require.NoError(t, store.RecordFailure(ctx, "e1", cadence.Failure{Attempts: 2, Err: errors.New("boom"), Dead: true, At: now}))
	e, err = store.FindEnrollment(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, cadence.StatusFailed, e.Status)
}

func TestStoreCountersAndLeadStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.PutLead(cadence.Lead{ID: "L1", Status: "new"})
	store.PutCadence(cadence.Cadence{ID: "c1", Steps: []cadence.Step{{Channel: cadence.ChannelEmail, Action: cadence.ActionEmail}}})

	require.NoError(t, store.SetLeadStatus(ctx, "L1", cadence.LeadStatusInCadence))
	require.NoError(t, store.IncrementCadenceUsage(ctx, "c1"))
	require.NoError(t, store.IncrementCampaignLeadCount(ctx, "camp"))
	require.ErrorIs(t, store.SetLeadStatus(ctx, "L2", "x"), cadence.ErrLeadNotFound)
	require.ErrorIs(t, store.IncrementCadenceUsage(ctx, "c2"), cadence.ErrCadenceNotFound)

	lead, ok := store.Lead("L1")
	require.True(t, ok)
	require.Equal(t, cadence.LeadStatusInCadence, lead.Status)
	cad, ok := store.Cadence("c1")
	require.True(t, ok)
	require.Equal(t, 1, cad.UsageCount)
	require.Equal(t, 1, store.CampaignLeadCount("camp"))
}

func ids(enrollments []cadence.Enrollment) []string {
	out := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, e.ID)
	}

	return out
}

func TestStoreWithinTxCommitsActivities(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store.PutEnrollment(cadence.Enrollment{ID: "e1", LeadID: "L1", Status: cadence.StatusActive, NextActivityAt: &now})

	err := store.WithinTx(ctx, func(ctx context.Context, tx cadence.Store) error {
		require.NoError(t, tx.AppendActivity(ctx, cadence.ActivityRecord{ID: "a1", EnrollmentID: "e1"}))
		require.Empty(t, store.Activities())
		_, err := tx.UpdateEnrollment(ctx, "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 0, CurrentStepIndex: 1, Status: cadence.StatusActive})
		return err
	})
	require.NoError(t, err)

	require.Len(t, store.Activities(), 1)
	e, err := store.FindEnrollment(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, e.CurrentStepIndex)
}

func TestStoreWithinTxRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.PutEnrollment(cadence.Enrollment{ID: "e1", LeadID: "L1", Status: cadence.StatusActive})

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx cadence.Store) error {
		require.NoError(t, tx.AppendActivity(ctx, cadence.ActivityRecord{ID: "a1", EnrollmentID: "e1"}))
		if _, err := tx.UpdateEnrollment(ctx, "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 0, CurrentStepIndex: 1, Status: cadence.StatusActive}); err != nil {
			return err
		}
		if _, err := tx.InsertEnrollment(ctx, cadence.Enrollment{ID: "e2", LeadID: "L2", Status: cadence.StatusActive}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Empty(t, store.Activities())
	e, err := store.FindEnrollment(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 0, e.CurrentStepIndex)
	_, err = store.FindEnrollment(ctx, "e2")
	require.ErrorIs(t, err, cadence.ErrEnrollmentNotFound)
}

func TestStoreWithinTxStaleUpdateDiscardsActivity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.PutEnrollment(cadence.Enrollment{ID: "e1", LeadID: "L1", Status: cadence.StatusActive, CurrentStepIndex: 1})

	err := store.WithinTx(ctx, func(ctx context.Context, tx cadence.Store) error {
		if err := tx.AppendActivity(ctx, cadence.ActivityRecord{ID: "a1", EnrollmentID: "e1"}); err != nil {
			return err
		}
		_, err := tx.UpdateEnrollment(ctx, "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 0, CurrentStepIndex: 1, Status: cadence.StatusActive})
		return err
	})
	require.ErrorIs(t, err, cadence.ErrStaleEnrollment)
	require.Empty(t, store.Activities())
}
