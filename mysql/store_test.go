package mysql

import (
	"context"
	sqldriver "database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/velmie/cadence"
)

var enrollmentColumns = strings.Split(strings.ReplaceAll(enrollmentCols, " ", ""), ",")

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewStore(db)
	require.NoError(t, err)

	return store, mock
}

func enrollmentRows(rows ...[]any) *sqlmock.Rows {
	out := sqlmock.NewRows(enrollmentColumns)
	for _, row := range rows {
		values := make([]sqldriver.Value, len(row))
		for i, v := range row {
			values[i] = v
		}
		out.AddRow(values...)
	}

	return out
}

func enrollmentRow(id string, index int, status cadence.Status, next, claimed any) []any {
	started := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	return []any{
		id, "L1", "c1", nil, index, 0, string(status),
		next, "email", "email", started, nil, started,
		0, nil, claimed,
	}
}

func TestNewStoreRequiresDB(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
}

func TestNewStoreRejectsInvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewStore(db, WithEnrollmentTable("bad-name"))
	require.ErrorIs(t, err, ErrInvalidTableName)
}

func TestStoreFindLeadNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(store.queries.findLead).
		WithArgs("L404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindLead(context.Background(), "L404")
	require.ErrorIs(t, err, cadence.ErrLeadNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindLeadNullableContacts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(store.queries.findLead).
		WithArgs("L1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "company", "status", "email", "phone", "whatsapp", "linkedin_url", "instagram_handle",
		}).AddRow("L1", "Ada", nil, "new", "ada@example.com", nil, "+100", nil, nil))

	lead, err := store.FindLead(context.Background(), "L1")
	require.NoError(t, err)
	require.Equal(t, cadence.Lead{ID: "L1", Name: "Ada", Status: "new", Email: "ada@example.com", WhatsApp: "+100"}, lead)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindCadenceDecodesSteps(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(store.queries.findCadence).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "steps", "usage_count"}).
			AddRow("c1", "Warm", []byte(`[{"day":0,"channel":"email","action":"email"},{"day":3,"time":"10:30","channel":"whatsapp","action":"message","templateId":"t1"}]`), 4))

	cad, err := store.FindCadence(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 4, cad.UsageCount)
	require.Equal(t, []cadence.Step{
		{Day: 0, Channel: cadence.ChannelEmail, Action: cadence.ActionEmail},
		{Day: 3, Time: "10:30", Channel: cadence.ChannelWhatsApp, Action: cadence.ActionMessage, TemplateID: "t1"},
	}, cad.Steps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindActiveEnrollmentByLead(t *testing.T) {
	store, mock := newMockStore(t)
	next := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(store.queries.findActiveByLead).
		WithArgs("L1", "active").
		WillReturnRows(enrollmentRows(enrollmentRow("e1", 1, cadence.StatusActive, next, nil)))
	mock.ExpectQuery(store.queries.findActiveByLead).
		WithArgs("L2", "active").
		WillReturnRows(enrollmentRows())

	e, ok, err := store.FindActiveEnrollmentByLead(context.Background(), "L1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "e1", e.ID)
	require.Equal(t, 1, e.CurrentStepIndex)
	require.Equal(t, next, *e.NextActivityAt)
	require.Nil(t, e.CompletedAt)
	require.Empty(t, e.CampaignID)

	_, ok, err = store.FindActiveEnrollmentByLead(context.Background(), "L2")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertEnrollmentConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(store.queries.insertEnrollment).
		WillReturnError(&driver.MySQLError{
			Number:  errDuplicateKey,
			Message: "Duplicate entry 'L1' for key 'cadence_enrollments.uq_cadence_enrollments_active_lead'",
		})
	mock.ExpectExec(store.queries.insertEnrollment).
		WillReturnError(&driver.MySQLError{
			Number:  errDuplicateKey,
			Message: "Duplicate entry 'e1' for key 'cadence_enrollments.PRIMARY'",
		})

	e := cadence.Enrollment{ID: "e1", LeadID: "L1", CadenceID: "c1", Status: cadence.StatusActive}
	_, err := store.InsertEnrollment(context.Background(), e)
	var conflict *cadence.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "L1", conflict.LeadID)

	_, err = store.InsertEnrollment(context.Background(), e)
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.False(t, errors.Is(err, cadence.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInsertEnrollmentArgs(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	next := now.Add(18 * time.Hour)
	mock.ExpectExec(store.queries.insertEnrollment).
		WithArgs("e1", "L1", "c1", nil, 0, 0, "active", next, "linkedin", "connection_request", now, nil, now, 0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := store.InsertEnrollment(context.Background(), cadence.Enrollment{
		ID:                  "e1",
		LeadID:              "L1",
		CadenceID:           "c1",
		Status:              cadence.StatusActive,
		NextActivityAt:      &next,
		NextActivityChannel: cadence.ChannelLinkedIn,
		NextActivityType:    cadence.ActionConnectionRequest,
		StartedAt:           now,
		UpdatedAt:           now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateEnrollmentStale(t *testing.T) {
	store, mock := newMockStore(t)
	next := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(store.queries.updateEnrollment).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(store.queries.findEnrollment).
		WithArgs("e1").
		WillReturnRows(enrollmentRows(enrollmentRow("e1", 2, cadence.StatusActive, next, nil)))

	_, err := store.UpdateEnrollment(context.Background(), "e1", cadence.EnrollmentPatch{ExpectedStepIndex: 1, CurrentStepIndex: 2})
	require.ErrorIs(t, err, cadence.ErrStaleEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateEnrollmentApplies(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	next := now.AddDate(0, 0, 3)
	mock.ExpectExec(store.queries.updateEnrollment).
		WithArgs(1, 0, "active", next, "whatsapp", "message", nil, now, "e1", "active", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(store.queries.findEnrollment).
		WithArgs("e1").
		WillReturnRows(enrollmentRows(enrollmentRow("e1", 1, cadence.StatusActive, next, nil)))

	updated, err := store.UpdateEnrollment(context.Background(), "e1", cadence.EnrollmentPatch{
		ExpectedStepIndex:   0,
		CurrentStepIndex:    1,
		Status:              cadence.StatusActive,
		NextActivityAt:      &next,
		NextActivityChannel: cadence.ChannelWhatsApp,
		NextActivityType:    cadence.ActionMessage,
		UpdatedAt:           now,
	})
	require.NoError(t, err)
	require.Equal(t, 1, updated.CurrentStepIndex)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateEnrollmentNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(store.queries.updateEnrollment).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(store.queries.findEnrollment).
		WithArgs("e404").
		WillReturnRows(enrollmentRows())

	_, err := store.UpdateEnrollment(context.Background(), "e404", cadence.EnrollmentPatch{})
	require.ErrorIs(t, err, cadence.ErrEnrollmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClaimDue(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	lease := now.Add(5 * time.Minute)
	due1 := now.Add(-time.Hour)
	due2 := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(store.queries.claimDue).
		WithArgs("active", now, now, 10).
		WillReturnRows(enrollmentRows(
			enrollmentRow("e1", 0, cadence.StatusActive, due1, nil),
			enrollmentRow("e2", 1, cadence.StatusActive, due2, nil),
		))
	mock.ExpectExec(store.queries.claim+"(?,?)").
		WithArgs(lease, "e1", "e2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	claimed, err := store.ClaimDue(context.Background(), now, 10, lease)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.Equal(t, "e1", claimed[0].ID)
	require.Equal(t, lease, *claimed[1].ClaimedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClaimDueEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(store.queries.claimDue).
		WillReturnRows(enrollmentRows())
	mock.ExpectCommit()

	claimed, err := store.ClaimDue(context.Background(), now, 10, now.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClaimEnrollmentAlreadyClaimed(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(store.queries.lockEnrollment).
		WithArgs("e1").
		WillReturnRows(enrollmentRows(enrollmentRow("e1", 0, cadence.StatusActive, now, now.Add(time.Minute))))
	mock.ExpectRollback()

	_, err := store.ClaimEnrollment(context.Background(), "e1", now, now.Add(5*time.Minute))
	require.ErrorIs(t, err, cadence.ErrClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClaimEnrollment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	lease := now.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(store.queries.lockEnrollment).
		WithArgs("e1").
		WillReturnRows(enrollmentRows(enrollmentRow("e1", 0, cadence.StatusActive, now, now.Add(-time.Minute))))
	mock.ExpectExec(store.queries.claim+"(?)").
		WithArgs(lease, "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e, err := store.ClaimEnrollment(context.Background(), "e1", now, lease)
	require.NoError(t, err)
	require.Equal(t, lease, *e.ClaimedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithinTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(store.queries.insertActivity).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx cadence.Store) error {
		if err := tx.AppendActivity(ctx, cadence.ActivityRecord{ID: "a1", LeadID: "L1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWithinTxCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(store.queries.incrementUsage).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx cadence.Store) error {
		return tx.IncrementCadenceUsage(ctx, "c1")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAppendActivityEncodesMetadata(t *testing.T) {
	store, mock := newMockStore(t)
	performed := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(store.queries.insertActivity).
		WithArgs("a1", "L1", "camp", "e1", "message", "whatsapp", "outbound", nil, "scheduled",
			[]byte(`{"cadenceId":"c1","cadenceName":"Warm","stepNumber":2,"totalSteps":3,"day":3}`), nil, performed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AppendActivity(context.Background(), cadence.ActivityRecord{
		ID:           "a1",
		LeadID:       "L1",
		CampaignID:   "camp",
		EnrollmentID: "e1",
		Type:         cadence.ActionMessage,
		Channel:      cadence.ChannelWhatsApp,
		Direction:    cadence.DirectionOutbound,
		Status:       cadence.ActivityStatusScheduled,
		Metadata:     cadence.ActivityMetadata{CadenceID: "c1", CadenceName: "Warm", StepNumber: 2, TotalSteps: 3, Day: 3},
		PerformedAt:  performed,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordFailure(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	retryAt := now.Add(time.Minute)

	mock.ExpectExec(store.queries.recordFailure).
		WithArgs(2, "boom", now, retryAt, "active", "active", "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(store.queries.recordFailure).
		WithArgs(3, "boom", now, nil, "active", "failed", "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(store.queries.recordFailure).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, store.RecordFailure(ctx, "e1", cadence.Failure{Attempts: 2, Err: errors.New("boom"), RetryAt: &retryAt, At: now}))
	require.NoError(t, store.RecordFailure(ctx, "e1", cadence.Failure{Attempts: 3, Err: errors.New("boom"), Dead: true, At: now}))
	require.ErrorIs(t, store.RecordFailure(ctx, "e404", cadence.Failure{At: now}), cadence.ErrEnrollmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDueCount(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(store.queries.countDue).
		WithArgs("active", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.DueCount(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIncrementCadenceUsageNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(store.queries.incrementUsage).
		WithArgs("c404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.IncrementCadenceUsage(context.Background(), "c404")
	require.ErrorIs(t, err, cadence.ErrCadenceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFindDueRejectsInvalidLimit(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.FindDueEnrollments(context.Background(), time.Now(), 0)
	require.ErrorIs(t, err, cadence.ErrInvalidBatchSize)
}

func TestMakePlaceholders(t *testing.T) {
	if got := makePlaceholders(1); got != "?" {
		t.Fatalf("unexpected placeholders: %s", got)
	}
	if got := makePlaceholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders: %s", got)
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("é", maxErrorLen+10)
	msg := truncateError(errors.New(long))
	if len([]rune(msg)) != maxErrorLen {
		t.Fatalf("expected truncated length %d, got %d", maxErrorLen, len([]rune(msg)))
	}
	if truncateError(nil) != "" {
		t.Fatalf("expected empty message for nil error")
	}
}
