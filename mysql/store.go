package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	driver "github.com/go-sql-driver/mysql"

	"github.com/velmie/cadence"
)

const (
	maxErrorLen       = 1024
	placeholderGrowth = 2
	errDuplicateKey   = 1062
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the cadence store on MySQL.
type Store struct {
	db      *sql.DB
	tx      *sql.Tx
	q       querier
	cfg     Config
	queries queries
}

var (
	_ cadence.Store           = (*Store)(nil)
	_ cadence.Transactor      = (*Store)(nil)
	_ cadence.Claimer         = (*Store)(nil)
	_ cadence.FailureRecorder = (*Store)(nil)
	_ cadence.DueCounter      = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	tables, err := cfg.Tables.sanitize()
	if err != nil {
		return nil, err
	}
	cfg.Tables = tables

	return &Store{
		db:      db,
		q:       db,
		cfg:     cfg,
		queries: newQueries(tables),
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// WithinTx runs fn against a READ COMMITTED transaction. Nested calls reuse the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx cadence.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("cadence mysql: begin tx failed: %w", err)
	}

	txStore := *s
	txStore.tx = tx
	txStore.q = tx
	if err := fn(ctx, &txStore); err != nil {
		rollbackErr := tx.Rollback()
		if errors.Is(rollbackErr, sql.ErrTxDone) {
			rollbackErr = nil
		}

		return errors.Join(err, rollbackErr)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cadence mysql: commit failed: %w", err)
	}

	return nil
}

// FindLead implements cadence.Store.
func (s *Store) FindLead(ctx context.Context, leadID string) (cadence.Lead, error) {
	var (
		lead                                          cadence.Lead
		company, email, phone, whatsapp, linkedin, ig sql.NullString
	)
	err := s.q.QueryRowContext(ctx, s.queries.findLead, leadID).Scan(
		&lead.ID, &lead.Name, &company, &lead.Status, &email, &phone, &whatsapp, &linkedin, &ig,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return cadence.Lead{}, fmt.Errorf("%w: %s", cadence.ErrLeadNotFound, leadID)
	}
	if err != nil {
		return cadence.Lead{}, fmt.Errorf("cadence mysql: find lead failed: %w", err)
	}
	lead.Company = company.String
	lead.Email = email.String
	lead.Phone = phone.String
	lead.WhatsApp = whatsapp.String
	lead.LinkedInURL = linkedin.String
	lead.InstagramHandle = ig.String

	return lead, nil
}

// FindCadence implements cadence.Store.
func (s *Store) FindCadence(ctx context.Context, cadenceID string) (cadence.Cadence, error) {
	var (
		cad   cadence.Cadence
		steps []byte
	)
	err := s.q.QueryRowContext(ctx, s.queries.findCadence, cadenceID).Scan(&cad.ID, &cad.Name, &steps, &cad.UsageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return cadence.Cadence{}, fmt.Errorf("%w: %s", cadence.ErrCadenceNotFound, cadenceID)
	}
	if err != nil {
		return cadence.Cadence{}, fmt.Errorf("cadence mysql: find cadence failed: %w", err)
	}
	if err := json.Unmarshal(steps, &cad.Steps); err != nil {
		return cadence.Cadence{}, fmt.Errorf("cadence mysql: decode steps of %s: %w", cadenceID, err)
	}

	return cad, nil
}

// FindActiveEnrollmentByLead implements cadence.Store.
func (s *Store) FindActiveEnrollmentByLead(ctx context.Context, leadID string) (cadence.Enrollment, bool, error) {
	e, err := scanEnrollment(s.q.QueryRowContext(ctx, s.queries.findActiveByLead, leadID, cadence.StatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return cadence.Enrollment{}, false, nil
	}
	if err != nil {
		return cadence.Enrollment{}, false, fmt.Errorf("cadence mysql: find active enrollment failed: %w", err)
	}

	return e, true, nil
}

// FindEnrollment implements cadence.Store.
func (s *Store) FindEnrollment(ctx context.Context, id string) (cadence.Enrollment, error) {
	return s.findEnrollment(ctx, s.q, s.queries.findEnrollment, id)
}

// InsertEnrollment implements cadence.Store. A duplicate key on the active lead index
// is reported as *cadence.ConflictError.
func (s *Store) InsertEnrollment(ctx context.Context, e cadence.Enrollment) (cadence.Enrollment, error) {
	_, err := s.q.ExecContext(
		ctx,
		s.queries.insertEnrollment,
		e.ID,
		e.LeadID,
		e.CadenceID,
		nullString(e.CampaignID),
		e.CurrentStepIndex,
		e.CurrentDay,
		e.Status,
		nullTime(e.NextActivityAt),
		nullString(string(e.NextActivityChannel)),
		nullString(string(e.NextActivityType)),
		e.StartedAt.UTC(),
		nullTime(e.CompletedAt),
		e.UpdatedAt.UTC(),
		e.Attempts,
		nullString(e.LastError),
		nullTime(e.ClaimedUntil),
	)
	if err != nil {
		var myErr *driver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateKey {
			if strings.Contains(myErr.Message, activeLeadIndex(s.cfg.Tables.Enrollments)) {
				return cadence.Enrollment{}, &cadence.ConflictError{LeadID: e.LeadID}
			}

			return cadence.Enrollment{}, fmt.Errorf("%w: %s", ErrDuplicateEnrollment, e.ID)
		}

		return cadence.Enrollment{}, fmt.Errorf("cadence mysql: insert enrollment failed: %w", err)
	}

	return e, nil
}

// UpdateEnrollment implements cadence.Store.
func (s *Store) UpdateEnrollment(ctx context.Context, id string, patch cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	res, err := s.q.ExecContext(
		ctx,
		s.queries.updateEnrollment,
		patch.CurrentStepIndex,
		patch.CurrentDay,
		patch.Status,
		nullTime(patch.NextActivityAt),
		nullString(string(patch.NextActivityChannel)),
		nullString(string(patch.NextActivityType)),
		nullTime(patch.CompletedAt),
		patch.UpdatedAt.UTC(),
		id,
		cadence.StatusActive,
		patch.ExpectedStepIndex,
	)
	if err != nil {
		return cadence.Enrollment{}, fmt.Errorf("cadence mysql: update enrollment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return cadence.Enrollment{}, fmt.Errorf("cadence mysql: update rows failed: %w", err)
	}

	current, err := s.FindEnrollment(ctx, id)
	if err != nil {
		return cadence.Enrollment{}, err
	}
	if affected == 0 {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s at step %d, expected %d",
			cadence.ErrStaleEnrollment, id, current.CurrentStepIndex, patch.ExpectedStepIndex)
	}

	return current, nil
}

// FindDueEnrollments implements cadence.Store.
func (s *Store) FindDueEnrollments(ctx context.Context, now time.Time, limit int) ([]cadence.Enrollment, error) {
	if limit <= 0 {
		return nil, cadence.ErrInvalidBatchSize
	}

	rows, err := s.q.QueryContext(ctx, s.queries.selectDue, cadence.StatusActive, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("cadence mysql: select due failed: %w", err)
	}

	return collectEnrollments(rows, limit)
}

// ClaimDue implements cadence.Claimer using SELECT ... FOR UPDATE SKIP LOCKED,
// so concurrent claimers receive disjoint rows.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int, leaseUntil time.Time) ([]cadence.Enrollment, error) {
	if limit <= 0 {
		return nil, cadence.ErrInvalidBatchSize
	}

	var claimed []cadence.Enrollment
	err := s.inTx(ctx, func(q querier) error {
		rows, err := q.QueryContext(ctx, s.queries.claimDue, cadence.StatusActive, now.UTC(), now.UTC(), limit)
		if err != nil {
			return fmt.Errorf("cadence mysql: claim select failed: %w", err)
		}
		claimed, err = collectEnrollments(rows, limit)
		if err != nil || len(claimed) == 0 {
			return err
		}

		args := make([]any, 0, len(claimed)+1)
		args = append(args, leaseUntil.UTC())
		for _, e := range claimed {
			args = append(args, e.ID)
		}
		if _, err := q.ExecContext(ctx, buildClaimQuery(s.queries.claim, len(claimed)), args...); err != nil {
			return fmt.Errorf("cadence mysql: claim update failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	lease := leaseUntil.UTC()
	for i := range claimed {
		claimed[i].ClaimedUntil = &lease
	}

	return claimed, nil
}

// ClaimEnrollment implements cadence.Claimer.
func (s *Store) ClaimEnrollment(ctx context.Context, id string, now, leaseUntil time.Time) (cadence.Enrollment, error) {
	var e cadence.Enrollment
	err := s.inTx(ctx, func(q querier) error {
		var err error
		e, err = s.findEnrollment(ctx, q, s.queries.lockEnrollment, id)
		if err != nil {
			return err
		}
		if e.ClaimedUntil != nil && e.ClaimedUntil.After(now) {
			return fmt.Errorf("%w: %s", cadence.ErrClaimed, id)
		}
		if _, err := q.ExecContext(ctx, buildClaimQuery(s.queries.claim, 1), leaseUntil.UTC(), id); err != nil {
			return fmt.Errorf("cadence mysql: claim update failed: %w", err)
		}

		return nil
	})
	if err != nil {
		return cadence.Enrollment{}, err
	}

	lease := leaseUntil.UTC()
	e.ClaimedUntil = &lease

	return e, nil
}

// RecordFailure implements cadence.FailureRecorder.
func (s *Store) RecordFailure(ctx context.Context, id string, failure cadence.Failure) error {
	status := cadence.StatusActive
	if failure.Dead {
		status = cadence.StatusFailed
	}

	res, err := s.q.ExecContext(
		ctx,
		s.queries.recordFailure,
		failure.Attempts,
		truncateError(failure.Err),
		failure.At.UTC(),
		nullTime(failure.RetryAt),
		cadence.StatusActive,
		status,
		id,
	)
	if err != nil {
		return fmt.Errorf("cadence mysql: record failure failed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}

	return nil
}

// DueCount implements cadence.DueCounter.
func (s *Store) DueCount(ctx context.Context, now time.Time) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, s.queries.countDue, cadence.StatusActive, now.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("cadence mysql: due count failed: %w", err)
	}

	return count, nil
}

// AppendActivity implements cadence.Store.
func (s *Store) AppendActivity(ctx context.Context, record cadence.ActivityRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("cadence mysql: encode activity metadata: %w", err)
	}

	_, err = s.q.ExecContext(
		ctx,
		s.queries.insertActivity,
		record.ID,
		record.LeadID,
		nullString(record.CampaignID),
		nullString(record.EnrollmentID),
		string(record.Type),
		nullString(string(record.Channel)),
		record.Direction,
		nullString(record.Content),
		record.Status,
		metadata,
		nullTime(record.ScheduledAt),
		record.PerformedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("cadence mysql: insert activity failed: %w", err)
	}

	return nil
}

// SetLeadStatus implements cadence.Store.
func (s *Store) SetLeadStatus(ctx context.Context, leadID, status string) error {
	if _, err := s.q.ExecContext(ctx, s.queries.setLeadStatus, status, leadID); err != nil {
		return fmt.Errorf("cadence mysql: set lead status failed: %w", err)
	}

	return nil
}

// IncrementCadenceUsage implements cadence.Store.
func (s *Store) IncrementCadenceUsage(ctx context.Context, cadenceID string) error {
	res, err := s.q.ExecContext(ctx, s.queries.incrementUsage, cadenceID)
	if err != nil {
		return fmt.Errorf("cadence mysql: increment usage failed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", cadence.ErrCadenceNotFound, cadenceID)
	}

	return nil
}

// IncrementCampaignLeadCount implements cadence.Store. Unknown campaigns are created.
func (s *Store) IncrementCampaignLeadCount(ctx context.Context, campaignID string) error {
	if _, err := s.q.ExecContext(ctx, s.queries.incrementCampaign, campaignID); err != nil {
		return fmt.Errorf("cadence mysql: increment campaign failed: %w", err)
	}

	return nil
}

// UpsertLead inserts or updates a lead. The status of an existing lead is kept.
func (s *Store) UpsertLead(ctx context.Context, lead cadence.Lead) error {
	status := lead.Status
	if status == "" {
		status = "new"
	}
	_, err := s.q.ExecContext(
		ctx,
		s.queries.upsertLead,
		lead.ID,
		lead.Name,
		nullString(lead.Company),
		status,
		nullString(lead.Email),
		nullString(lead.Phone),
		nullString(lead.WhatsApp),
		nullString(lead.LinkedInURL),
		nullString(lead.InstagramHandle),
	)
	if err != nil {
		return fmt.Errorf("cadence mysql: upsert lead failed: %w", err)
	}

	return nil
}

// UpsertCadence inserts or updates a cadence definition.
func (s *Store) UpsertCadence(ctx context.Context, cad cadence.Cadence) error {
	steps, err := json.Marshal(cad.Steps)
	if err != nil {
		return fmt.Errorf("cadence mysql: encode steps: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, s.queries.upsertCadence, cad.ID, cad.Name, steps); err != nil {
		return fmt.Errorf("cadence mysql: upsert cadence failed: %w", err)
	}

	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	return s.WithinTx(ctx, func(_ context.Context, tx cadence.Store) error {
		return fn(tx.(*Store).q)
	})
}

func (s *Store) findEnrollment(ctx context.Context, q querier, query, id string) (cadence.Enrollment, error) {
	e, err := scanEnrollment(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return cadence.Enrollment{}, fmt.Errorf("%w: %s", cadence.ErrEnrollmentNotFound, id)
	}
	if err != nil {
		return cadence.Enrollment{}, fmt.Errorf("cadence mysql: find enrollment failed: %w", err)
	}

	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row scanner) (cadence.Enrollment, error) {
	var (
		e                         cadence.Enrollment
		status                    string
		campaign, channel, action sql.NullString
		lastError                 sql.NullString
		next, completed, claimed  sql.NullTime
	)
	err := row.Scan(
		&e.ID,
		&e.LeadID,
		&e.CadenceID,
		&campaign,
		&e.CurrentStepIndex,
		&e.CurrentDay,
		&status,
		&next,
		&channel,
		&action,
		&e.StartedAt,
		&completed,
		&e.UpdatedAt,
		&e.Attempts,
		&lastError,
		&claimed,
	)
	if err != nil {
		return cadence.Enrollment{}, err
	}

	e.CampaignID = campaign.String
	e.Status = cadence.Status(status)
	e.NextActivityAt = timePtr(next)
	e.NextActivityChannel = cadence.Channel(channel.String)
	e.NextActivityType = cadence.Action(action.String)
	e.CompletedAt = timePtr(completed)
	e.LastError = lastError.String
	e.ClaimedUntil = timePtr(claimed)
	e.StartedAt = e.StartedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()

	return e, nil
}

func collectEnrollments(rows *sql.Rows, capacity int) ([]cadence.Enrollment, error) {
	defer rows.Close()

	out := make([]cadence.Enrollment, 0, capacity)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence mysql: scan failed: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence mysql: rows failed: %w", err)
	}

	return out, nil
}

func buildClaimQuery(prefix string, count int) string {
	return prefix + "(" + makePlaceholders(count) + ")"
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()

	return &v
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}

	return string([]rune(msg)[:maxErrorLen])
}
