package memory

import (
	"context"

	"github.com/velmie/cadence"
)

// WithinTx implements cadence.Transactor.
//
// Activities appended through tx become visible only when fn returns nil. Enrollment
// inserts and updates made through tx apply at once and are undone when fn fails,
// unless another writer has changed the enrollment since. Lead status and counter
// updates are not transactional.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx cadence.Store) error) error {
	tx := &txStore{Store: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()

	return nil
}

type enrollmentWrite struct {
	id      string
	prev    cadence.Enrollment
	existed bool
	written cadence.Enrollment
}

type txStore struct {
	*Store

	activities []cadence.ActivityRecord
	writes     []enrollmentWrite
}

func (t *txStore) AppendActivity(_ context.Context, record cadence.ActivityRecord) error {
	t.activities = append(t.activities, record)

	return nil
}

func (t *txStore) InsertEnrollment(_ context.Context, e cadence.Enrollment) (cadence.Enrollment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inserted, err := t.insertEnrollment(e)
	if err != nil {
		return cadence.Enrollment{}, err
	}
	t.writes = append(t.writes, enrollmentWrite{id: e.ID, written: inserted})

	return inserted, nil
}

func (t *txStore) UpdateEnrollment(_ context.Context, id string, patch cadence.EnrollmentPatch) (cadence.Enrollment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, existed := t.enrollments[id]
	updated, err := t.updateEnrollment(id, patch)
	if err != nil {
		return cadence.Enrollment{}, err
	}
	t.writes = append(t.writes, enrollmentWrite{id: id, prev: prev, existed: existed, written: updated})

	return updated, nil
}

func (t *txStore) commit() {
	if len(t.activities) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Store.activities = append(t.Store.activities, t.activities...)
}

func (t *txStore) rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.writes) - 1; i >= 0; i-- {
		w := t.writes[i]
		if current, ok := t.enrollments[w.id]; !ok || current != w.written {
			continue
		}
		if w.existed {
			t.enrollments[w.id] = w.prev
		} else {
			delete(t.enrollments, w.id)
		}
	}
}
