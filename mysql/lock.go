package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/velmie/cadence"
)

// DefaultTickLockName is the advisory lock taken around scheduler ticks.
const DefaultTickLockName = "cadence:scheduler"

// TickLock serializes work across processes with a MySQL advisory lock (GET_LOCK).
// The lock is session scoped, so it is held on a dedicated connection for the duration of Do.
type TickLock struct {
	db     *sql.DB
	name   string
	logger cadence.Logger
}

// NewTickLock creates a TickLock. An empty name uses DefaultTickLockName.
func NewTickLock(db *sql.DB, name string, logger cadence.Logger) (*TickLock, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if name == "" {
		name = DefaultTickLockName
	}
	if logger == nil {
		logger = cadence.NopLogger{}
	}

	return &TickLock{db: db, name: name, logger: logger}, nil
}

// Do runs fn while holding the lock. It returns false without calling fn when another
// session holds the lock.
func (l *TickLock) Do(ctx context.Context, fn func(ctx context.Context) error) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("cadence mysql: lock conn failed: %w", err)
	}
	defer conn.Close()

	locked, err := l.tryLock(ctx, conn)
	if err != nil {
		return false, err
	}
	if !locked {
		l.logger.Debug("cadence tick lock held by another session", "lock", l.name)

		return false, nil
	}
	defer l.releaseLock(conn)

	return true, fn(ctx)
}

func (l *TickLock) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", l.name).Scan(&got); err != nil {
		return false, fmt.Errorf("cadence mysql: acquire lock failed: %w", err)
	}
	if !got.Valid || got.Int64 == 0 {
		return false, nil
	}

	return true, nil
}

// releaseLock runs on a fresh context so that a canceled tick still releases the lock.
func (l *TickLock) releaseLock(conn *sql.Conn) {
	var released sql.NullInt64
	if err := conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
		l.logger.Warn("cadence tick lock release failed", "lock", l.name, "err", err)
	}
}
