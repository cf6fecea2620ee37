// Package mysql provides a MySQL 8.0+ implementation of the cadence store.
//
// The store uses:
//   - a STORED generated column active_lead_id with a UNIQUE index, so that at most one
//     active enrollment per lead exists regardless of concurrent inserts
//   - guarded updates (WHERE status = 'active' AND current_step_index = ?) against double advances
//   - SELECT ... FOR UPDATE SKIP LOCKED plus a claimed_until lease for due selection
//   - READ COMMITTED transactions (to avoid gap locks)
//
// The DSN must set parseTime=true. Timestamps are stored as UTC DATETIME(6).
// See Schema for the DDL and TickLock for serializing scheduler ticks across processes.
package mysql
