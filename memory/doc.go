// Package memory provides an in-process implementation of the cadence store.
//
// It enforces the same invariants as the MySQL store: at most one active enrollment per lead,
// guarded updates and claim leases. State is lost when the process exits.
package memory
