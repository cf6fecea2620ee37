// Package cadence provides a multi-step outreach cadence engine with pluggable storage backends.
//
// Typical flow:
//  1. A Manager enrolls a lead into a cadence (an ordered template of timed steps), enforcing
//     at most one active enrollment per lead.
//  2. A Scheduler polls the Store for due enrollments and hands each one to the Advancer.
//  3. The Advancer records an activity for the due step, moves the enrollment to the next step
//     (or completes it) and notifies the external automation engine through a Dispatcher.
//
// Dispatch is fire-and-forget: its outcome never changes persisted enrollment state.
//
// For the MySQL implementation (claims via SKIP LOCKED, one active enrollment per lead via a unique
// generated column), see the mysql package. The memory package provides an in-process Store for
// tests and demos.
package cadence
