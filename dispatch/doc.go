// Package dispatch delivers processed cadence steps to the external automation engine.
//
// Webhook and RedisStream are blocking senders. Queue wraps either of them so that
// the Advancer hands a step off without waiting for delivery.
package dispatch
