// Package sinks implements concrete progress consumers: structured logging,
// Prometheus collectors and an in-memory session status view. Each sink
// satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
