// Package progress carries session lifecycle events from the session runners
// to pluggable sinks. Runners emit without blocking; a background goroutine
// batches events and hands them to sinks such as the log and Prometheus
// consumers in progress/sinks.
package progress
