// Package progress carries run and task lifecycle events from the scheduler
// and workers to sinks. Emit never blocks; events are batched on a background
// goroutine and fanned out to the log, Prometheus and the run repository.
package progress
