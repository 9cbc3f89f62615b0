// Package sinks implements progress consumers: structured logging, Prometheus
// collectors and the run repository.
package sinks
