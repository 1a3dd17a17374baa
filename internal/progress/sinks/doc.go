// Package sinks implements progress consumers for structured logging and
// Prometheus. Each sink satisfies progress.Sink and tolerates repeated
// Consume/Close cycles.
package sinks
