// Package sinks implements concrete progress consumers: Prometheus,
// repository-backed storage and structured logging. Each sink satisfies
// progress.Sink.
package sinks
