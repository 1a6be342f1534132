// Package sinks implements concrete progress consumers: structured
// logging, Prometheus metrics, and the in-memory run tracker behind the
// status endpoint. Each sink satisfies the progress.Sink interface and is
// safe for repeated Consume/Close cycles.
package sinks
