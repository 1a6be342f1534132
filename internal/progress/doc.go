// Package progress provides the event primitives, non-blocking hub, and
// emitter interface the archive run uses to report its milestones. Events
// are batched on a background goroutine and fanned out to pluggable sinks
// such as the structured log, Prometheus metrics, or the status tracker.
package progress
