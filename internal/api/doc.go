// Package api hosts the read-only HTTP surface served while a run is in
// flight. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /progress for the current run snapshot.
//   - GET /metrics for Prometheus scraping.
//
// Long chunks under a scheduler can take the better part of an hour; the
// endpoints let an operator check on a run without touching the browser.
package api
