// Package notify defines the interfaces for publishing run reports.
// Downstream consumers (a spreadsheet refresher, an alerting hook) learn
// about finished archive runs this way; the archiver itself never depends
// on anyone listening.
package notify

import (
	"context"
	"time"
)

// RunReport summarizes a finished archive run for downstream consumers.
type RunReport struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Outcome          string    `json:"outcome"`
	Planned          int       `json:"planned"`
	Attempted        int       `json:"attempted"`
	Succeeded        int       `json:"succeeded"`
	SoftFailed       int       `json:"soft_failed"`
	AbortedRemaining int       `json:"aborted_remaining"`
	Uploaded         int       `json:"uploaded"`
	UploadFailed     int       `json:"upload_failed"`
}

// Provider defines the common interface for run-report publication.
type Provider interface {
	// Publish sends the report. Implementations may send asynchronously;
	// Close flushes whatever is still pending.
	Publish(ctx context.Context, report RunReport) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpProvider is a report publisher that performs no operations. It is
// used when no notification channel is configured.
type NoOpProvider struct{}

// Publish for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Publish(_ context.Context, _ RunReport) error { return nil }

// Close for NoOpProvider does nothing and returns nil.
func (n *NoOpProvider) Close() error { return nil }
