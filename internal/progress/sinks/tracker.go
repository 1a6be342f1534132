package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/seumter-tools/registry-archiver/internal/progress"
)

// RunSnapshot is the aggregated view of the most recent archive run, shaped
// for JSON responses from the status endpoint.
type RunSnapshot struct {
	RunID          string     `json:"run_id"`
	State          string     `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Outcome        string     `json:"outcome,omitempty"`
	Planned        int64      `json:"planned"`
	Attempted      int64      `json:"attempted"`
	Succeeded      int64      `json:"succeeded"`
	SoftFailed     int64      `json:"soft_failed"`
	Uploaded       int64      `json:"uploaded"`
	UploadFailed   int64      `json:"upload_failed"`
	CurrentAddress string     `json:"current_address,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Run states reported by the tracker.
const (
	RunStateRunning = "running"
	RunStateDone    = "done"
	RunStateError   = "error"
)

// TrackerSink folds the event stream into an in-memory snapshot of the current
// run. The status endpoint reads it; nothing is persisted across restarts,
// which matches the one-run-per-process execution model.
type TrackerSink struct {
	mu   sync.RWMutex
	snap *RunSnapshot
}

// NewTrackerSink constructs an empty tracker.
func NewTrackerSink() *TrackerSink {
	return &TrackerSink{}
}

// Consume folds the batch into the snapshot. Events that precede the first
// RUN_START or belong to an older run are ignored.
func (s *TrackerSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *TrackerSink) apply(evt progress.Event) {
	runID := evt.RunUUID().String()
	if evt.Stage == progress.StageRunStart {
		s.snap = &RunSnapshot{
			RunID:     runID,
			State:     RunStateRunning,
			StartedAt: evt.TS,
			Planned:   evt.Planned,
			UpdatedAt: evt.TS,
		}
		return
	}
	if s.snap == nil || s.snap.RunID != runID {
		return
	}
	switch evt.Stage {
	case progress.StageAddrStart:
		s.snap.Attempted++
		s.snap.CurrentAddress = evt.Address
	case progress.StageAddrDone:
		switch evt.Result {
		case progress.ResultSuccess:
			s.snap.Succeeded++
		case progress.ResultSoftFailure:
			s.snap.SoftFailed++
		}
		s.snap.CurrentAddress = ""
	case progress.StageArtifactUploaded:
		s.snap.Uploaded++
	case progress.StageArtifactFailed:
		s.snap.UploadFailed++
	case progress.StageRunDone:
		ts := evt.TS
		s.snap.State = RunStateDone
		s.snap.FinishedAt = &ts
		s.snap.Outcome = evt.Outcome
		s.snap.CurrentAddress = ""
	case progress.StageRunError:
		ts := evt.TS
		s.snap.State = RunStateError
		s.snap.FinishedAt = &ts
		s.snap.LastError = evt.Note
		s.snap.CurrentAddress = ""
	}
	if evt.TS.After(s.snap.UpdatedAt) {
		s.snap.UpdatedAt = evt.TS
	}
}

// Snapshot returns a copy of the current run view. The second return value is
// false until the first RUN_START has been observed.
func (s *TrackerSink) Snapshot() (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return RunSnapshot{}, false
	}
	out := *s.snap
	if s.snap.FinishedAt != nil {
		ts := *s.snap.FinishedAt
		out.FinishedAt = &ts
	}
	return out, true
}

// Close implements the Sink interface; it performs no action.
func (s *TrackerSink) Close(context.Context) error {
	return nil
}
