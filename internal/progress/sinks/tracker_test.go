package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/seumter-tools/registry-archiver/internal/progress"
)

// TestTrackerSinkAggregatesRun folds a full run into a snapshot.
func TestTrackerSinkAggregatesRun(t *testing.T) {
	t.Parallel()

	sink := NewTrackerSink()
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	_, ok := sink.Snapshot()
	require.False(t, ok)

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Planned: 3},
		{RunID: runID, TS: now.Add(time.Second), Stage: progress.StageAddrStart, Address: "압구정동 1-1"},
		{
			RunID:    runID,
			TS:       now.Add(10 * time.Second),
			Stage:    progress.StageAddrDone,
			Address:  "압구정동 1-1",
			Result:   progress.ResultSuccess,
			Archived: true,
		},
		{
			RunID:    runID,
			TS:       now.Add(11 * time.Second),
			Stage:    progress.StageArtifactUploaded,
			Artifact: "2026-08-25/건축물대장.pdf",
			Bytes:    1024,
		},
		{RunID: runID, TS: now.Add(12 * time.Second), Stage: progress.StageAddrStart, Address: "압구정동 2-2"},
		{
			RunID:   runID,
			TS:      now.Add(20 * time.Second),
			Stage:   progress.StageAddrDone,
			Address: "압구정동 2-2",
			Result:  progress.ResultSoftFailure,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	snap, ok := sink.Snapshot()
	require.True(t, ok)
	require.Equal(t, runUUID.String(), snap.RunID)
	require.Equal(t, RunStateRunning, snap.State)
	require.Equal(t, int64(3), snap.Planned)
	require.Equal(t, int64(2), snap.Attempted)
	require.Equal(t, int64(1), snap.Succeeded)
	require.Equal(t, int64(1), snap.SoftFailed)
	require.Equal(t, int64(1), snap.Uploaded)
	require.Empty(t, snap.CurrentAddress)
	require.Nil(t, snap.FinishedAt)

	done := progress.Event{
		RunID:   runID,
		TS:      now.Add(21 * time.Second),
		Stage:   progress.StageRunDone,
		Outcome: "ok",
		Dur:     21 * time.Second,
	}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done}))

	snap, ok = sink.Snapshot()
	require.True(t, ok)
	require.Equal(t, RunStateDone, snap.State)
	require.Equal(t, "ok", snap.Outcome)
	require.NotNil(t, snap.FinishedAt)
	require.Equal(t, now.Add(21*time.Second), *snap.FinishedAt)
}

// TestTrackerSinkTracksCurrentAddress exposes the in-flight address between start and done.
func TestTrackerSinkTracksCurrentAddress(t *testing.T) {
	t.Parallel()

	sink := NewTrackerSink()
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Planned: 1},
		{RunID: runID, TS: now.Add(time.Second), Stage: progress.StageAddrStart, Address: "압구정동 1-1"},
	}))

	snap, ok := sink.Snapshot()
	require.True(t, ok)
	require.Equal(t, "압구정동 1-1", snap.CurrentAddress)
}

// TestTrackerSinkNewRunResetsSnapshot verifies a later RUN_START replaces prior state.
func TestTrackerSinkNewRunResetsSnapshot(t *testing.T) {
	t.Parallel()

	sink := NewTrackerSink()
	now := time.Now()
	first := progress.UUIDToBytes(uuid.New())
	secondUUID := uuid.New()
	second := progress.UUIDToBytes(secondUUID)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: now, Stage: progress.StageRunStart, Planned: 4},
		{RunID: first, TS: now.Add(time.Second), Stage: progress.StageRunError, Note: "launch failed"},
		{RunID: second, TS: now.Add(2 * time.Second), Stage: progress.StageRunStart, Planned: 2},
	}))

	snap, ok := sink.Snapshot()
	require.True(t, ok)
	require.Equal(t, secondUUID.String(), snap.RunID)
	require.Equal(t, RunStateRunning, snap.State)
	require.Equal(t, int64(2), snap.Planned)
	require.Zero(t, snap.Attempted)
	require.Empty(t, snap.LastError)
}

// TestTrackerSinkIgnoresForeignEvents drops events for runs it never saw start.
func TestTrackerSinkIgnoresForeignEvents(t *testing.T) {
	t.Parallel()

	sink := NewTrackerSink()
	now := time.Now()
	known := progress.UUIDToBytes(uuid.New())
	unknown := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: known, TS: now, Stage: progress.StageRunStart, Planned: 1},
		{RunID: unknown, TS: now.Add(time.Second), Stage: progress.StageAddrStart, Address: "압구정동 1-1"},
	}))

	snap, ok := sink.Snapshot()
	require.True(t, ok)
	require.Zero(t, snap.Attempted)
	require.Empty(t, snap.CurrentAddress)
}
