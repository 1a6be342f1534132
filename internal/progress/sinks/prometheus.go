package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seumter-tools/registry-archiver/internal/progress"
)

// PrometheusSink exports archive-run progress metrics via Prometheus. It owns
// all collectors for runs, per-address results, and artifact uploads.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	addressesAttempted prometheus.Counter
	addressesCompleted *prometheus.CounterVec
	addressDuration    *prometheus.HistogramVec
	chunkRemaining     prometheus.Gauge

	artifactsUploaded prometheus.Counter
	artifactFailures  prometheus.Counter
	artifactBytes     prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_started_total",
			Help: "Total archive runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_runs_completed_total",
			Help: "Total archive runs completed partitioned by outcome.",
		}, []string{"outcome"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_runs_running",
			Help: "Current number of in-flight archive runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_run_runtime_seconds",
			Help:    "Wall time per completed archive run.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"outcome"}),
		addressesAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_addresses_attempted_total",
			Help: "Addresses the session started fetching.",
		}),
		addressesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_addresses_completed_total",
			Help: "Address completions partitioned by result.",
		}, []string{"result"}),
		addressDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archiver_address_duration_seconds",
			Help:    "Fetch duration per address partitioned by result.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		chunkRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archiver_chunk_remaining",
			Help: "Addresses still pending in the current chunk.",
		}),
		artifactsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_artifacts_uploaded_total",
			Help: "Registry documents uploaded to artifact storage.",
		}),
		artifactFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_artifact_failures_total",
			Help: "Registry document uploads that failed.",
		}),
		artifactBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_artifact_bytes_total",
			Help: "Bytes uploaded to artifact storage.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.addressesAttempted,
		s.addressesCompleted,
		s.addressDuration,
		s.chunkRemaining,
		s.artifactsUploaded,
		s.artifactFailures,
		s.artifactBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StageAddrStart, progress.StageAddrDone:
		s.handleAddressEvent(evt)
	case progress.StageArtifactUploaded, progress.StageArtifactFailed:
		s.handleArtifactEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
		s.chunkRemaining.Set(float64(evt.Planned))
	case progress.StageRunDone:
		outcome := evt.Outcome
		if outcome == "" {
			outcome = "unknown"
		}
		s.runsCompleted.WithLabelValues(outcome).Inc()
		s.observeRuntime(evt, outcome)
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleAddressEvent(evt progress.Event) {
	if evt.Stage == progress.StageAddrStart {
		s.addressesAttempted.Inc()
		return
	}
	result := string(evt.Result)
	if result == "" {
		result = "unknown"
	}
	s.addressesCompleted.WithLabelValues(result).Inc()
	s.chunkRemaining.Dec()
	if evt.Dur > 0 {
		s.addressDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleArtifactEvent(evt progress.Event) {
	if evt.Stage == progress.StageArtifactFailed {
		s.artifactFailures.Inc()
		return
	}
	s.artifactsUploaded.Inc()
	if evt.Bytes > 0 {
		s.artifactBytes.Add(float64(evt.Bytes))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
