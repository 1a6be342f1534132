// Package crawl implements the chunked archive run: it resolves the
// pending worklist against the completion ledger, drives the portal
// session one address at a time, publishes detected downloads, and
// records durable completions.
package crawl

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seumter-tools/registry-archiver/internal/address"
	"github.com/seumter-tools/registry-archiver/internal/ledger"
	"github.com/seumter-tools/registry-archiver/internal/notify"
	"github.com/seumter-tools/registry-archiver/internal/progress"
	"github.com/seumter-tools/registry-archiver/internal/session"
	"github.com/seumter-tools/registry-archiver/internal/source"
	"github.com/seumter-tools/registry-archiver/internal/storage"
)

// Run outcomes.
const (
	// OutcomeComplete means the worklist had no pending addresses left.
	OutcomeComplete = "complete"
	// OutcomeOK means the chunk was worked through with the session intact.
	OutcomeOK = "ok"
	// OutcomeAborted means the session died mid-chunk; committed progress
	// is preserved and the rest of the chunk waits for the next run.
	OutcomeAborted = "aborted"
)

const closeTimeout = 10 * time.Second

// Clock abstracts wall time so runs can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// SessionDriver is the portal automation surface a run drives. One driver
// serves one run: Start launches the browser, Authenticate logs in, and
// FetchOne performs the search-and-download sequence for a single address.
type SessionDriver interface {
	Start(ctx context.Context) error
	Authenticate(ctx context.Context) error
	FetchOne(ctx context.Context, addr string) (session.Outcome, error)
	Close(ctx context.Context) error
}

// DownloadWatcher observes the browser download directory. Snapshot is
// taken before a fetch; Collect diffs against it after the fetch to
// attribute new files to the in-flight address.
type DownloadWatcher interface {
	Snapshot() (map[string]struct{}, error)
	Collect(ctx context.Context, before map[string]struct{}, settle time.Duration) ([]string, error)
}

// Config controls Orchestrator behavior.
type Config struct {
	// ChunkSize bounds how many pending addresses one run attempts.
	ChunkSize int
	// SettleWait is how long Collect waits for downloads to land after a
	// successful fetch.
	SettleWait time.Duration
	// AddressDelay is the minimum spacing between consecutive fetches.
	AddressDelay time.Duration
}

// Summary describes one finished run.
type Summary struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Outcome          string
	TotalAddresses   int
	AlreadyDone      int
	Planned          int
	Attempted        int
	Succeeded        int
	SoftFailed       int
	AbortedRemaining int
	Uploaded         int
	UploadFailed     int
}

func (s Summary) report() notify.RunReport {
	return notify.RunReport{
		RunID:            s.RunID,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		Outcome:          s.Outcome,
		Planned:          s.Planned,
		Attempted:        s.Attempted,
		Succeeded:        s.Succeeded,
		SoftFailed:       s.SoftFailed,
		AbortedRemaining: s.AbortedRemaining,
		Uploaded:         s.Uploaded,
		UploadFailed:     s.UploadFailed,
	}
}

// Orchestrator executes archive runs strictly sequentially: one browser
// session, one address in flight at a time.
type Orchestrator struct {
	src      source.Provider
	ledger   ledger.Provider
	driver   SessionDriver
	watcher  DownloadWatcher
	store    storage.Provider
	notifier notify.Provider
	emitter  progress.Emitter
	clock    Clock
	ids      IDGenerator
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Orchestrator.
func New(
	src source.Provider,
	ledg ledger.Provider,
	driver SessionDriver,
	watcher DownloadWatcher,
	store storage.Provider,
	notifier notify.Provider,
	emitter progress.Emitter,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = &storage.NoOpProvider{}
	}
	if notifier == nil {
		notifier = &notify.NoOpProvider{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 5 * time.Second
	}
	if cfg.AddressDelay <= 0 {
		cfg.AddressDelay = 2 * time.Second
	}
	return &Orchestrator{
		src:      src,
		ledger:   ledg,
		driver:   driver,
		watcher:  watcher,
		store:    store,
		notifier: notifier,
		emitter:  emitter,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes at most one chunk of pending addresses and returns a
// Summary of what happened. The error return is reserved for pre-run
// failures (worklist, ledger, launch, login); once addresses are being
// worked, problems are classified per address and folded into the
// Summary instead.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, err := o.ids.NewRawID()
	if err != nil {
		return Summary{}, fmt.Errorf("mint run id: %w", err)
	}
	sum := Summary{RunID: runID.String(), StartedAt: o.clock.Now()}
	rid := progress.UUIDToBytes(runID)
	log := o.logger.With(zap.String("run_id", sum.RunID))

	worklist, err := o.src.Load(ctx)
	if err != nil {
		return o.fail(rid, sum, fmt.Errorf("load worklist: %w", err))
	}
	done, err := o.ledger.Completed(ctx)
	if err != nil {
		return o.fail(rid, sum, fmt.Errorf("load completion ledger: %w", err))
	}

	remaining := Pending(worklist, done)
	sum.TotalAddresses = len(worklist)
	sum.AlreadyDone = len(worklist) - len(remaining)

	chunk := remaining
	if len(chunk) > o.cfg.ChunkSize {
		chunk = chunk[:o.cfg.ChunkSize]
	}
	sum.Planned = len(chunk)

	log.Info("worklist resolved",
		zap.Int("total", sum.TotalAddresses),
		zap.Int("already_done", sum.AlreadyDone),
		zap.Int("remaining", len(remaining)),
		zap.Int("chunk", sum.Planned),
	)
	o.emit(progress.Event{
		RunID:   rid,
		TS:      o.clock.Now(),
		Stage:   progress.StageRunStart,
		Planned: int64(sum.Planned),
	})

	if len(chunk) == 0 {
		sum.Outcome = OutcomeComplete
		return o.finish(ctx, rid, sum, log)
	}

	if err := o.driver.Start(ctx); err != nil {
		return o.fail(rid, sum, fmt.Errorf("start session: %w", err))
	}
	defer o.closeDriver(log)

	if err := o.driver.Authenticate(ctx); err != nil {
		return o.fail(rid, sum, fmt.Errorf("authenticate: %w", err))
	}

	limiter := rate.NewLimiter(rate.Every(o.cfg.AddressDelay), 1)
	for i, addr := range chunk {
		if err := limiter.Wait(ctx); err != nil {
			sum.Outcome = OutcomeAborted
			sum.AbortedRemaining = len(chunk) - i
			log.Warn("run canceled", zap.Int("remaining", sum.AbortedRemaining), zap.Error(err))
			break
		}
		log.Info("processing address",
			zap.Int("position", i+1),
			zap.Int("of", sum.Planned),
			zap.String("address", addr),
		)
		if o.processAddress(ctx, rid, addr, &sum) == session.OutcomeFatal {
			sum.Outcome = OutcomeAborted
			sum.AbortedRemaining = len(chunk) - i - 1
			log.Error("session lost, aborting chunk", zap.Int("remaining", sum.AbortedRemaining))
			break
		}
	}
	if sum.Outcome == "" {
		sum.Outcome = OutcomeOK
	}
	return o.finish(ctx, rid, sum, log)
}

// processAddress runs the fetch pipeline for one address: snapshot the
// download dir, drive the portal, collect and publish new files, record
// completion. Soft failures skip the ledger so the address is retried
// next run; a fatal result tells the caller to abort the chunk.
func (o *Orchestrator) processAddress(ctx context.Context, rid [16]byte, addr string, sum *Summary) session.Outcome {
	started := o.clock.Now()
	sum.Attempted++
	o.emit(progress.Event{RunID: rid, TS: started, Stage: progress.StageAddrStart, Address: addr})

	before, err := o.watcher.Snapshot()
	if err != nil {
		o.logger.Warn("download dir snapshot failed", zap.String("address", addr), zap.Error(err))
		return o.addrDone(rid, addr, started, progress.ResultSoftFailure, false, sum, err)
	}

	outcome, err := o.driver.FetchOne(ctx, addr)
	switch outcome {
	case session.OutcomeFatal:
		o.logger.Error("session failed", zap.String("address", addr), zap.Error(err))
		return o.addrDone(rid, addr, started, progress.ResultSessionFatal, false, sum, err)
	case session.OutcomeSoft:
		o.logger.Warn("address skipped", zap.String("address", addr), zap.Error(err))
		return o.addrDone(rid, addr, started, progress.ResultSoftFailure, false, sum, err)
	}

	files, err := o.watcher.Collect(ctx, before, o.cfg.SettleWait)
	if err != nil {
		if ctx.Err() != nil {
			return o.addrDone(rid, addr, started, progress.ResultSessionFatal, false, sum, err)
		}
		o.logger.Warn("download collect failed", zap.String("address", addr), zap.Error(err))
		return o.addrDone(rid, addr, started, progress.ResultSoftFailure, false, sum, err)
	}

	archived := o.publishFiles(ctx, rid, addr, files, sum)

	// Completion is recorded regardless of publish outcome: the documents
	// were issued and sit in the download directory, and re-fetching the
	// address would duplicate remote objects. Upload failures stay visible
	// through the summary counts and the unset archived flag.
	if err := o.ledger.MarkDone(ctx, addr); err != nil {
		o.logger.Error("completion record failed", zap.String("address", addr), zap.Error(err))
		return o.addrDone(rid, addr, started, progress.ResultSoftFailure, archived, sum, err)
	}
	o.logger.Info("address archived", zap.String("address", addr), zap.Int("files", len(files)))
	return o.addrDone(rid, addr, started, progress.ResultSuccess, archived, sum, nil)
}

// publishFiles uploads each detected file under a run-date prefix and
// reports whether every document reached storage.
func (o *Orchestrator) publishFiles(ctx context.Context, rid [16]byte, addr string, files []string, sum *Summary) bool {
	if len(files) == 0 {
		o.logger.Warn("no downloads detected", zap.String("address", addr))
		return false
	}
	folder := o.clock.Now().Format("2006-01-02")
	archived := true
	for _, f := range files {
		object := path.Join(folder, filepath.Base(f))
		res, err := o.store.Upload(ctx, f, object)
		if err != nil {
			archived = false
			sum.UploadFailed++
			o.logger.Error("artifact upload failed",
				zap.String("address", addr),
				zap.String("object", object),
				zap.Error(err),
			)
			o.emit(progress.Event{
				RunID:    rid,
				TS:       o.clock.Now(),
				Stage:    progress.StageArtifactFailed,
				Address:  addr,
				Artifact: object,
				Note:     err.Error(),
			})
			continue
		}
		sum.Uploaded++
		o.logger.Info("artifact uploaded",
			zap.String("address", addr),
			zap.String("object", object),
			zap.String("uri", res.RemoteURI),
			zap.Int64("bytes", res.Bytes),
		)
		o.emit(progress.Event{
			RunID:    rid,
			TS:       o.clock.Now(),
			Stage:    progress.StageArtifactUploaded,
			Address:  addr,
			Artifact: object,
			Bytes:    res.Bytes,
		})
	}
	return archived
}

func (o *Orchestrator) addrDone(
	rid [16]byte,
	addr string,
	started time.Time,
	result progress.Result,
	archived bool,
	sum *Summary,
	cause error,
) session.Outcome {
	now := o.clock.Now()
	evt := progress.Event{
		RunID:    rid,
		TS:       now,
		Stage:    progress.StageAddrDone,
		Address:  addr,
		Result:   result,
		Archived: archived,
		Dur:      now.Sub(started),
	}
	if cause != nil {
		evt.Note = cause.Error()
	}
	o.emit(evt)

	switch result {
	case progress.ResultSuccess:
		sum.Succeeded++
		return session.OutcomeSuccess
	case progress.ResultSessionFatal:
		return session.OutcomeFatal
	default:
		sum.SoftFailed++
		return session.OutcomeSoft
	}
}

func (o *Orchestrator) finish(ctx context.Context, rid [16]byte, sum Summary, log *zap.Logger) (Summary, error) {
	sum.FinishedAt = o.clock.Now()
	dur := sum.FinishedAt.Sub(sum.StartedAt)
	o.emit(progress.Event{
		RunID:   rid,
		TS:      sum.FinishedAt,
		Stage:   progress.StageRunDone,
		Outcome: sum.Outcome,
		Dur:     dur,
	})

	log.Info("run finished",
		zap.String("outcome", sum.Outcome),
		zap.Int("planned", sum.Planned),
		zap.Int("attempted", sum.Attempted),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("soft_failed", sum.SoftFailed),
		zap.Int("aborted_remaining", sum.AbortedRemaining),
		zap.Int("uploaded", sum.Uploaded),
		zap.Int("upload_failed", sum.UploadFailed),
		zap.Duration("dur", dur),
	)

	// Aborted runs often arrive here with a dead context; the report is
	// still worth sending.
	pubCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
	}
	if err := o.notifier.Publish(pubCtx, sum.report()); err != nil {
		log.Error("run report publish failed", zap.Error(err))
	}
	return sum, nil
}

func (o *Orchestrator) fail(rid [16]byte, sum Summary, err error) (Summary, error) {
	sum.FinishedAt = o.clock.Now()
	o.emit(progress.Event{
		RunID: rid,
		TS:    sum.FinishedAt,
		Stage: progress.StageRunError,
		Dur:   sum.FinishedAt.Sub(sum.StartedAt),
		Note:  err.Error(),
	})
	return sum, err
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func (o *Orchestrator) closeDriver(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := o.driver.Close(ctx); err != nil {
		log.Warn("session close failed", zap.Error(err))
	}
}

// Pending returns worklist entries absent from the ledger, preserving
// order and dropping within-run duplicates so an address is attempted and
// recorded at most once per run.
func Pending(worklist []string, done map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(worklist))
	out := make([]string, 0, len(worklist))
	for _, addr := range worklist {
		key := address.Normalize(addr)
		if _, ok := done[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
