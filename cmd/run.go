// Package cmd defines and implements the CLI commands for the registry-archiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/api"
	"github.com/seumter-tools/registry-archiver/internal/clock/system"
	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/crawl"
	idgen "github.com/seumter-tools/registry-archiver/internal/id/uuid"
	"github.com/seumter-tools/registry-archiver/internal/preflight"
	"github.com/seumter-tools/registry-archiver/internal/session"
	"github.com/seumter-tools/registry-archiver/internal/watcher"
)

// newRunCmd creates and configures the 'run' subcommand, which executes one
// archive chunk against the portal.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive one chunk of pending addresses",
		Long: `Loads the address worklist, subtracts the addresses already recorded in
the completion ledger, and works through at most one chunk of the rest:
log in to the portal, search each address, trigger the document download,
upload what arrived to storage, and record the completion. Addresses that
fail softly stay pending and are retried on the next run.`,

		RunE: runArchiveCommand,
	}
	return cmd
}

func runArchiveCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	if cfg.Preflight.Enabled {
		res, err := preflight.New(cfg.PreflightTimeout(), "").Check(ctx, cfg.Portal.URL)
		if err != nil {
			return fmt.Errorf("portal preflight: %w", err)
		}
		logger.Info("portal reachable",
			zap.Int("status", res.StatusCode),
			zap.Duration("latency", res.Duration),
		)
	}

	watch := watcher.New(cfg.Browser.DownloadDir)
	if err := watch.Ensure(); err != nil {
		return fmt.Errorf("prepare download dir: %w", err)
	}

	driver := session.NewDriver(sessionConfig(cfg), logger.Named("session"))

	if cfg.Server.Enabled {
		stopServer := startStatusServer(appInstance, cfg.Server.Port)
		defer stopServer()
	}

	orch := crawl.New(
		appInstance.GetSource(),
		appInstance.GetLedger(),
		driver,
		watch,
		appInstance.GetStorage(),
		appInstance.GetNotifier(),
		appInstance.GetEmitter(),
		system.New(),
		idgen.New(),
		crawl.Config{
			ChunkSize:    cfg.Crawl.ChunkSize,
			SettleWait:   cfg.SettleWait(),
			AddressDelay: cfg.AddressDelay(),
		},
		logger.Named("crawl"),
	)

	summary, runErr := orch.Run(ctx)

	// The summary and metrics describe whatever did happen, so they are
	// written even when the run errored out.
	writeMetricsTextfile(cfg.Metrics.Textfile, appInstance.GetRegistry(), logger)
	printSummary(cmd, summary)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("archive run: %w", runErr)
	}
	if summary.Outcome == crawl.OutcomeAborted {
		return fmt.Errorf("run aborted with %d of %d planned addresses not attempted",
			summary.AbortedRemaining, summary.Planned)
	}
	return nil
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		PortalURL:     cfg.Portal.URL,
		Username:      cfg.Portal.Username,
		Password:      cfg.Portal.Password,
		DocTab:        cfg.Portal.DocTab,
		DownloadXPath: cfg.Portal.DownloadXPath,
		StepWait:      cfg.StepWait(),
		Headless:      cfg.Browser.Headless,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		DownloadDir:   cfg.Browser.DownloadDir,
		ScreenshotDir: cfg.Crawl.ScreenshotDir,
		Unattended:    cfg.Crawl.Unattended,
		// An attended, visible session stays open after the run so the
		// operator can inspect where the portal flow ended up.
		KeepOpen: !cfg.Browser.Headless && !cfg.Crawl.Unattended,
	}
}

// startStatusServer serves /healthz, /progress, and /metrics while the run
// is in flight. It returns a function that shuts the server down.
func startStatusServer(appInstance App, port int) func() {
	logger := appInstance.GetLogger().Named("api")
	apiServer := api.NewServer(appInstance.GetTracker(), appInstance.GetRegistry(), logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", zap.Error(err))
		}
	}
}

// writeMetricsTextfile exports run metrics for the node_exporter textfile
// collector. A batch process is gone before Prometheus can scrape it; the
// textfile survives the exit.
func writeMetricsTextfile(path string, reg *prometheus.Registry, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		logger.Warn("metrics textfile write failed", zap.String("path", path), zap.Error(err))
	}
}

func printSummary(cmd *cobra.Command, s crawl.Summary) {
	cmd.Printf("run %s finished: %s\n", s.RunID, s.Outcome)
	cmd.Printf("  worklist: %d addresses, %d already archived, %d planned this chunk\n",
		s.TotalAddresses, s.AlreadyDone, s.Planned)
	cmd.Printf("  attempted %d: %d succeeded, %d soft failures\n",
		s.Attempted, s.Succeeded, s.SoftFailed)
	if s.AbortedRemaining > 0 {
		cmd.Printf("  not attempted: %d\n", s.AbortedRemaining)
	}
	cmd.Printf("  uploads: %d ok, %d failed\n", s.Uploaded, s.UploadFailed)
}
