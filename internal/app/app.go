// Package app initializes and holds the long-lived services an archive run
// needs, acting as the dependency injection container for the CLI. The
// container is built once per invocation, handed to the command through its
// context, and closed after the command finishes.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/ledger"
	"github.com/seumter-tools/registry-archiver/internal/logging"
	"github.com/seumter-tools/registry-archiver/internal/notify"
	"github.com/seumter-tools/registry-archiver/internal/progress"
	"github.com/seumter-tools/registry-archiver/internal/progress/sinks"
	"github.com/seumter-tools/registry-archiver/internal/source"
	"github.com/seumter-tools/registry-archiver/internal/storage"
)

const closeTimeout = 10 * time.Second

// App holds the shared, long-lived services for the archiver: the logger,
// the worklist source, the completion ledger, the artifact storage, the
// run-report notifier, and the progress pipeline.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	source    source.Provider
	ledger    ledger.Provider
	store     storage.Provider
	notifier  notify.Provider
	hub       *progress.Hub
	tracker   *sinks.TrackerSink
	registry  *prometheus.Registry
	gcsClient *cloudstorage.Client
	closeOnce sync.Once
}

// GetConfig returns the validated configuration the App was built from.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetSource returns the address worklist provider.
func (a *App) GetSource() source.Provider { return a.source }

// GetLedger returns the durable completion ledger.
func (a *App) GetLedger() ledger.Provider { return a.ledger }

// GetStorage returns the configured artifact destination.
func (a *App) GetStorage() storage.Provider { return a.store }

// GetNotifier returns the run-report publisher.
func (a *App) GetNotifier() notify.Provider { return a.notifier }

// GetEmitter returns the progress hub for run milestone events.
func (a *App) GetEmitter() progress.Emitter { return a.hub }

// GetTracker returns the in-memory run snapshot behind the status endpoint.
func (a *App) GetTracker() *sinks.TrackerSink { return a.tracker }

// GetRegistry returns the private Prometheus registry run metrics land in.
func (a *App) GetRegistry() *prometheus.Registry { return a.registry }

// NewApp creates and initializes the service container from the
// configuration. It is the central point for service initialization and
// fails fast when any critical service cannot be built, so a misconfigured
// run dies before the browser ever launches.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.NewRotating(cfg.Logging.File, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logging.L = logger

	logger.Info("initializing services",
		zap.String("source", cfg.Source.Provider),
		zap.String("ledger", cfg.Ledger.Provider),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)

	a := &App{cfg: cfg, logger: logger}

	if a.source, err = BuildSource(cfg); err != nil {
		return nil, err
	}
	if a.ledger, err = BuildLedger(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	if err = a.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = a.setupNotifier(ctx); err != nil {
		return nil, err
	}
	if err = a.setupProgress(ctx); err != nil {
		return nil, err
	}

	logger.Info("services initialized")
	return a, nil
}

// BuildSource constructs the worklist provider for the configuration. It
// is exported separately from NewApp so inspection commands can read the
// worklist without standing up storage or notification clients.
func BuildSource(cfg config.Config) (source.Provider, error) {
	switch cfg.Source.Provider {
	case "excel":
		return source.NewExcelProvider(cfg.Source.Path, cfg.Source.Sheet, cfg.Source.Column), nil
	default:
		return nil, fmt.Errorf("unknown source provider: %s", cfg.Source.Provider)
	}
}

// BuildLedger constructs the completion ledger for the configuration.
func BuildLedger(ctx context.Context, cfg config.Config) (ledger.Provider, error) {
	switch cfg.Ledger.Provider {
	case "file":
		return ledger.NewFileProvider(cfg.Ledger.Path)
	case "postgres":
		return ledger.NewPostgresProvider(ctx, cfg.Ledger.DSN, ledger.PgxConnector{})
	case "memory":
		return ledger.NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown ledger provider: %s", cfg.Ledger.Provider)
	}
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "gcs":
		p, err := storage.NewGCSProvider(
			ctx,
			a.cfg.Storage.GCS.BucketName,
			a.cfg.Storage.GCS.Prefix,
			a.cfg.Storage.CredentialsJSON,
		)
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.store = p
		a.gcsClient = p.Client
		a.logger.Info("using GCS storage", zap.String("bucket", a.cfg.Storage.GCS.BucketName))
	case "local":
		p, err := storage.NewLocalProvider(a.cfg.Storage.Local.BaseDir)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.store = p
		a.logger.Info("using local storage", zap.String("dir", a.cfg.Storage.Local.BaseDir))
	case "noop":
		a.store = &storage.NoOpProvider{}
		a.logger.Info("uploads disabled, documents stay in the download directory")
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) setupNotifier(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case "pubsub":
		p, err := notify.NewPubSubProvider(ctx, a.cfg.Notify.GCP.ProjectID, a.cfg.Notify.GCP.TopicID)
		if err != nil {
			return fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.notifier = p
		a.logger.Info("publishing run reports to Pub/Sub", zap.String("topic", a.cfg.Notify.GCP.TopicID))
	case "noop":
		a.notifier = &notify.NoOpProvider{}
	default:
		return fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("register run metrics: %w", err)
	}
	a.tracker = sinks.NewTrackerSink()
	a.hub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress_hub"),
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink, a.tracker)
	return nil
}

// Close gracefully shuts down all services in the container. It is safe to
// call more than once; the shutdown runs a single time.
func (a *App) Close() {
	a.closeOnce.Do(a.closeServices)
}

func (a *App) closeServices() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("ledger close failed", zap.Error(err))
		}
	}
	a.logger.Info("services shut down")

	// Flush buffered log entries last; everything above may still log.
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
}
