package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/app"
	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/ledger"
	"github.com/seumter-tools/registry-archiver/internal/logging"
	"github.com/seumter-tools/registry-archiver/internal/notify"
	"github.com/seumter-tools/registry-archiver/internal/progress"
	"github.com/seumter-tools/registry-archiver/internal/progress/sinks"
	"github.com/seumter-tools/registry-archiver/internal/source"
	"github.com/seumter-tools/registry-archiver/internal/storage"
	pkgconfig "github.com/seumter-tools/registry-archiver/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the service container interface that commands use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetSource() source.Provider
	GetLedger() ledger.Provider
	GetStorage() storage.Provider
	GetNotifier() notify.Provider
	GetEmitter() progress.Emitter
	GetTracker() *sinks.TrackerSink
	GetRegistry() *prometheus.Registry
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.NewApp(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry-archiver",
		Short: "Chunked, resumable document archiver for the 세움터 building registry portal.",
		Long: `registry-archiver works through an address worklist against the Korean
building registry portal (세움터). Each run logs in, processes at most one
chunk of not-yet-archived addresses, uploads the issued documents to the
configured storage backend, and records completions in a durable ledger so
the next run picks up where this one stopped.`,

		// This hook runs AFTER config is loaded but BEFORE the subcommand's
		// RunE. This is the perfect place to build and inject the application.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromGlobal()
			if err != nil {
				return err
			}

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			// Store the app instance in the context for subcommands to use.
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	// Initialize Viper configuration once flags are parsed.
	cobra.OnInitialize(func() { pkgconfig.InitConfig(cfgFile) })

	// Define persistent flags.
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ., /etc/registry-archiver, $HOME/.registry-archiver)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// Initialize the logger once at the very start.
	logging.InitLogger()

	// A signal cancels the command context; the run notices, records what it
	// finished, and reports the rest as aborted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
