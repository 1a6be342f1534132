package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seumter-tools/registry-archiver/internal/app"
	"github.com/seumter-tools/registry-archiver/internal/config"
	"github.com/seumter-tools/registry-archiver/internal/crawl"
	"github.com/seumter-tools/registry-archiver/internal/logging"
)

// newStatusCmd creates the 'status' subcommand, a read-only report of how
// far the worklist has progressed.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report worklist progress without touching the portal",
		Long: `Reads the worklist and the completion ledger and reports how many
addresses are archived, how many remain, and which addresses the next run
would attempt. No browser is launched and nothing is modified.`,

		// The full service container stands up storage and notification
		// clients; a read-only query needs neither. Defining our own hook
		// keeps the root one from running.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return nil },

		RunE: runStatusCommand,
	}
	return cmd
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromGlobal()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	src, err := app.BuildSource(cfg)
	if err != nil {
		return err
	}
	worklist, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load worklist: %w", err)
	}

	ledg, err := app.BuildLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ledg.Close(); cerr != nil {
			logging.L.Warn("ledger close failed", zap.Error(cerr))
		}
	}()

	done, err := ledg.Completed(ctx)
	if err != nil {
		return fmt.Errorf("load completion ledger: %w", err)
	}

	remaining := crawl.Pending(worklist, done)

	chunk := cfg.Crawl.ChunkSize
	if chunk <= 0 {
		chunk = 50
	}
	if len(remaining) < chunk {
		chunk = len(remaining)
	}

	cmd.Printf("worklist: %d addresses\n", len(worklist))
	cmd.Printf("archived: %d\n", len(worklist)-len(remaining))
	cmd.Printf("remaining: %d\n", len(remaining))
	if chunk > 0 {
		cmd.Printf("next run would attempt %d:\n", chunk)
		for _, addr := range remaining[:chunk] {
			cmd.Printf("  %s\n", addr)
		}
	}
	return nil
}
