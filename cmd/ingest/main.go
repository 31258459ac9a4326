package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/assetlens/internal/app"
	"github.com/timmy/assetlens/internal/config"
	"github.com/timmy/assetlens/internal/logger"
	"github.com/timmy/assetlens/internal/service"
	"github.com/timmy/assetlens/internal/source"
	"github.com/timmy/assetlens/internal/source/localdir"
	"github.com/timmy/assetlens/internal/source/staging"
)

var (
	flagConfig    string
	flagSource    string
	flagPath      string
	flagStagingID string
	flagWorkspace string
	flagLimit     int
	flagForce     bool
)

var rootCmd = &cobra.Command{
	Use:          "ingest",
	Short:        "Bulk-analyze and index images, and maintain the asset index",
	SilenceUsage: true,
	Long: `ingest runs every image of a source through moderation, description and
embedding, then indexes the safe, described ones for semantic search.`,
	RunE: runIngest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file")

	rootCmd.Flags().StringVar(&flagSource, "source", "localdir", "Source type: localdir or staging")
	rootCmd.Flags().StringVar(&flagPath, "path", ".", "Image directory (localdir) or staging base path (staging)")
	rootCmd.Flags().StringVar(&flagStagingID, "staging-id", "", "Staging source id below --path")
	rootCmd.Flags().StringVar(&flagWorkspace, "workspace", "", "Workspace assigned to localdir items")
	rootCmd.Flags().IntVar(&flagLimit, "limit", 100, "Maximum number of items to ingest (0 for no limit)")
	rootCmd.Flags().BoolVar(&flagForce, "force", false, "Re-index assets the ledger already knows")
}

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)

	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// buildApp loads configuration and wires the pipeline.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return app.Build(probeCtx, cfg, logger.GetDefault())
}

func newSource(kind string) (source.Source, error) {
	switch kind {
	case "localdir":
		return localdir.NewAdapter(flagPath, flagWorkspace), nil
	case "staging":
		if flagStagingID == "" {
			return nil, fmt.Errorf("--staging-id is required for the staging source")
		}
		return staging.NewAdapter(flagPath, flagStagingID), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", kind)
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	src, err := newSource(flagSource)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	log := logger.GetDefault()
	log.WithFields(logger.Fields{
		logger.FieldSource: src.GetDisplayName(),
		"limit":            flagLimit,
		"force":            flagForce,
	}).Info("Starting ingestion")

	stats, err := pipeline.Ingest.IngestFromSource(ctx, src, flagLimit, &service.IngestOptions{
		Force: flagForce,
	})
	if err != nil && stats == nil {
		return fmt.Errorf("failed to ingest from source: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"job %s: total=%d indexed=%d skipped=%d unsafe=%d undescribed=%d failed=%d (%s)\n",
		stats.JobID, stats.TotalItems, stats.Indexed, stats.Skipped, stats.Unsafe,
		stats.Undescribed, stats.Failed, stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("ingestion stopped early: %w", err)
	}
	return nil
}
