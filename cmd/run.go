package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yonagi/mailharvest/internal/extract"
	"github.com/yonagi/mailharvest/internal/gmail"
	"github.com/yonagi/mailharvest/internal/google"
	"github.com/yonagi/mailharvest/internal/instrumentation"
	"github.com/yonagi/mailharvest/internal/logging"
	"github.com/yonagi/mailharvest/internal/store"
)

// runFlags is the flag surface shared by run and the per-stage commands.
type runFlags struct {
	query         string
	outputDir     string
	clean         bool
	logLevel      string
	logFormat     string
	metricsListen string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.query, "query", "",
		fmt.Sprintf("Gmail search query (default: %q)", extract.DefaultQuery))
	cmd.Flags().StringVar(&f.outputDir, "output-dir", ".cache",
		"Root directory for the per-sender attachment tree")
	cmd.Flags().BoolVar(&f.clean, "clean", false,
		"Remove the output root before extraction")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text",
		"Log format (text, json)")
	cmd.Flags().StringVar(&f.metricsListen, "metrics-listen", "",
		"Address to serve Prometheus metrics on (empty: disabled)")
}

func (f *runFlags) options() extract.Options {
	return extract.Options{
		OutputDir: f.outputDir,
		Query:     f.query,
		Clean:     f.clean,
	}
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	var stages []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the attachment pipeline",
		Long: `Run the pipeline stages in order: extract attachments from matching
messages, delete files matching the exclusion set, then prune empty
directories. Use --stages to run a subset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd.Context(), &flags, stages)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&stages, "stages", extract.StageOrder,
		"Stages to run, in order")
	return cmd
}

// newStageCmd builds a subcommand that runs exactly one pipeline stage.
func newStageCmd(stage, short string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   stage,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd.Context(), &flags, []string{stage})
		},
	}

	flags.register(cmd)
	return cmd
}

func runStages(ctx context.Context, flags *runFlags, stages []string) error {
	logging.Setup(flags.logLevel, flags.logFormat)
	logger := slog.Default()

	provider, err := instrumentation.NewProvider(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to set up instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	if flags.metricsListen != "" {
		go serveMetrics(logger, flags.metricsListen)
	}

	pipeline, err := buildPipeline(ctx, logger, provider.Metrics())
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := pipeline.Run(ctx, stages, flags.options())
	if err != nil {
		return err
	}

	logger.Info("run complete",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("messages", stats.Messages),
		slog.Int("written", stats.Written),
		slog.Int("excluded", stats.Excluded),
		slog.Int("unsafe_paths", stats.UnsafePaths),
		slog.Int("write_errors", stats.WriteErrors),
		slog.Int("files_removed", stats.FilesRemoved),
		slog.Int("dirs_removed", stats.DirsRemoved),
	)
	return nil
}

// buildPipeline wires the credential manager, Gmail client, local store
// and exclusion filter into a ready pipeline.
func buildPipeline(ctx context.Context, logger *slog.Logger, metrics *instrumentation.Metrics) (*extract.Pipeline, error) {
	mgr := google.NewManager(google.DefaultConfig())
	httpClient, err := mgr.HTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain Google credentials (run 'mailharvest auth' first): %w", err)
	}

	client, err := gmail.NewClient(ctx, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}

	filter := extract.NewExclusionFilter(extract.DefaultExclusions())
	return extract.NewPipeline(client, store.NewLocal(), filter, logger, metrics), nil
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", logging.Err(err))
	}
}
