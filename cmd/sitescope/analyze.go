package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitescope/internal/analysis"
	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/database"
	"github.com/nao1215/sitescope/internal/log"
	"github.com/nao1215/sitescope/internal/metrics"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/provider"
	"github.com/nao1215/sitescope/internal/report"
)

// errRejected is returned when at least one URL was refused.
var errRejected = errors.New("requests rejected")

// analyzeOptions holds the per-invocation settings that are not part of Config.
type analyzeOptions struct {
	quick       bool
	steps       []string
	shape       model.Shape
	client      string
	noCache     bool
	metricsAddr string
	content     string
}

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [url...]",
		Short: "Analyze one or more web pages",
		Long: `Analyze fetches each URL and runs the analysis steps on it.

Steps:
- classify:  site type, industry and audience
- summary:   short summary with key points
- ux_review: UX score and recommendations
- design:    design score and advice

A full analysis runs every step; --quick runs classify and summary only.
Completed results are cached, so repeating a request is served instantly.
Results are also saved to the local database for 'sitescope history'.

Examples:
  # Analyze a single page
  sitescope analyze https://example.com

  # Quick analysis of several pages, four at a time
  sitescope analyze --quick --batch 4 https://a.example https://b.example

  # Run chosen steps and write a Markdown report
  sitescope analyze --steps classify,ux_review -f markdown -o report.md https://example.com

  # Print a compact JSON summary and expose Prometheus metrics
  sitescope analyze -f json --shape summary --metrics-addr :9090 https://example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	// Step selection flags
	cmd.Flags().BoolP("quick", "q", false,
		"Run the quick step set (classify, summary)")
	cmd.Flags().StringSliceP("steps", "s", nil,
		"Run exactly these steps, in this order (dependencies are added)")

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Deadline for each analysis")
	cmd.Flags().String("client", "",
		"Client identity for rate limiting")
	cmd.Flags().Bool("no-cache", false,
		"Neither read nor write the result cache")
	cmd.Flags().String("content-file", "",
		"Analyze text from this file instead of fetching the page (single URL only)")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent analyses")

	// Report flags
	cmd.Flags().StringP("format", "f", "text",
		"Report format: text, json or markdown")
	cmd.Flags().String("shape", string(model.ShapeJSON),
		"Report shape: json (complete), summary or detailed")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Persistence and observability flags
	cmd.Flags().Bool("no-save", false,
		"Do not save results to the local database")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9090) while running")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Cancel in-flight analyses on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := provider.NewOpenAI(cfg.Provider, provider.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("%w (set OPENAI_API_KEY or provider.api_key)", err)
	}

	return runAnalyze(ctx, cfg, opts, p, cmd.OutOrStdout(), logger)
}

// flagString reads a string flag from the command or the root's persistent flags.
func flagString(cmd *cobra.Command, name string) string {
	if v, err := cmd.Flags().GetString(name); err == nil {
		return v
	}
	if v, err := cmd.Root().PersistentFlags().GetString(name); err == nil {
		return v
	}
	return ""
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig loads the configuration file named by --config, or the first
// one found in the default locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagString(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// buildConfig creates a Config from the configuration file and the flags.
// Flags override the file only when given explicitly.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, analyzeOptions, error) {
	var opts analyzeOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}
	flags := cmd.Flags()

	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return nil, opts, err
		}
	}
	if cfg.ReportFormat, err = flags.GetString("format"); err != nil {
		return nil, opts, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, opts, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, opts, err
	}
	switch {
	case noSave:
		cfg.DBDir = ""
	case cfg.DBDir == "":
		cfg.DBDir = config.XDGDataDir()
	}

	if opts.quick, err = flags.GetBool("quick"); err != nil {
		return nil, opts, err
	}
	if opts.steps, err = flags.GetStringSlice("steps"); err != nil {
		return nil, opts, err
	}
	if opts.quick && len(opts.steps) > 0 {
		return nil, opts, errors.New("--quick and --steps are mutually exclusive")
	}

	shape, err := flags.GetString("shape")
	if err != nil {
		return nil, opts, err
	}
	if opts.shape, err = model.ParseShape(shape); err != nil {
		return nil, opts, err
	}

	if opts.client, err = flags.GetString("client"); err != nil {
		return nil, opts, err
	}
	if opts.noCache, err = flags.GetBool("no-cache"); err != nil {
		return nil, opts, err
	}
	if opts.metricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, opts, err
	}

	contentFile, err := flags.GetString("content-file")
	if err != nil {
		return nil, opts, err
	}
	if contentFile != "" {
		if len(args) != 1 {
			return nil, opts, errors.New("--content-file requires exactly one URL")
		}
		data, err := os.ReadFile(contentFile) //nolint:gosec // User-provided path is intentional
		if err != nil {
			return nil, opts, fmt.Errorf("failed to read content file: %w", err)
		}
		opts.content = string(data)
	}

	cfg.Targets = args
	return cfg, opts, nil
}

// buildRequests creates one request per target.
func buildRequests(cfg *config.Config, opts analyzeOptions) []model.AnalysisRequest {
	depth := model.DepthFull
	if opts.quick {
		depth = model.DepthQuick
	}

	reqs := make([]model.AnalysisRequest, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		reqs = append(reqs, model.AnalysisRequest{
			URL:      target,
			Depth:    depth,
			Steps:    opts.steps,
			Shape:    opts.shape,
			ClientID: opts.client,
			Content:  opts.content,
			NoCache:  opts.noCache,
			Timeout:  cfg.Timeout,
		})
	}
	return reqs
}

// runAnalyze analyzes every target with p and writes the reports.
func runAnalyze(ctx context.Context, cfg *config.Config, opts analyzeOptions, p provider.Provider, stdout io.Writer, logger *slog.Logger) error {
	m := metrics.New()
	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, m, logger)
		defer shutdown()
	}

	var extra []analysis.Option
	if cfg.DBDir != "" {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
		extra = append(extra, analysis.WithSink(db))
	}

	svc, err := analysis.NewFromConfig(cfg, p, m, logger, extra...)
	if err != nil {
		return fmt.Errorf("failed to set up analysis: %w", err)
	}
	defer svc.Close()

	output, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := report.New(cfg.ReportFormat, output, opts.shape, getVersion())

	reqs := buildRequests(cfg, opts)
	var (
		mu       sync.Mutex
		rejected []error
	)
	handle := func(item analysis.BatchItem) {
		mu.Lock()
		defer mu.Unlock()

		if item.Err != nil {
			rejected = append(rejected, fmt.Errorf("%s: %w", item.Request.URL, item.Err))
			return
		}
		if _, err := writer.Write(item.Result); err != nil {
			logger.Error("report failed", "url", item.Result.Request.URL, "error", err)
		}
	}

	start := time.Now()
	if len(reqs) > 1 && cfg.BatchSize > 1 {
		bp := analysis.NewBatchProcessor(svc,
			analysis.WithBatchConcurrency(cfg.BatchSize),
			analysis.WithBatchLogger(logger),
		)
		err = bp.ProcessBatchWithCallback(ctx, reqs, func(item analysis.BatchItem, _ int) {
			handle(item)
		})
	} else {
		for _, req := range reqs {
			if err = ctx.Err(); err != nil {
				break
			}
			result, aerr := svc.Analyze(ctx, req)
			handle(analysis.BatchItem{Request: req, Result: result, Err: aerr})
		}
	}
	logger.Info("analysis complete", "targets", len(reqs), "elapsed", time.Since(start))
	if err != nil {
		return err
	}

	if len(rejected) > 0 {
		return fmt.Errorf("%w: %d of %d\n%w", errRejected, len(rejected), len(reqs), errors.Join(rejected...))
	}
	return nil
}

// openOutput returns the report destination. The close function is always
// safe to call.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	// Create directories if they don't exist
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain cookies echoed by pages; keep them owner-readable.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// serveMetrics serves m on addr until the returned function is called.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) //nolint:errcheck // Best effort on exit
	}
}
