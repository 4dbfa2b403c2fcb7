package analysis

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitescope/internal/model"
)

// Analyzer runs one request. *Service satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)
}

// DefaultBatchConcurrency is the number of requests run at once when no
// concurrency is configured.
const DefaultBatchConcurrency = 4

// BatchItem is the outcome of one request in a batch. Exactly one of
// Result and Err is set.
type BatchItem struct {
	Request model.AnalysisRequest
	Result  *model.AnalysisResult
	Err     error
}

// BatchProcessor runs many requests concurrently.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Service because:
// 1. It keeps the Service focused on single-request execution
// 2. The rate limiter still sees every request individually
// 3. Results can be streamed to the caller as they complete
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
// A nil logger keeps the default.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBatchConcurrency sets the maximum number of concurrent requests.
// Non-positive values are ignored.
func WithBatchConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor running requests on analyzer.
func NewBatchProcessor(analyzer Analyzer, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		analyzer:    analyzer,
		concurrency: DefaultBatchConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// ProcessBatch runs every request and returns one item per request in
// input order.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
//
// A rejected request does not stop the batch. The returned error is the
// context error when the batch was cancelled, or ErrAllFailed when no
// request produced a result.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, reqs []model.AnalysisRequest) ([]BatchItem, error) {
	items := make([]BatchItem, len(reqs))
	err := bp.ProcessBatchWithCallback(ctx, reqs, func(item BatchItem, index int) {
		items[index] = item
	})
	if err != nil {
		return items, err
	}

	for _, item := range items {
		if item.Result != nil {
			return items, nil
		}
	}
	if len(items) > 0 {
		return items, ErrAllFailed
	}
	return items, nil
}

// ProcessBatchWithCallback runs every request and calls callback with each
// outcome as it completes, along with the request's index. The callback is
// called from the goroutine that ran the request, so it must be safe for
// concurrent use unless every call writes a distinct index.
// Requests not started before ctx ends are reported with the context error.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	reqs []model.AnalysisRequest,
	callback func(item BatchItem, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_requests", len(reqs),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			item := BatchItem{Request: req}
			if err := ctx.Err(); err != nil {
				item.Err = err
				failed.Add(1)
				callback(item, i)
				return nil
			}

			bp.logger.Debug("analyzing", "url", req.URL, "index", i+1, "total", len(reqs))
			item.Result, item.Err = bp.analyzer.Analyze(ctx, req)
			if item.Err != nil {
				failed.Add(1)
				bp.logger.Warn("request rejected", "url", req.URL, "error", item.Err)
			}
			callback(item, i)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	bp.logger.Info("batch processing complete",
		"total_requests", len(reqs),
		"rejected", failed.Load(),
		"elapsed", time.Since(start),
	)
	return ctx.Err()
}
