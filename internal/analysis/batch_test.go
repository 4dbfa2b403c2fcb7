package analysis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// funcAnalyzer adapts a function to the Analyzer interface.
type funcAnalyzer func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)

func (f funcAnalyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	return f(ctx, req)
}

func echoAnalyzer(calls *atomic.Int32) funcAnalyzer {
	return func(_ context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
		calls.Add(1)
		return &model.AnalysisResult{Request: req, Status: model.StatusCompleted}, nil
	}
}

func requests(urls ...string) []model.AnalysisRequest {
	reqs := make([]model.AnalysisRequest, len(urls))
	for i, u := range urls {
		reqs[i] = model.AnalysisRequest{URL: u}
	}
	return reqs
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(echoAnalyzer(&calls))
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithBatchConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(echoAnalyzer(&calls), WithBatchConcurrency(7))
		if bp.concurrency != 7 {
			t.Errorf("expected concurrency 7, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency and nil logger", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(echoAnalyzer(&calls), WithBatchConcurrency(0), WithBatchLogger(nil))
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("expected default concurrency, got %d", bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes every request in order", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		bp := NewBatchProcessor(echoAnalyzer(&calls))

		urls := []string{"https://a.example", "https://b.example", "https://c.example"}
		items, err := bp.ProcessBatch(context.Background(), requests(urls...))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
		for i, item := range items {
			if item.Result == nil || item.Result.Request.URL != urls[i] {
				t.Errorf("item %d = %+v, want result for %s", i, item, urls[i])
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		var mu sync.Mutex
		analyzer := funcAnalyzer(func(_ context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
			n := current.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return &model.AnalysisResult{Request: req}, nil
		})

		bp := NewBatchProcessor(analyzer, WithBatchConcurrency(2))
		if _, err := bp.ProcessBatch(context.Background(), requests("1", "2", "3", "4", "5", "6")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent requests, got %d", peak.Load())
		}
	})

	t.Run("continues after a rejected request", func(t *testing.T) {
		t.Parallel()

		rejected := &model.ValidationError{Rule: model.RuleBlockedDomain}
		analyzer := funcAnalyzer(func(_ context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
			if req.URL == "bad" {
				return nil, rejected
			}
			return &model.AnalysisResult{Request: req}, nil
		})

		items, err := NewBatchProcessor(analyzer).ProcessBatch(context.Background(), requests("good", "bad", "good"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !errors.Is(items[1].Err, rejected) || items[1].Result != nil {
			t.Errorf("expected item 1 to carry the rejection, got %+v", items[1])
		}
		if items[0].Result == nil || items[2].Result == nil {
			t.Error("expected other requests to succeed")
		}
	})

	t.Run("reports when every request fails", func(t *testing.T) {
		t.Parallel()

		analyzer := funcAnalyzer(func(context.Context, model.AnalysisRequest) (*model.AnalysisResult, error) {
			return nil, &model.RateLimitError{ClientID: "c", Limit: 1}
		})

		items, err := NewBatchProcessor(analyzer).ProcessBatch(context.Background(), requests("a", "b"))
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("expected ErrAllFailed, got %v", err)
		}
		if len(items) != 2 {
			t.Errorf("expected 2 items, got %d", len(items))
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		items, err := NewBatchProcessor(echoAnalyzer(&calls)).ProcessBatch(context.Background(), nil)
		if err != nil || len(items) != 0 {
			t.Errorf("expected no items and no error, got %d, %v", len(items), err)
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls atomic.Int32
		items, err := NewBatchProcessor(echoAnalyzer(&calls)).ProcessBatch(ctx, requests("a", "b", "c"))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no analyses after cancellation, got %d", calls.Load())
		}
		for i, item := range items {
			if !errors.Is(item.Err, context.Canceled) {
				t.Errorf("item %d error = %v", i, item.Err)
			}
		}
	})
}

func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	bp := NewBatchProcessor(echoAnalyzer(&calls))

	var mu sync.Mutex
	seen := make(map[int]string)
	err := bp.ProcessBatchWithCallback(context.Background(), requests("a", "b", "c"), func(item BatchItem, index int) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = item.Result.Request.URL
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]string{0: "a", 1: "b", 2: "c"}
	for i, u := range want {
		if seen[i] != u {
			t.Errorf("callback for index %d got %q, want %q", i, seen[i], u)
		}
	}
}
