package database

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *ResultDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult(id, url string, created time.Time, cacheHit bool, steps ...model.StepResult) *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:        id,
		Request:   model.AnalysisRequest{URL: url, Depth: model.DepthFull},
		Steps:     steps,
		Status:    model.Overall(steps),
		CacheHit:  cacheHit,
		CreatedAt: created,
		Duration:  1500 * time.Millisecond,
	}
}

func ok(name string, d time.Duration) model.StepResult {
	return model.StepResult{Name: name, Status: model.StepSucceeded, Payload: json.RawMessage(`{"ok":true}`), Attempts: 1, Duration: d}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("path = %s", db.Path())
		}
		if err := db.Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
	})

	t.Run("CreateIfNotExists=false requires existing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := db.SaveResult(context.Background(), sampleResult("r1", "https://example.com", time.Now(), false)); err != nil {
			t.Fatalf("save: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer db.Close()
		if n, _ := db.CountResults(context.Background()); n != 1 {
			t.Errorf("expected 1 result after reopen, got %d", n)
		}
	})
}

func TestSaveAndGetResult(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleResult("r1", "https://example.com", base, false, ok("classify", time.Second))
	second := sampleResult("r2", "https://example.com", base.Add(time.Minute), true, ok("classify", time.Second))
	other := sampleResult("r3", "https://other.example", base, false, ok("classify", time.Second))
	for _, r := range []*model.AnalysisResult{first, second, other} {
		if err := db.SaveResult(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}

	t.Run("by id", func(t *testing.T) {
		got, err := db.ResultByID(ctx, "r1")
		if err != nil || got == nil {
			t.Fatalf("ResultByID: %v %v", got, err)
		}
		if got.Request.URL != "https://example.com" || len(got.Steps) != 1 || string(got.Steps[0].Payload) != `{"ok":true}` {
			t.Errorf("result = %+v", got)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		got, err := db.ResultByID(ctx, "nope")
		if err != nil || got != nil {
			t.Errorf("expected nil, nil; got %v, %v", got, err)
		}
	})

	t.Run("latest", func(t *testing.T) {
		got, err := db.LatestResult(ctx, "https://example.com")
		if err != nil || got == nil || got.ID != "r2" {
			t.Fatalf("latest = %+v, %v", got, err)
		}
	})

	t.Run("history newest first", func(t *testing.T) {
		hist, err := db.History(ctx, "https://example.com", 0)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != 2 || hist[0].ID != "r2" || !hist[0].CacheHit || hist[1].ID != "r1" {
			t.Fatalf("history = %+v", hist)
		}
		if !hist[1].CreatedAt.Equal(base) || hist[1].Duration != 1500*time.Millisecond {
			t.Errorf("metadata = %+v", hist[1])
		}
		if len(hist[1].Steps) != 1 || hist[1].Steps[0] != "classify" || hist[1].Status != model.StatusCompleted {
			t.Errorf("metadata = %+v", hist[1])
		}
	})

	t.Run("history limit and all urls", func(t *testing.T) {
		hist, err := db.History(ctx, "", 2)
		if err != nil || len(hist) != 2 {
			t.Fatalf("history = %+v, %v", hist, err)
		}
	})

	t.Run("list urls", func(t *testing.T) {
		urls, err := db.ListURLs(ctx)
		if err != nil || len(urls) != 2 || urls[0] != "https://example.com" {
			t.Errorf("urls = %v, %v", urls, err)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		if err := db.SaveResult(ctx, nil); !errors.Is(err, ErrNilResult) {
			t.Errorf("expected ErrNilResult, got %v", err)
		}
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		if err := db.SaveResult(ctx, first); err == nil {
			t.Error("expected error for duplicate id")
		}
	})
}

func TestStepStats(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	failed := model.StepResult{Name: "summary", Status: model.StepFailed, Attempts: 3, Error: &model.StepError{Kind: model.KindTransient, Message: "503"}, Duration: 3 * time.Second}
	skipped := model.Skipped("design", model.KindDependencyFailed, "classify failed")
	reused := ok("classify", 0)
	reused.Cached = true

	results := []*model.AnalysisResult{
		sampleResult("a", "https://a.example", now, false, ok("classify", time.Second), ok("summary", time.Second)),
		sampleResult("b", "https://a.example", now, false, ok("classify", 3*time.Second), failed, skipped),
		sampleResult("c", "https://a.example", now, true, ok("classify", time.Second)),
		sampleResult("d", "https://a.example", now, false, reused),
	}
	for _, r := range results {
		if err := db.SaveResult(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	stats, err := db.StepStats(ctx)
	if err != nil {
		t.Fatalf("StepStats: %v", err)
	}
	byName := make(map[string]StepStat)
	for _, s := range stats {
		byName[s.Name] = s
	}

	if c := byName["classify"]; c.Total != 2 || c.Succeeded != 2 || c.AvgDuration != 2*time.Second {
		t.Errorf("classify = %+v (cache hits and reused steps must not count)", c)
	}
	if s := byName["summary"]; s.Total != 2 || s.Failed != 1 || s.SuccessRate() != 0.5 {
		t.Errorf("summary = %+v", s)
	}
	if d := byName["design"]; d.Skipped != 1 || d.SuccessRate() != 0 {
		t.Errorf("design = %+v", d)
	}
	if (StepStat{}).SuccessRate() != 0 {
		t.Error("empty stat should have zero rate")
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, s := range []string{"2025-01-02 03:04:05.000000000", "2025-01-02 03:04:05", "2025-01-02T03:04:05Z"} {
		if got := parseTimestamp(s); !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v", s, got)
		}
	}
	if !parseTimestamp("garbage").IsZero() {
		t.Error("expected zero time")
	}
}
