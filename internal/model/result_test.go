package model

import (
	"testing"
)

// TestOverall verifies the completed/partial/failed derivation.
func TestOverall(t *testing.T) {
	t.Parallel()

	ok := StepResult{Name: "a", Status: StepSucceeded}
	failed := StepResult{Name: "b", Status: StepFailed}
	skipped := StepResult{Name: "c", Status: StepSkipped}

	tests := []struct {
		name    string
		results []StepResult
		want    OverallStatus
	}{
		{"empty is failed", nil, StatusFailed},
		{"all succeeded", []StepResult{ok, ok}, StatusCompleted},
		{"one failed", []StepResult{ok, failed}, StatusPartial},
		{"one skipped", []StepResult{ok, skipped}, StatusPartial},
		{"none succeeded", []StepResult{failed, skipped}, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Overall(tt.results); got != tt.want {
				t.Errorf("Overall() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAnalysisResultHelpers tests Step lookup and SuccessRate.
func TestAnalysisResultHelpers(t *testing.T) {
	t.Parallel()

	r := &AnalysisResult{
		Steps: []StepResult{
			{Name: "classify", Status: StepSucceeded},
			{Name: "summary", Status: StepFailed},
		},
	}

	t.Run("Step finds existing result", func(t *testing.T) {
		t.Parallel()
		s, ok := r.Step("summary")
		if !ok {
			t.Fatal("expected summary to be found")
		}
		if s.Status != StepFailed {
			t.Errorf("expected failed, got %s", s.Status)
		}
	})

	t.Run("Step reports missing result", func(t *testing.T) {
		t.Parallel()
		if _, ok := r.Step("design"); ok {
			t.Error("expected design to be missing")
		}
	})

	t.Run("SuccessRate", func(t *testing.T) {
		t.Parallel()
		if got := r.SuccessRate(); got != 0.5 {
			t.Errorf("expected 0.5, got %v", got)
		}
		empty := &AnalysisResult{}
		if got := empty.SuccessRate(); got != 0 {
			t.Errorf("expected 0 for empty result, got %v", got)
		}
	})
}

// TestStepDescriptorAttempts tests the attempt count derivation.
func TestStepDescriptorAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retries int
		want    int
	}{
		{-1, 1},
		{0, 1},
		{2, 3},
	}
	for _, tt := range tests {
		d := StepDescriptor{Name: "x", MaxRetries: tt.retries}
		if got := d.Attempts(); got != tt.want {
			t.Errorf("MaxRetries=%d: Attempts() = %d, want %d", tt.retries, got, tt.want)
		}
	}
}
