package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// createTestResult creates a partial result with sample data for testing.
func createTestResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		ID: "res-1",
		Request: model.AnalysisRequest{
			URL:   "https://example.com",
			Depth: model.DepthFull,
			Shape: model.ShapeJSON,
		},
		Steps: []model.StepResult{
			{
				Name:     "classify",
				Status:   model.StepSucceeded,
				Payload:  json.RawMessage(`{"type":"blog","reason":"posts","confidence":0.9}`),
				Attempts: 1,
				Duration: 120 * time.Millisecond,
			},
			{
				Name:     "summary",
				Status:   model.StepSucceeded,
				Payload:  json.RawMessage(`{"summary":"A blog about Go."}`),
				Attempts: 2,
				Cached:   true,
			},
			{
				Name:     "ux_review",
				Status:   model.StepFailed,
				Error:    &model.StepError{Kind: model.KindQuota, Message: "quota exceeded"},
				Attempts: 1,
			},
			model.Skipped("design", model.KindDependencyFailed, "dependency ux_review did not succeed"),
		},
		Status:    model.StatusPartial,
		Page:      model.PageSummary{Title: "Example Blog", Description: "Posts about Go", ContentLength: 1234},
		Warnings:  []string{"removed 1 script tag(s)"},
		CreatedAt: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}
}

func createCompletedResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:      "res-2",
		Request: model.AnalysisRequest{URL: "https://example.org"},
		Steps: []model.StepResult{
			{Name: "classify", Status: model.StepSucceeded, Payload: json.RawMessage(`{"type":"other","confidence":0.5}`), Attempts: 1},
		},
		Status:    model.StatusCompleted,
		CacheHit:  true,
		CreatedAt: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
	}
}

func TestNewSummary(t *testing.T) {
	t.Parallel()

	s := NewSummary(createTestResult())

	if s.ID != "res-1" || s.URL != "https://example.com" || s.Title != "Example Blog" {
		t.Errorf("unexpected header fields: %+v", s)
	}
	if len(s.Steps) != 4 {
		t.Fatalf("expected 4 step lines, got %d", len(s.Steps))
	}
	if got := s.Steps[0].Headline; got != "blog (confidence 0.90)" {
		t.Errorf("classify headline = %q", got)
	}
	if got := s.Steps[1].Headline; got != "A blog about Go." {
		t.Errorf("summary headline = %q", got)
	}
	if !s.Steps[1].Cached {
		t.Error("expected cached flag to be carried")
	}
	if s.Steps[2].Headline != "" || s.Steps[2].Kind != model.KindQuota {
		t.Errorf("failed step line = %+v", s.Steps[2])
	}
	if s.Steps[3].Kind != model.KindDependencyFailed {
		t.Errorf("skipped step kind = %q", s.Steps[3].Kind)
	}

	succeeded, failed, skipped := s.Counts()
	if succeeded != 2 || failed != 1 || skipped != 1 {
		t.Errorf("Counts() = %d, %d, %d", succeeded, failed, skipped)
	}
}

func TestShape(t *testing.T) {
	t.Parallel()

	result := createTestResult()

	t.Run("json returns the result itself", func(t *testing.T) {
		t.Parallel()

		if got, ok := Shape(result, model.ShapeJSON).(*model.AnalysisResult); !ok || got != result {
			t.Errorf("expected the result, got %T", got)
		}
	})

	t.Run("summary omits payloads", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(Shape(result, model.ShapeSummary))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(string(data), "payload") {
			t.Errorf("summary should not carry payloads: %s", data)
		}
		if !strings.Contains(string(data), `"headline":"A blog about Go."`) {
			t.Errorf("summary should carry headlines: %s", data)
		}
	})

	t.Run("detailed adds summary and success rate", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(Shape(result, model.ShapeDetailed))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		for _, key := range []string{"id", "steps", "page", "summary", "success_rate"} {
			if _, ok := decoded[key]; !ok {
				t.Errorf("expected key %q in detailed output", key)
			}
		}
		if string(decoded["success_rate"]) != "0.5" {
			t.Errorf("success_rate = %s, want 0.5", decoded["success_rate"])
		}
	})
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and steps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestResult())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"SITESCOPE REPORT",
			"https://example.com",
			"Status:    PARTIAL",
			"Cache:     miss",
			"[+] classify",
			"blog (confidence 0.90)",
			"summary    succeeded (cached)",
			"[!] ux_review",
			"[-] design",
			"removed 1 script tag(s)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "attempts=") {
			t.Error("non-verbose output should not include attempts")
		}
	})

	t.Run("verbose adds reasons and page", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"quota: quota exceeded", "attempts=2", "PAGE", "Success Rate:   50.0%"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected verbose output to contain %q", want)
			}
		}
	})

	t.Run("empty sections", func(t *testing.T) {
		t.Parallel()

		result := &model.AnalysisResult{ID: "empty", Status: model.StatusFailed}

		var hidden bytes.Buffer
		if _, err := NewSimpleWriter(&hidden).Write(result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(hidden.String(), "STEPS") {
			t.Error("expected empty steps section to be hidden")
		}

		var shown bytes.Buffer
		if _, err := NewSimpleWriter(&shown, WithShowEmpty(true)).Write(result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(shown.String(), "No steps were run") || !strings.Contains(shown.String(), "No warnings") {
			t.Error("expected empty sections to be shown")
		}
	})

	t.Run("timed out", func(t *testing.T) {
		t.Parallel()

		result := createTestResult()
		result.TimedOut = true

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "PARTIAL (timed out)") {
			t.Error("expected timed out status")
		}
	})
}

func TestStepIndicator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status model.StepStatus
		want   string
	}{
		{model.StepSucceeded, "+"},
		{model.StepFailed, "!"},
		{model.StepSkipped, "-"},
		{model.StepStatus("unknown"), "?"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			if got := stepIndicator(tt.status); got != tt.want {
				t.Errorf("stepIndicator(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid compact JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.AnalysisResult
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if decoded.ID != "res-1" || len(decoded.Steps) != 4 {
			t.Errorf("unexpected decoded result: %+v", decoded)
		}
		if strings.Contains(strings.TrimSpace(buf.String()), "\n") {
			t.Error("compact output should be a single line")
		}
		if !strings.HasSuffix(buf.String(), "\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"id\": \"res-1\"") {
			t.Errorf("expected indented output, got %s", buf.String())
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent("", "\t")).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n\t\"id\"") {
			t.Error("expected tab indentation")
		}
	})

	t.Run("summary shape", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithShape(model.ShapeSummary)).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded Summary
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if decoded.Status != model.StatusPartial || len(decoded.Steps) != 4 {
			t.Errorf("unexpected summary: %+v", decoded)
		}
	})
}

func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewFullJSONWriter(&buf, "v1.2.3", WithShape(model.ShapeSummary))
	if _, err := w.Write(createTestResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Version string          `json:"version"`
		Shape   model.Shape     `json:"shape"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if decoded.Version != "v1.2.3" {
		t.Errorf("version = %q", decoded.Version)
	}
	if decoded.Shape != model.ShapeSummary {
		t.Errorf("shape = %q", decoded.Shape)
	}
	if !strings.Contains(string(decoded.Result), `"headline"`) {
		t.Errorf("expected summary result, got %s", decoded.Result)
	}
}

// failingWriter always fails.
type failingWriter struct{}

func (failingWriter) Write(*model.AnalysisResult) (int, error) {
	return 0, errors.New("write failed")
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := m.Write(createTestResult())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("total = %d, want %d", n, text.Len()+js.Len())
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		m := NewMultiWriter(failingWriter{}, NewSimpleWriter(&buf))
		if _, err := m.Write(createTestResult()); err == nil {
			t.Fatal("expected error")
		}
		if buf.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tests := []struct {
		format string
		check  func(Writer) bool
	}{
		{"json", func(w Writer) bool { _, ok := w.(*FullJSONWriter); return ok }},
		{"markdown", func(w Writer) bool { _, ok := w.(*MarkdownWriter); return ok }},
		{"text", func(w Writer) bool { _, ok := w.(*SimpleWriter); return ok }},
		{"", func(w Writer) bool { _, ok := w.(*SimpleWriter); return ok }},
	}
	for _, tt := range tests {
		if w := New(tt.format, &buf, model.ShapeJSON, "dev"); !tt.check(w) {
			t.Errorf("New(%q) returned %T", tt.format, w)
		}
	}
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("partial result", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Sitescope Report",
			"`https://example.com`",
			"⚠️ Partial",
			"## Steps",
			"| classify",
			"succeeded (cached)",
			"quota: quota exceeded",
			"```mermaid",
			"Step Status Distribution",
			"## Step Output",
			"<details>",
			"## Warnings",
			"[!IMPORTANT]",
			"Report generated by",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected markdown to contain %q", want)
			}
		}
	})

	t.Run("summary shape omits payloads", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf, WithMarkdownShape(model.ShapeSummary))
		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "## Step Output") {
			t.Error("summary shape should not include payloads")
		}
	})

	t.Run("detailed shape adds page", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf, WithMarkdownShape(model.ShapeDetailed))
		if _, err := w.Write(createTestResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "## Page") || !strings.Contains(buf.String(), "50.0%") {
			t.Error("detailed shape should include page metadata")
		}
	})

	t.Run("completed result", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createCompletedResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[!TIP]") || !strings.Contains(output, " hit ") {
			t.Errorf("unexpected completed output:\n%s", output)
		}
		if strings.Contains(output, "```mermaid") {
			t.Error("pie chart should be omitted when every step succeeded")
		}
	})

	t.Run("failed result", func(t *testing.T) {
		t.Parallel()

		result := &model.AnalysisResult{
			ID:     "res-3",
			Steps:  []model.StepResult{model.Skipped("classify", model.KindDependencyFailed, "scrape failed")},
			Status: model.StatusFailed,
		}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!CAUTION]") {
			t.Error("expected caution alert for failed result")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 3, "hel"},
		{"multibyte", "日本語のテキスト", 5, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
