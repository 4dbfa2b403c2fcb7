package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitescope/internal/model"
)

// ruleWidth is the width of section rules in text output.
const ruleWidth = 70

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with one line per step and
// clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it works in all terminals and pipes cleanly to files.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no content are shown.
	showEmpty bool

	// verbose adds error messages and page metadata.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result in human-readable format.
func (w *SimpleWriter) Write(result *model.AnalysisResult) (int, error) {
	s := NewSummary(result)

	var sb strings.Builder
	w.writeHeader(&sb, s)
	w.writeSteps(&sb, s)
	if w.verbose {
		w.writePage(&sb, result)
	}
	w.writeWarnings(&sb, s)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with request information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         SITESCOPE REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "URL:       %s\n", s.URL)
	if s.Title != "" {
		fmt.Fprintf(sb, "Title:     %s\n", s.Title)
	}
	fmt.Fprintf(sb, "Result ID: %s\n", s.ID)
	fmt.Fprintf(sb, "Analyzed:  %s\n", s.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	status := strings.ToUpper(string(s.Status))
	if s.TimedOut {
		status += " (timed out)"
	}
	fmt.Fprintf(sb, "Status:    %s\n", status)
	fmt.Fprintf(sb, "Cache:     %s\n", cacheText(s.CacheHit))
	fmt.Fprintf(sb, "Duration:  %s\n", s.Duration.Round(time.Millisecond))
	sb.WriteString("\n")
}

// writeSteps writes one line per step.
func (w *SimpleWriter) writeSteps(sb *strings.Builder, s *Summary) {
	if len(s.Steps) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "STEPS")
	if len(s.Steps) == 0 {
		sb.WriteString("  No steps were run\n\n")
		return
	}

	for _, l := range s.Steps {
		fmt.Fprintf(sb, "[%s] %-10s %s", stepIndicator(l.Status), l.Name, l.Status)
		if l.Cached {
			sb.WriteString(" (cached)")
		}
		sb.WriteString("\n")
		if l.Headline != "" {
			fmt.Fprintf(sb, "    %s\n", l.Headline)
		}
		if l.Kind != "" {
			if w.verbose {
				fmt.Fprintf(sb, "    %s: %s\n", l.Kind, l.Reason)
			} else {
				fmt.Fprintf(sb, "    %s\n", l.Kind)
			}
		}
		if w.verbose {
			fmt.Fprintf(sb, "    attempts=%d duration=%s\n", l.Attempts, l.Duration.Round(time.Millisecond))
		}
	}
	sb.WriteString("\n")
}

// stepIndicator returns a visual indicator for the step status.
func stepIndicator(status model.StepStatus) string {
	switch status {
	case model.StepSucceeded:
		return "+"
	case model.StepFailed:
		return "!"
	case model.StepSkipped:
		return "-"
	default:
		return "?"
	}
}

// writePage writes the page metadata.
func (w *SimpleWriter) writePage(sb *strings.Builder, result *model.AnalysisResult) {
	writeSection(sb, "PAGE")
	if result.Page.Description != "" {
		fmt.Fprintf(sb, "  Description:    %s\n", truncateString(result.Page.Description, 120))
	}
	fmt.Fprintf(sb, "  Content Length: %d\n", result.Page.ContentLength)
	fmt.Fprintf(sb, "  Success Rate:   %.1f%%\n", result.SuccessRate()*100)
	sb.WriteString("\n")
}

// writeWarnings writes validator warnings, if any.
func (w *SimpleWriter) writeWarnings(sb *strings.Builder, s *Summary) {
	if len(s.Warnings) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "WARNINGS")
	if len(s.Warnings) == 0 {
		sb.WriteString("  No warnings\n")
	}
	for _, warning := range s.Warnings {
		fmt.Fprintf(sb, "  * %s\n", warning)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitescope\n")
	sb.WriteString("https://github.com/nao1215/sitescope\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}
