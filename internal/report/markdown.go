package report

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitescope/internal/model"
)

// MarkdownWriter outputs results in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter

	shape model.Shape
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownShape selects the output shape. With model.ShapeSummary
// step payloads are omitted.
func WithMarkdownShape(shape model.Shape) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.shape = shape
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		shape:      model.ShapeJSON,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *model.AnalysisResult) (int, error) {
	summary := NewSummary(result)
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeSteps(md, summary)
	if w.shape != model.ShapeSummary {
		w.writePayloads(md, result)
	}
	if w.shape == model.ShapeDetailed {
		w.writePage(md, result)
	}
	w.writeWarnings(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the result header with request information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Sitescope Report")
	md.PlainText("")

	rows := [][]string{
		{"URL", "`" + s.URL + "`"},
		{"Result ID", "`" + s.ID + "`"},
		{"Analyzed", s.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Status", statusText(s)},
		{"Cache", cacheText(s.CacheHit)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	}
	if s.Title != "" {
		rows = append(rows, []string{"Title", s.Title})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
	w.writeAlert(md, s)
}

// statusText returns the status text based on result state.
func statusText(s *Summary) string {
	text := ""
	switch s.Status {
	case model.StatusCompleted:
		text = "✅ Completed"
	case model.StatusPartial:
		text = "⚠️ Partial"
	default:
		text = "❌ Failed"
	}
	if s.TimedOut {
		text += " (timed out)"
	}
	return text
}

func cacheText(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// writeAlert writes an appropriate alert based on the overall status.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	succeeded, failed, skipped := s.Counts()
	switch {
	case s.Status == model.StatusFailed:
		md.Cautionf("Analysis failed. %d step(s) failed and %d were skipped.", failed, skipped)
	case s.TimedOut:
		md.Warningf("The request deadline elapsed. %d of %d step(s) completed.", succeeded, len(s.Steps))
	case s.Status == model.StatusPartial:
		md.Importantf("Partial result. %d step(s) failed and %d were skipped.", failed, skipped)
	default:
		md.Tip("All steps completed.")
	}
	md.PlainText("")
}

// writeSteps writes the step table and status chart.
func (w *MarkdownWriter) writeSteps(md *markdown.Markdown, s *Summary) {
	md.H2("Steps")
	md.PlainText("")

	if len(s.Steps) == 0 {
		md.PlainText("No steps were run.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Steps))
	for i, l := range s.Steps {
		detail := l.Headline
		if l.Reason != "" {
			detail = string(l.Kind) + ": " + l.Reason
		}
		if detail == "" {
			detail = "-"
		}
		status := string(l.Status)
		if l.Cached {
			status += " (cached)"
		}
		rows[i] = []string{
			l.Name,
			status,
			strconv.Itoa(l.Attempts),
			l.Duration.Round(time.Millisecond).String(),
			truncateString(detail, 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Step", "Status", "Attempts", "Duration", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, s)
}

// writePieChart writes a mermaid pie chart for the step status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	succeeded, failed, skipped := s.Counts()
	if failed == 0 && skipped == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Step Status Distribution"),
		piechart.WithShowData(true),
	)
	if succeeded > 0 {
		chart.LabelAndIntValue("Succeeded", uint64(succeeded))
	}
	if failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(failed))
	}
	if skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(skipped))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writePayloads writes each successful step payload in a collapsible block.
func (w *MarkdownWriter) writePayloads(md *markdown.Markdown, result *model.AnalysisResult) {
	wrote := false
	for _, r := range result.Steps {
		if !r.Succeeded() || len(r.Payload) == 0 {
			continue
		}
		if !wrote {
			md.H2("Step Output")
			md.PlainText("")
			wrote = true
		}
		md.Details(r.Name, "\n```json\n"+indentJSON(r.Payload)+"\n```\n")
	}
	if wrote {
		md.PlainText("")
	}
}

// writePage writes the page metadata.
func (w *MarkdownWriter) writePage(md *markdown.Markdown, result *model.AnalysisResult) {
	md.H2("Page")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Title", orDash(result.Page.Title)},
			{"Description", truncateString(orDash(result.Page.Description), 120)},
			{"Content Length", strconv.Itoa(result.Page.ContentLength)},
			{"Success Rate", strconv.FormatFloat(result.SuccessRate()*100, 'f', 1, 64) + "%"},
		},
	})
	md.PlainText("")
}

// writeWarnings writes validator warnings, if any.
func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, s *Summary) {
	if len(s.Warnings) == 0 {
		return
	}
	md.H2("Warnings")
	md.PlainText("")
	md.BulletList(s.Warnings...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitescope](https://github.com/nao1215/sitescope)*")
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
