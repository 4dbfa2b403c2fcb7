package report

import (
	"time"

	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/step"
)

// Summary is a condensed view of an analysis result: status and one
// headline per step instead of full payloads.
type Summary struct {
	// ID is the result ID.
	ID string `json:"id"`

	// URL is the normalized target URL.
	URL string `json:"url"`

	// Status is the overall outcome.
	Status model.OverallStatus `json:"status"`

	// CacheHit reports whether the result came from the cache.
	CacheHit bool `json:"cache_hit"`

	// TimedOut reports whether the request deadline elapsed.
	TimedOut bool `json:"timed_out,omitempty"`

	// Title is the page title.
	Title string `json:"title,omitempty"`

	// Steps has one line per step in reporting order.
	Steps []StepLine `json:"steps"`

	// Warnings carries validator findings.
	Warnings []string `json:"warnings,omitempty"`

	// CreatedAt is when the analysis ran.
	CreatedAt time.Time `json:"created_at"`

	// Duration is the time spent serving the request.
	Duration time.Duration `json:"duration"`
}

// StepLine is a single step in a Summary.
type StepLine struct {
	Name     string           `json:"name"`
	Status   model.StepStatus `json:"status"`
	Headline string           `json:"headline,omitempty"`
	Kind     model.ErrorKind  `json:"error_kind,omitempty"`
	Reason   string           `json:"error,omitempty"`
	Attempts int              `json:"attempts"`
	Cached   bool             `json:"cached,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// NewSummary condenses result.
func NewSummary(result *model.AnalysisResult) *Summary {
	s := &Summary{
		ID:        result.ID,
		URL:       result.Request.URL,
		Status:    result.Status,
		CacheHit:  result.CacheHit,
		TimedOut:  result.TimedOut,
		Title:     result.Page.Title,
		Steps:     make([]StepLine, 0, len(result.Steps)),
		Warnings:  result.Warnings,
		CreatedAt: result.CreatedAt,
		Duration:  result.Duration,
	}
	for _, r := range result.Steps {
		line := StepLine{
			Name:     r.Name,
			Status:   r.Status,
			Attempts: r.Attempts,
			Cached:   r.Cached,
			Duration: r.Duration,
		}
		if r.Succeeded() {
			line.Headline = step.Headline(r.Name, r.Payload)
		}
		if r.Error != nil {
			line.Kind = r.Error.Kind
			line.Reason = r.Error.Message
		}
		s.Steps = append(s.Steps, line)
	}
	return s
}

// Counts returns the number of steps per status.
func (s *Summary) Counts() (succeeded, failed, skipped int) {
	for _, l := range s.Steps {
		switch l.Status {
		case model.StepSucceeded:
			succeeded++
		case model.StepFailed:
			failed++
		case model.StepSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// Detailed is the complete result plus its summary and success rate.
type Detailed struct {
	*model.AnalysisResult

	Summary     *Summary `json:"summary"`
	SuccessRate float64  `json:"success_rate"`
}

// Shape returns the value rendered for shape.
func Shape(result *model.AnalysisResult, shape model.Shape) any {
	switch shape {
	case model.ShapeSummary:
		return NewSummary(result)
	case model.ShapeDetailed:
		return &Detailed{
			AnalysisResult: result,
			Summary:        NewSummary(result),
			SuccessRate:    result.SuccessRate(),
		}
	default:
		return result
	}
}
