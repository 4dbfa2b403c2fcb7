package step

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/pipeline"
)

const classifyName = config.StepClassify

// SiteTypes are the categories the classifier may assign.
var SiteTypes = []string{
	"landing_page", "blog", "e_commerce", "marketplace", "corporate", "portfolio",
	"news", "educational", "social_media", "forum", "wiki", "other",
}

// LandingPage is the site type the design step treats specially.
const LandingPage = "landing_page"

const (
	maxSummaryWords       = 150
	uxRecommendations     = 5
	designRecommendations = 5
	minScore, maxScore    = 1.0, 10.0
)

// Classification is the payload of the classify step.
type Classification struct {
	Type           string  `json:"type"`
	Reason         string  `json:"reason"`
	Confidence     float64 `json:"confidence"`
	Industry       string  `json:"industry,omitempty"`
	TargetAudience string  `json:"target_audience,omitempty"`
	BusinessModel  string  `json:"business_model,omitempty"`
}

// Summary is the payload of the summary step.
type Summary struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"key_points,omitempty"`
	WordCount     int      `json:"word_count"`
	SentenceCount int      `json:"sentence_count"`
}

// Recommendation is a single UX improvement.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Impact      string `json:"impact,omitempty"`
}

// UXReview is the payload of the ux_review step.
type UXReview struct {
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	Recommendations []Recommendation `json:"recommendations"`
	OverallScore    float64          `json:"overall_score"`
}

// DesignRecommendation is a single design improvement.
type DesignRecommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Difficulty  string `json:"implementation_difficulty"`
}

// DesignAdvice is the payload of the design step.
type DesignAdvice struct {
	Recommendations    []DesignRecommendation `json:"recommendations"`
	OverallDesignScore float64                `json:"overall_design_score"`
	IsLandingPage      bool                   `json:"is_landing_page"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrMalformedOutput}, args...)...)
}

func parseClassification(raw []byte, _ *pipeline.Input) (any, error) {
	var c Classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, malformed("classification: %v", err)
	}
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if !contains(SiteTypes, c.Type) {
		return nil, malformed("unknown site type %q", c.Type)
	}
	c.Reason = strings.TrimSpace(c.Reason)
	if c.Reason == "" {
		return nil, malformed("classification without reason")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, malformed("confidence %v out of range", c.Confidence)
	}
	return c, nil
}

func parseSummary(raw []byte, _ *pipeline.Input) (any, error) {
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, malformed("summary: %v", err)
	}
	words := strings.Fields(s.Summary)
	if len(words) == 0 {
		return nil, malformed("empty summary")
	}
	if len(words) > maxSummaryWords {
		words = words[:maxSummaryWords]
		s.Summary = strings.Join(words, " ")
	}
	s.WordCount = len(words)
	s.SentenceCount = countSentences(s.Summary)
	return s, nil
}

func parseUXReview(raw []byte, _ *pipeline.Input) (any, error) {
	var r UXReview
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed("ux review: %v", err)
	}
	if r.OverallScore < minScore || r.OverallScore > maxScore {
		return nil, malformed("ux score %v out of range", r.OverallScore)
	}
	if len(r.Recommendations) == 0 {
		return nil, malformed("ux review without recommendations")
	}
	if len(r.Recommendations) > uxRecommendations {
		r.Recommendations = r.Recommendations[:uxRecommendations]
	}
	for i := range r.Recommendations {
		p, err := priority(r.Recommendations[i].Priority)
		if err != nil {
			return nil, err
		}
		r.Recommendations[i].Priority = p
	}
	return r, nil
}

func parseDesignAdvice(raw []byte, in *pipeline.Input) (any, error) {
	var d DesignAdvice
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, malformed("design advice: %v", err)
	}
	if d.OverallDesignScore < minScore || d.OverallDesignScore > maxScore {
		return nil, malformed("design score %v out of range", d.OverallDesignScore)
	}
	if len(d.Recommendations) == 0 {
		return nil, malformed("design advice without recommendations")
	}
	if len(d.Recommendations) > designRecommendations {
		d.Recommendations = d.Recommendations[:designRecommendations]
	}
	for i := range d.Recommendations {
		rec := &d.Recommendations[i]
		rec.Category = strings.ToLower(strings.TrimSpace(rec.Category))
		if !contains(designCategories, rec.Category) {
			return nil, malformed("unknown design category %q", rec.Category)
		}
		p, err := priority(rec.Priority)
		if err != nil {
			return nil, err
		}
		rec.Priority = p
	}

	// The classifier's verdict wins over the model's own guess.
	if raw, ok := in.Dependencies[classifyName]; ok {
		var c Classification
		if json.Unmarshal(raw, &c) == nil {
			d.IsLandingPage = c.Type == LandingPage
		}
	}
	return d, nil
}

var designCategories = []string{"visual", "layout", "typography", "color", "interaction"}

func priority(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	switch p {
	case "high", "medium", "low":
		return p, nil
	default:
		return "", malformed("unknown priority %q", p)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func countSentences(s string) int {
	n := 0
	prevEnd := false
	for _, r := range s {
		end := r == '.' || r == '!' || r == '?'
		if end && !prevEnd {
			n++
		}
		prevEnd = end
	}
	if n == 0 && strings.TrimFunc(s, unicode.IsSpace) != "" {
		n = 1
	}
	return n
}

// Headline returns a one-line digest of a step payload for summary output.
// Unknown steps and unparseable payloads yield "".
func Headline(name string, payload json.RawMessage) string {
	switch name {
	case config.StepClassify:
		var c Classification
		if json.Unmarshal(payload, &c) == nil && c.Type != "" {
			return c.Type + " (confidence " + strconv.FormatFloat(c.Confidence, 'f', 2, 64) + ")"
		}
	case config.StepSummary:
		var s Summary
		if json.Unmarshal(payload, &s) == nil {
			return s.Summary
		}
	case config.StepUXReview:
		var r UXReview
		if json.Unmarshal(payload, &r) == nil && r.OverallScore > 0 {
			return "UX score " + strconv.FormatFloat(r.OverallScore, 'f', 1, 64) + "/10"
		}
	case config.StepDesign:
		var d DesignAdvice
		if json.Unmarshal(payload, &d) == nil && d.OverallDesignScore > 0 {
			return "design score " + strconv.FormatFloat(d.OverallDesignScore, 'f', 1, 64) + "/10"
		}
	}
	return ""
}
