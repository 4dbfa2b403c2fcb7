package step

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/pipeline"
	"github.com/nao1215/sitescope/internal/provider"
)

// promptStep is a step that asks the provider one question and validates
// the JSON answer.
type promptStep struct {
	name         string
	system       string
	task         func(b *strings.Builder, in *pipeline.Input)
	parse        func(raw []byte, in *pipeline.Input) (any, error)
	provider     provider.Provider
	contentLimit int
	logger       *slog.Logger
}

// Name implements pipeline.Step.
func (s *promptStep) Name() string {
	return s.name
}

// Do implements pipeline.Step.
func (s *promptStep) Do(ctx context.Context, in *pipeline.Input) (json.RawMessage, error) {
	prompt := provider.Prompt{
		System: s.system,
		User:   s.buildPrompt(in),
		JSON:   true,
	}

	answer, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(answer)
	if err != nil {
		s.logger.Debug("unparseable answer", "step", s.name, "answer_length", len(answer))
		return nil, err
	}
	value, err := s.parse(raw, in)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// buildPrompt renders page facts, the dependency context and the task.
func (s *promptStep) buildPrompt(in *pipeline.Input) string {
	var b strings.Builder
	page := in.Page
	if page == nil {
		page = &model.Page{}
	}

	fmt.Fprintf(&b, "URL: %s\n", in.Request.URL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", page.Title)
	}
	if page.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", page.Description)
	}
	if len(page.Headings) > 0 {
		b.WriteString("Headings:\n")
		for i, h := range page.Headings {
			if i == 20 {
				break
			}
			fmt.Fprintf(&b, "  h%d: %s\n", h.Level, h.Text)
		}
	}

	if raw, ok := in.Dependencies[classifyName]; ok {
		var c Classification
		if json.Unmarshal(raw, &c) == nil {
			fmt.Fprintf(&b, "Classification: type=%s industry=%s audience=%s business_model=%s\n",
				c.Type, orUnknown(c.Industry), orUnknown(c.TargetAudience), orUnknown(c.BusinessModel))
		}
	}

	fmt.Fprintf(&b, "Content:\n%s\n\n", truncate(page.Content, s.contentLimit))
	s.task(&b, in)
	return b.String()
}

// extractJSON returns the outermost JSON object in answer. Models often
// wrap JSON in prose or code fences.
func extractJSON(answer string) ([]byte, error) {
	start := strings.IndexByte(answer, '{')
	end := strings.LastIndexByte(answer, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in answer", model.ErrMalformedOutput)
	}
	raw := []byte(answer[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON in answer", model.ErrMalformedOutput)
	}
	return raw, nil
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
