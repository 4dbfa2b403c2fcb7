package step

import (
	"fmt"
	"strings"

	"github.com/nao1215/sitescope/internal/pipeline"
)

const classifySystem = "You are a website classification expert. Answer with a single JSON object."

func classifyTask(b *strings.Builder, _ *pipeline.Input) {
	fmt.Fprintf(b, "Classify the website. Allowed types: %s.\n", strings.Join(SiteTypes, ", "))
	b.WriteString(`Return JSON: {"type": "...", "reason": "why", "confidence": 0.0-1.0, ` +
		`"industry": "...", "target_audience": "...", "business_model": "..."}`)
}

const summarySystem = "You write concise, factual website summaries. Answer with a single JSON object."

func summaryTask(b *strings.Builder, _ *pipeline.Input) {
	fmt.Fprintf(b, "Summarize the website in 3 to 5 sentences, at most %d words.\n", maxSummaryWords)
	b.WriteString(`Return JSON: {"summary": "...", "key_points": ["...", "..."]}`)
}

const uxSystem = "You are a senior UX reviewer. Answer with a single JSON object."

func uxTask(b *strings.Builder, in *pipeline.Input) {
	if in.Page != nil {
		fmt.Fprintf(b, "Page structure: %d forms, %d buttons, %d images, %d links (%d external), navigation: %s.\n",
			len(in.Page.Forms), len(in.Page.Buttons), len(in.Page.Images), len(in.Page.Anchors),
			in.Page.ExternalLinkCount(), strings.Join(in.Page.Navigation, " | "))
	}
	fmt.Fprintf(b, "Review the usability of the page. Give exactly %d recommendations.\n", uxRecommendations)
	b.WriteString(`Return JSON: {"strengths": ["..."], "weaknesses": ["..."], ` +
		`"recommendations": [{"title": "...", "description": "...", "priority": "high|medium|low", "impact": "..."}], ` +
		`"overall_score": 1.0-10.0}`)
}

const designSystem = "You are a visual design advisor. Answer with a single JSON object."

func designTask(b *strings.Builder, _ *pipeline.Input) {
	fmt.Fprintf(b, "Give exactly %d design recommendations. Categories: %s. "+
		"If the site is a landing page, focus on conversion.\n",
		designRecommendations, strings.Join(designCategories, ", "))
	b.WriteString(`Return JSON: {"recommendations": [{"title": "...", "description": "...", "category": "...", ` +
		`"priority": "high|medium|low", "implementation_difficulty": "easy|medium|hard"}], ` +
		`"overall_design_score": 1.0-10.0, "is_landing_page": false}`)
}
