package provider

import "context"

// Prompt is a single bounded-size request to the model.
type Prompt struct {
	// System sets the assistant's role.
	System string

	// User carries the page data and the task.
	User string

	// JSON asks the model to answer with a single JSON object.
	JSON bool

	// MaxTokens caps the answer length. Zero leaves it to the provider.
	MaxTokens int
}

// Provider completes prompts against a language model.
type Provider interface {
	// Complete returns the model's answer to p.
	Complete(ctx context.Context, p Prompt) (string, error)

	// Name identifies the provider endpoint. Steps using the same
	// provider share a circuit breaker under this name.
	Name() string

	// Model returns the model name. It is part of every cache key, so
	// switching models never serves stale answers.
	Model() string
}
