package provider

import "errors"

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("provider api key not set: export OPENAI_API_KEY or set provider.api_key")

	// ErrEmptyResponse is returned when the provider answers without content.
	ErrEmptyResponse = errors.New("provider returned no content")
)
