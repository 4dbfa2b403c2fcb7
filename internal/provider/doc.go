// Package provider talks to the language-model service used by the
// analysis steps.
//
// Provider is the narrow interface the steps depend on. OpenAI implements
// it for the OpenAI chat completions API and any server compatible with it
// (set provider.base_url). Failures are translated into the error taxonomy
// of package model so the executor can decide whether to retry:
//
//   - 429 responses wrap model.ErrQuotaExceeded and are never retried
//   - other 4xx responses wrap model.ErrProviderRejected
//   - 5xx responses and network failures become *model.TransientProviderError
package provider
