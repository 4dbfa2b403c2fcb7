// Package log builds the slog loggers used across sitescope.
//
// Every logger returned by this package wraps its output handler in a
// SecureHandler, which masks provider API keys, cookies, bearer tokens and
// the credential parts of logged URLs. Analysis requests carry
// user-supplied URLs, and those regularly contain tokens in the query
// string; the handler keeps the URL readable and hides only the secrets.
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//	logger.Info("analysis started", "url", "https://example.com/?token=abc")
//	// url=https://example.com/?token=***REDACTED***
package log
