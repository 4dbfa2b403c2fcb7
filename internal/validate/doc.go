// Package validate normalizes and screens analysis requests before any
// network or provider work happens.
//
// URLs are rejected when they use a scheme other than http/https, contain
// script or markup injection patterns, exceed the configured length, name a
// blocked domain, or point at loopback, private or link-local addresses.
// Accepted URLs are reduced to a canonical form so that equivalent inputs
// share cache entries.
//
// Caller-supplied page content is never rejected. It is normalized,
// truncated and stripped of active markup, and every removal is reported
// as a warning.
package validate
