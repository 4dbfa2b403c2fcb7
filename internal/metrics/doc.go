// Package metrics exposes pipeline counters to Prometheus.
//
// Metrics owns its own registry so that several pipelines (and parallel
// tests) never collide on metric names. Its methods match the hook
// signatures of the cache, rate limiter, executor and breaker, so wiring is
// a matter of passing method values as options.
package metrics
