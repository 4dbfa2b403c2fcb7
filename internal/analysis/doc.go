// Package analysis is the entry point for analyzing a URL.
//
// A Service takes one request through validation, rate limiting, cache
// lookup, page acquisition, step orchestration and cache store. Every
// request walks the states in order exactly once:
//
//	received -> validated -> rate_checked -> cache_lookup -> done
//	                                              |
//	                                              +-> orchestrating -> cache_store -> done
//
// A request that fails validation or rate limiting ends in rejected and
// never reaches the orchestrator. Step failures never reject a request;
// they are reported per step and reflected in the overall status.
//
// Design decision: The validator, rate limiter, cache and executor are
// owned by the Service and passed in explicitly rather than reached
// through package globals, so a Service can be built in isolation for
// tests and several can coexist in one process.
//
// BatchProcessor runs many requests through a Service concurrently.
package analysis
