package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Package-level sentinels let callers use errors.Is() while keeping
// human-readable messages.
var (
	// ErrNoTarget is returned when no target URL is specified.
	ErrNoTarget = errors.New("no target specified: provide at least one URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidReportFormat is returned when the report format is not one of
	// json, markdown or text.
	ErrInvalidReportFormat = errors.New("invalid report format: must be json, markdown or text")

	// ErrInvalidRateLimit is returned when the rate limit or its window is not positive.
	ErrInvalidRateLimit = errors.New("invalid rate limit: limit and window must be positive")

	// ErrInvalidCacheBackend is returned for an unknown cache backend name.
	ErrInvalidCacheBackend = errors.New("invalid cache backend: must be memory, redis, sqlite or badger")

	// ErrInvalidCacheTTL is returned when the cache TTL is not positive.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be positive")

	// ErrMissingRedisAddress is returned when the redis backend is selected
	// without an address.
	ErrMissingRedisAddress = errors.New("redis cache backend requires cache.redis_addr")

	// ErrInvalidBreaker is returned when the circuit breaker threshold or
	// cool-down is not positive.
	ErrInvalidBreaker = errors.New("invalid circuit breaker: threshold and cooldown must be positive")

	// ErrInvalidStep is returned when a step descriptor has no name, a
	// duplicate name, or a non-positive timeout.
	ErrInvalidStep = errors.New("invalid step descriptor")

	// ErrInvalidMaxURLLength is returned when the maximum URL length is not positive.
	ErrInvalidMaxURLLength = errors.New("invalid max url length: must be positive")
)
