// Package cache memoizes analysis results behind a backend-neutral Store.
//
// Four backends implement Store: an in-process LRU map, Redis, a SQLite
// table and a Badger key-value directory. All of them give read-after-write
// visibility for a single key and treat expired entries as absent.
//
// Callers use the Cache wrapper rather than a Store directly. Cache bounds
// every backend call with a short timeout, turns backend errors into
// misses so that an unreachable cache never blocks or fails a request, and
// keeps hit, miss and error counters.
//
// Values are opaque bytes; encoding is the caller's concern.
package cache
