// Package ratelimit bounds how often each client may submit analysis
// requests, using a sliding window of request timestamps.
//
// Each client has its own window and its own lock, so the
// prune-count-append sequence in Allow is atomic per client while
// different clients never contend. Windows that become empty are swept
// lazily.
package ratelimit
