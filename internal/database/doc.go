// Package database provides SQLite-based storage for sitescope.
//
// This package implements the ResultDB, which stores:
//   - Every analysis result as JSON, including cache hits
//   - One row per step outcome, for success-rate statistics
//
// The pipeline writes to it through the analysis.ResultSink interface and
// never reads from it; the history and stats commands read it back.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode provides good concurrent read performance
package database
