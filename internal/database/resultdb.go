package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitescope/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "sitescope.db"

// timeFormat is fixed-width so that text ordering matches time ordering.
const timeFormat = "2006-01-02 15:04:05.000000000"

// ResultDB provides SQLite-based storage for analysis results.
type ResultDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ResultDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ResultDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*ResultDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResultDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (rdb *ResultDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *ResultDB) Close() error {
	return rdb.db.Close()
}

// Ping checks that the database is reachable.
func (rdb *ResultDB) Ping(ctx context.Context) error {
	return rdb.db.PingContext(ctx)
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ResultDB) createTables() error {
	schema := `
	-- One row per served analysis, cache hits included
	CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		steps TEXT NOT NULL,
		created_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_url ON analysis_results(url);
	CREATE INDEX IF NOT EXISTS idx_results_created ON analysis_results(created_at);

	-- Step outcomes of freshly computed results
	CREATE TABLE IF NOT EXISTS step_results (
		result_id TEXT NOT NULL REFERENCES analysis_results(id),
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT,
		attempts INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_steps_name ON step_results(name);
	`
	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResult stores result. Step rows are written only for results that
// were not served from the cache, so statistics count real executions.
func (rdb *ResultDB) SaveResult(ctx context.Context, result *model.AnalysisResult) error {
	if result == nil {
		return ErrNilResult
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	names := make([]string, len(result.Steps))
	for i, s := range result.Steps {
		names[i] = s.Name
	}

	tx, err := rdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO analysis_results (id, url, status, cache_hit, timed_out, steps, created_at, duration_ms, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		result.Request.URL,
		string(result.Status),
		boolInt(result.CacheHit),
		boolInt(result.TimedOut),
		strings.Join(names, ","),
		formatTime(result.CreatedAt),
		result.Duration.Milliseconds(),
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	if !result.CacheHit {
		for _, s := range result.Steps {
			kind := ""
			if s.Error != nil {
				kind = string(s.Error.Kind)
			}
			_, err := tx.ExecContext(ctx, `
			INSERT INTO step_results (result_id, name, status, kind, attempts, duration_ms, cached)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			`, result.ID, s.Name, string(s.Status), kind, s.Attempts, s.Duration.Milliseconds(), boolInt(s.Cached))
			if err != nil {
				return fmt.Errorf("failed to save step %q: %w", s.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	return nil
}

// ResultByID retrieves a stored result. It returns nil, nil when absent.
func (rdb *ResultDB) ResultByID(ctx context.Context, id string) (*model.AnalysisResult, error) {
	return rdb.queryResult(ctx, `SELECT result_json FROM analysis_results WHERE id = ?`, id)
}

// LatestResult retrieves the most recent result for url. It returns nil, nil when absent.
func (rdb *ResultDB) LatestResult(ctx context.Context, url string) (*model.AnalysisResult, error) {
	return rdb.queryResult(ctx, `
	SELECT result_json FROM analysis_results
	WHERE url = ?
	ORDER BY created_at DESC
	LIMIT 1
	`, url)
}

func (rdb *ResultDB) queryResult(ctx context.Context, query string, arg any) (*model.AnalysisResult, error) {
	var resultJSON string
	err := rdb.db.QueryRowContext(ctx, query, arg).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &result, nil
}

// ListURLs returns every analyzed URL in lexical order.
func (rdb *ResultDB) ListURLs(ctx context.Context) ([]string, error) {
	rows, err := rdb.db.QueryContext(ctx, `SELECT DISTINCT url FROM analysis_results ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// ResultMetadata contains summary information about a stored result.
// This is used for displaying history without loading the full result.
type ResultMetadata struct {
	// ID is the result ID.
	ID string

	// URL is the normalized target URL.
	URL string

	// Status is the overall outcome.
	Status model.OverallStatus

	// CacheHit reports whether the result was served from the cache.
	CacheHit bool

	// TimedOut reports whether the request deadline elapsed.
	TimedOut bool

	// Steps lists the step names in reporting order.
	Steps []string

	// CreatedAt is when the underlying analysis ran.
	CreatedAt time.Time

	// Duration is how long serving the request took.
	Duration time.Duration
}

// History retrieves result metadata for url, newest first.
// An empty url lists every result.
func (rdb *ResultDB) History(ctx context.Context, url string, limit int) ([]ResultMetadata, error) {
	query := `
	SELECT id, url, status, cache_hit, timed_out, steps, created_at, duration_ms
	FROM analysis_results
	WHERE (? = '' OR url = ?)
	ORDER BY created_at DESC, rowid DESC
	`
	args := []any{url, url}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var results []ResultMetadata
	for rows.Next() {
		var (
			meta      ResultMetadata
			status    string
			steps     string
			createdAt string
			cacheHit  int
			timedOut  int
			duration  int64
		)
		if err := rows.Scan(&meta.ID, &meta.URL, &status, &cacheHit, &timedOut, &steps, &createdAt, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Status = model.OverallStatus(status)
		meta.CacheHit = cacheHit != 0
		meta.TimedOut = timedOut != 0
		if steps != "" {
			meta.Steps = strings.Split(steps, ",")
		}
		meta.CreatedAt = parseTimestamp(createdAt)
		meta.Duration = time.Duration(duration) * time.Millisecond
		results = append(results, meta)
	}
	return results, rows.Err()
}

// StepStat aggregates the outcomes of one step across stored results.
type StepStat struct {
	Name        string
	Total       int
	Succeeded   int
	Failed      int
	Skipped     int
	AvgDuration time.Duration
}

// SuccessRate returns Succeeded/Total, or 0 when the step never ran.
func (s StepStat) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// StepStats aggregates step outcomes by step name. Outcomes reused from
// the per-step cache are excluded.
func (rdb *ResultDB) StepStats(ctx context.Context) ([]StepStat, error) {
	rows, err := rdb.db.QueryContext(ctx, `
	SELECT name,
		COUNT(*),
		SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		CAST(AVG(duration_ms) AS INTEGER)
	FROM step_results
	WHERE cached = 0
	GROUP BY name
	ORDER BY name
	`, string(model.StepSucceeded), string(model.StepFailed), string(model.StepSkipped))
	if err != nil {
		return nil, fmt.Errorf("failed to get step stats: %w", err)
	}
	defer rows.Close()

	var stats []StepStat
	for rows.Next() {
		var (
			s     StepStat
			avgMS int64
		)
		if err := rows.Scan(&s.Name, &s.Total, &s.Succeeded, &s.Failed, &s.Skipped, &avgMS); err != nil {
			return nil, fmt.Errorf("failed to scan step stats: %w", err)
		}
		s.AvgDuration = time.Duration(avgMS) * time.Millisecond
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// CountResults returns the number of stored results.
func (rdb *ResultDB) CountResults(ctx context.Context) (int, error) {
	var n int
	if err := rdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeFormat,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
