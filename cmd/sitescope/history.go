package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitescope/internal/config"
	"github.com/nao1215/sitescope/internal/database"
	"github.com/nao1215/sitescope/internal/model"
	"github.com/nao1215/sitescope/internal/report"
	"github.com/nao1215/sitescope/internal/validate"
)

// NewHistoryCmd creates the history command.
// This command lists analysis results stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "List stored analysis results",
		Long: `History lists analysis results saved by 'sitescope analyze'.

Without a URL every stored result is listed, newest first. With a URL only
results for that page are listed; equivalent spellings of the URL match.

Examples:
  # List the 20 most recent results
  sitescope history

  # List results for one page
  sitescope history https://example.com

  # Show a stored result as a report
  sitescope history --show 2b1c6a3e-... -f markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of results to list (0 for all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output history in JSON format")
	cmd.Flags().String("show", "",
		"Print the stored result with this ID")
	cmd.Flags().StringP("format", "f", "text",
		"Report format for --show: text, json or markdown")

	return cmd
}

// historyEntry is the JSON form of one history line.
type historyEntry struct {
	ID         string              `json:"id"`
	URL        string              `json:"url"`
	Status     model.OverallStatus `json:"status"`
	CacheHit   bool                `json:"cache_hit"`
	TimedOut   bool                `json:"timed_out"`
	Steps      []string            `json:"steps"`
	CreatedAt  time.Time           `json:"created_at"`
	DurationMS int64               `json:"duration_ms"`
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	showID, err := cmd.Flags().GetString("show")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var url string
	if len(args) == 1 {
		if url, err = normalizeURL(ctx, args[0]); err != nil {
			return err
		}
	}

	db, err := openExistingDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if showID != "" {
		return showResult(ctx, db, showID, format, out)
	}
	return listHistory(ctx, db, url, limit, jsonOutput, out)
}

// normalizeURL returns the canonical form of raw as used in stored results.
// Private addresses are allowed since nothing is fetched.
func normalizeURL(ctx context.Context, raw string) (string, error) {
	v := validate.New(validate.WithAllowPrivate(true))
	url, err := v.NormalizeURL(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	return url, nil
}

// openExistingDB opens the result database without creating it.
func openExistingDB(cmd *cobra.Command) (*database.ResultDB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir := cfg.DBDir
	if dir == "" {
		dir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dir, opts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return nil, fmt.Errorf("%w (run 'sitescope analyze' first)", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// showResult writes the stored result id as a report.
func showResult(ctx context.Context, db *database.ResultDB, id, format string, out io.Writer) error {
	result, err := db.ResultByID(ctx, id)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("no result with id %q", id)
	}
	_, err = report.New(format, out, result.Request.Shape, getVersion()).Write(result)
	return err
}

// listHistory writes the stored results for url, or all results when url is empty.
func listHistory(ctx context.Context, db *database.ResultDB, url string, limit int, jsonOutput bool, out io.Writer) error {
	metas, err := db.History(ctx, url, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		entries := make([]historyEntry, 0, len(metas))
		for _, m := range metas {
			entries = append(entries, historyEntry{
				ID:         m.ID,
				URL:        m.URL,
				Status:     m.Status,
				CacheHit:   m.CacheHit,
				TimedOut:   m.TimedOut,
				Steps:      m.Steps,
				CreatedAt:  m.CreatedAt,
				DurationMS: m.Duration.Milliseconds(),
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(metas) == 0 {
		if url != "" {
			fmt.Fprintf(out, "No results found for %s\n", url)
		} else {
			fmt.Fprintln(out, "No results found in the database.")
		}
		fmt.Fprintln(out, "\nUse 'sitescope analyze <url>' to analyze a page.")
		return nil
	}

	fmt.Fprintf(out, "%d result(s):\n\n", len(metas))
	fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %-5s  %s\n", "ID", "Date", "Status", "Cache", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, m := range metas {
		status := string(m.Status)
		if m.TimedOut {
			status += "*"
		}
		cache := "miss"
		if m.CacheHit {
			cache = "hit"
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %-9s  %-5s  %s\n",
			m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04:05"), status, cache, m.URL)
	}
	fmt.Fprintln(out, "\n  * timed out")
	fmt.Fprintln(out, "\nUse 'sitescope history --show <id>' to view a result.")
	return nil
}
