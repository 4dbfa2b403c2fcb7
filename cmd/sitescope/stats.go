package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitescope/internal/database"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show step statistics from stored results",
		Long: `Stats aggregates the results saved by 'sitescope analyze':
how many pages were analyzed and how often each step succeeded, failed or
was skipped. Step outcomes reused from the cache are not counted.`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Output statistics in JSON format")
	return cmd
}

// statsReport is the JSON form of the stats output.
type statsReport struct {
	Results int         `json:"results"`
	URLs    int         `json:"urls"`
	Steps   []stepEntry `json:"steps"`
}

type stepEntry struct {
	Name          string  `json:"name"`
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS int64   `json:"avg_duration_ms"`
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := openExistingDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rep, err := collectStats(ctx, db)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	writeStats(cmd.OutOrStdout(), rep)
	return nil
}

func collectStats(ctx context.Context, db *database.ResultDB) (statsReport, error) {
	var rep statsReport

	n, err := db.CountResults(ctx)
	if err != nil {
		return rep, err
	}
	urls, err := db.ListURLs(ctx)
	if err != nil {
		return rep, err
	}
	steps, err := db.StepStats(ctx)
	if err != nil {
		return rep, err
	}

	rep.Results = n
	rep.URLs = len(urls)
	rep.Steps = make([]stepEntry, 0, len(steps))
	for _, s := range steps {
		rep.Steps = append(rep.Steps, stepEntry{
			Name:          s.Name,
			Total:         s.Total,
			Succeeded:     s.Succeeded,
			Failed:        s.Failed,
			Skipped:       s.Skipped,
			SuccessRate:   s.SuccessRate(),
			AvgDurationMS: s.AvgDuration.Milliseconds(),
		})
	}
	return rep, nil
}

func writeStats(w io.Writer, rep statsReport) {
	fmt.Fprintf(w, "Results: %d\n", rep.Results)
	fmt.Fprintf(w, "URLs:    %d\n", rep.URLs)
	if len(rep.Steps) == 0 {
		fmt.Fprintln(w, "\nNo step outcomes recorded.")
		return
	}

	fmt.Fprintf(w, "\n  %-12s  %6s  %6s  %6s  %6s  %7s  %s\n",
		"Step", "Total", "OK", "Failed", "Skip", "Rate", "Avg")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 64))
	for _, s := range rep.Steps {
		fmt.Fprintf(w, "  %-12s  %6d  %6d  %6d  %6d  %6.1f%%  %dms\n",
			s.Name, s.Total, s.Succeeded, s.Failed, s.Skipped, s.SuccessRate*100, s.AvgDurationMS)
	}
}
