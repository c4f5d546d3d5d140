//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent load runs",
	Long: `Show the most recent loads recorded in the etl_runs table, including
failed and rolled back runs.

Example:
  pgedge-retail-etl runs --limit 5 --connection "postgres://..."`,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20,
		"number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runsLimit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	runs, err := db.ListRuns(ctx, pool, runsLimit)
	if err != nil {
		return err
	}

	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func renderRuns(w io.Writer, runs []db.RunRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Source", "Started", "Duration", "Status",
		"Read", "Cleaned", "Skipped", "Facts", "Error"})
	table.SetAutoWrapText(false)

	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		errText := ""
		if r.Error != nil {
			errText = *r.Error
		}
		table.Append([]string{
			r.RunID.String()[:8],
			r.Source,
			r.StartedAt.Local().Format(time.DateTime),
			duration,
			r.Status,
			strconv.Itoa(r.RowsRead),
			strconv.Itoa(r.RowsCleaned),
			strconv.Itoa(r.RowsSkipped),
			strconv.Itoa(r.FactsInserted),
			errText,
		})
	}
	table.Render()
}
