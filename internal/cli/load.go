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
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/etl"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

var (
	loadFormat           string
	loadSheet            string
	loadDelimiter        string
	loadBatchSize        int
	loadKeyResolution    string
	loadOnLookupMiss     string
	loadNoRecordRun      bool
	loadProgressInterval int
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Clean an export and load it into the warehouse",
	Long: `Read an Online Retail export, drop invalid rows, upsert the customer,
product and time dimensions and append the sales facts. Everything is
written in one transaction; on any error the warehouse is left unchanged.

Example:
  pgedge-retail-etl load Online_Retail.xlsx --connection "postgres://..."
  pgedge-retail-etl load export.csv --batch-size 500 --on-lookup-miss fail`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadFormat, "format", "",
		"input format: csv or xlsx (default: from the file extension)")
	loadCmd.Flags().StringVar(&loadSheet, "sheet", "",
		"worksheet to read from an xlsx export (default: first sheet)")
	loadCmd.Flags().StringVar(&loadDelimiter, "delimiter", "",
		"CSV field delimiter (default: ,)")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0,
		"fact rows per insert statement (default: 100)")
	loadCmd.Flags().StringVar(&loadKeyResolution, "key-resolution", "",
		"dimension key resolution: preload or lookup")
	loadCmd.Flags().StringVar(&loadOnLookupMiss, "on-lookup-miss", "",
		"unresolved dimension key policy: skip or fail")
	loadCmd.Flags().BoolVar(&loadNoRecordRun, "no-record-run", false,
		"do not record the run in etl_runs")
	loadCmd.Flags().IntVar(&loadProgressInterval, "progress-interval", 0,
		"log progress every N fact rows")
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if len(args) == 1 {
		cfg.Load.Input = args[0]
	}
	if loadFormat != "" {
		cfg.Load.Format = loadFormat
	}
	if loadSheet != "" {
		cfg.Load.Sheet = loadSheet
	}
	if loadDelimiter != "" {
		cfg.Load.Delimiter = loadDelimiter
	}
	if loadBatchSize > 0 {
		cfg.Load.BatchSize = loadBatchSize
	}
	if loadKeyResolution != "" {
		cfg.Load.KeyResolution = loadKeyResolution
	}
	if loadOnLookupMiss != "" {
		cfg.Load.OnLookupMiss = loadOnLookupMiss
	}
	if loadNoRecordRun {
		cfg.Load.RecordRun = false
	}
	if loadProgressInterval > 0 {
		cfg.Load.ProgressInterval = loadProgressInterval
	}

	// Validate configuration
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logging.Info().
		Str("input", cfg.Load.Input).
		Int("batch_size", cfg.Load.BatchSize).
		Str("key_resolution", cfg.Load.KeyResolution).
		Str("on_lookup_miss", cfg.Load.OnLookupMiss).
		Msg("Reading export")

	// Source errors abort before anything is written
	raw, err := source.ReadFile(cfg.Load.Input, source.Options{
		Format:    cfg.Load.Format,
		Sheet:     cfg.Load.Sheet,
		Delimiter: []rune(cfg.Load.Delimiter)[0],
	})
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	runID := uuid.Nil
	if cfg.Load.RecordRun {
		runID, err = db.StartRun(ctx, pool, filepath.Base(cfg.Load.Input))
		if err != nil {
			return err
		}
	}

	pipeline := etl.NewPipeline(etl.OptionsFromConfig(cfg.Load))
	summary, runErr := pipeline.Run(ctx, pool, raw)

	if runID != uuid.Nil {
		counts := db.RunCounts{
			RowsRead:      summary.RowsRead,
			RowsCleaned:   summary.RowsCleaned,
			RowsSkipped:   summary.RowsSkipped(),
			FactsInserted: int(summary.FactsCommitted()),
		}
		// Record the outcome even when the load was interrupted.
		if err := db.FinishRun(context.WithoutCancel(ctx), pool, runID, counts, runErr); err != nil {
			logging.Warn().Err(err).Str("run_id", runID.String()).Msg("Failed to record run outcome")
		}
	}

	summary.Log(logging.Component("etl"))
	summary.Render(cmd.OutOrStdout())

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("load interrupted, no changes were committed: %w", runErr)
		}
		return runErr
	}

	logging.Info().
		Int64("facts", summary.FactsCommitted()).
		Msg("Load complete")
	return nil
}
