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

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the warehouse schema",
	Long: `Apply the embedded schema migrations that create the star schema
(dim_customer, dim_product, dim_time, fact_sales) and the etl_runs log.
Running init on an up-to-date warehouse is a no-op.

Example:
  pgedge-retail-etl init --connection "postgres://..."
  pgedge-retail-etl init --drop-existing --connection "postgres://..."`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop the warehouse tables (and all loaded data) before migrating")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if initDropExisting {
		cfg.Init.DropExisting = true
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler, err := db.NewMigrationHandler(cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := handler.Close(); err != nil {
			logging.Debug().Err(err).Msg("Failed to close migration handler")
		}
	}()

	// Drop existing schema if requested
	if cfg.Init.DropExisting {
		logging.Warn().Msg("Dropping existing warehouse schema")
		if err := handler.Down(); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	logging.Info().Msg("Applying schema migrations")
	if err := handler.Up(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	v, dirty, err := handler.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logging.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("Warehouse initialization complete")

	return nil
}
