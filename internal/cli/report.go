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
	"github.com/pgEdge/pgedge-retail-etl/internal/report"
)

var (
	reportFrom       string
	reportTo         string
	reportCountry    string
	reportCustomerID int64
	reportProductID  string
	reportLimit      int
	reportHorizon    int
)

var reportCmd = &cobra.Command{
	Use:   "report [name]",
	Short: "Run a report against the warehouse",
	Long: `Run one of the built-in reports over the facts loaded between two
invoice dates. Use 'pgedge-retail-etl reports' to list them.

Example:
  pgedge-retail-etl report total_sales --from 2010-12-01 --to 2011-12-09
  pgedge-retail-etl report top_products --from 2011-01-01 --to 2011-06-30 --limit 5
  pgedge-retail-etl report monthly_sales --from 2010-12-01 --to 2011-12-09 --horizon 6`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "",
		"first invoice date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "",
		"last invoice date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportCountry, "country", "",
		"only include customers from this country")
	reportCmd.Flags().Int64Var(&reportCustomerID, "customer-id", 0,
		"only include this customer")
	reportCmd.Flags().StringVar(&reportProductID, "product-id", "",
		"only include this stock code")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0,
		"number of rows in ranked reports")
	reportCmd.Flags().IntVar(&reportHorizon, "horizon", 0,
		"months to forecast (monthly_sales)")
}

func runReport(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if len(args) == 1 {
		cfg.Report.Name = args[0]
	}
	if reportFrom != "" {
		cfg.Report.From = reportFrom
	}
	if reportTo != "" {
		cfg.Report.To = reportTo
	}
	if reportCountry != "" {
		cfg.Report.Country = reportCountry
	}
	if reportCustomerID != 0 {
		cfg.Report.CustomerID = reportCustomerID
	}
	if reportProductID != "" {
		cfg.Report.ProductID = reportProductID
	}
	if reportLimit > 0 {
		cfg.Report.Limit = reportLimit
	}
	if cmd.Flags().Changed("horizon") {
		cfg.Report.Horizon = reportHorizon
	}

	if err := cfg.ValidateReport(); err != nil {
		return err
	}

	r, err := report.Get(cfg.Report.Name)
	if err != nil {
		return err
	}

	filter, err := report.FilterFromConfig(cfg.Report)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	logging.Debug().
		Str("report", r.Name()).
		Str("from", cfg.Report.From).
		Str("to", cfg.Report.To).
		Msg("Running report")

	result, err := r.Run(ctx, pool, filter)
	if err != nil {
		return err
	}

	result.Render(cmd.OutOrStdout())
	return nil
}
