//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package report defines the read-only aggregate reports over the
// warehouse star schema.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

// Report defines the interface that all reports must implement.
type Report interface {
	// Name returns the report identifier used on the command line.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Run executes the report's queries. It never writes.
	Run(ctx context.Context, q db.Querier, f Filter) (*Result, error)
}

// Filter restricts the facts a report aggregates. Zero values of the
// optional fields mean no restriction.
type Filter struct {
	// From and To are inclusive calendar dates.
	From time.Time
	To   time.Time

	Country    string
	CustomerID int64
	ProductID  string

	// Limit caps ranked reports.
	Limit int

	// Horizon is the number of months to forecast.
	Horizon int
}

// FilterFromConfig builds a Filter from validated report configuration.
func FilterFromConfig(cfg config.ReportConfig) (Filter, error) {
	from, err := time.Parse(config.DateLayout, cfg.From)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := time.Parse(config.DateLayout, cfg.To)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid to date: %w", err)
	}
	return Filter{
		From:       from,
		To:         to,
		Country:    cfg.Country,
		CustomerID: cfg.CustomerID,
		ProductID:  cfg.ProductID,
		Limit:      cfg.Limit,
		Horizon:    cfg.Horizon,
	}, nil
}

// args returns the bind parameters of the shared fact scope followed by
// any report-specific ones.
func (f Filter) args(extra ...any) []any {
	return append([]any{f.From, f.To, f.Country, f.CustomerID, f.ProductID}, extra...)
}

// Result holds a rendered report.
type Result struct {
	Title   string
	Columns []string
	Rows    [][]string

	// Notes are printed below the table.
	Notes []string
}

// Render writes the result as a table.
func (r *Result) Render(w io.Writer) {
	if r.Title != "" {
		fmt.Fprintln(w, r.Title)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(r.Columns)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(r.Rows)
	table.Render()

	for _, note := range r.Notes {
		fmt.Fprintln(w, note)
	}
}
