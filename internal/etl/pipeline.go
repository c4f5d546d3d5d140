//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package etl cleans a retail extract and loads it into the warehouse star
// schema inside a single transaction.
package etl

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

// Options configures a pipeline run.
type Options struct {
	BatchSize        int
	KeyResolution    string
	OnLookupMiss     string
	ProgressInterval int
}

// OptionsFromConfig copies the load settings that affect the pipeline.
func OptionsFromConfig(cfg config.LoadConfig) Options {
	return Options{
		BatchSize:        cfg.BatchSize,
		KeyResolution:    cfg.KeyResolution,
		OnLookupMiss:     cfg.OnLookupMiss,
		ProgressInterval: cfg.ProgressInterval,
	}
}

// Pipeline runs cleaning, dimension upserts and the fact load.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
}

// NewPipeline creates a pipeline with the given options.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		opts: opts,
		log:  logging.Component("etl"),
	}
}

// Run loads raw into the warehouse. All writes happen in one transaction
// begun on q; the run either commits completely or is rolled back. The
// returned summary is never nil and reflects progress up to a failure.
func (p *Pipeline) Run(ctx context.Context, q db.Querier, raw *source.RawTable) (*Summary, error) {
	started := time.Now()
	summary := newSummary(raw.Source)
	defer func() {
		summary.Duration = time.Since(started)
	}()

	cleaned, stats, err := Clean(raw)
	summary.addClean(stats)
	if err != nil {
		return summary, err
	}
	for _, d := range stats.Diagnostics {
		p.log.Debug().Err(d).Msg("Dropped row")
	}
	p.log.Info().
		Int("read", stats.Read).
		Int("cleaned", stats.Cleaned).
		Msg("Cleaned extract")

	dims, err := DeriveDimensions(ctx, cleaned)
	if err != nil {
		return summary, err
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		return summary, storeErr("begin", err)
	}
	closed := false
	defer func() {
		if closed {
			return
		}
		// The run context may already be cancelled.
		rbErr := tx.Rollback(context.WithoutCancel(ctx))
		switch {
		case rbErr == nil:
			p.log.Warn().Msg("Run rolled back")
		case !errors.Is(rbErr, pgx.ErrTxClosed):
			p.log.Warn().Err(rbErr).Msg("Rollback failed")
		}
	}()

	if err := p.upsertDimensions(ctx, tx, dims, summary); err != nil {
		return summary, err
	}

	resolver, err := NewKeyResolver(ctx, tx, p.opts.KeyResolution, dims)
	if err != nil {
		return summary, err
	}

	loader := NewFactLoader(tx, resolver, p.opts, p.log)
	facts, err := loader.Load(ctx, cleaned.Rows)
	summary.addFacts(facts)
	if err != nil {
		return summary, err
	}

	err = tx.Commit(ctx)
	closed = true
	if err != nil {
		return summary, storeErr("commit", err)
	}
	summary.Committed = true
	return summary, nil
}

func (p *Pipeline) upsertDimensions(ctx context.Context, tx pgx.Tx, dims *DimensionSet, summary *Summary) error {
	var err error
	if summary.CustomersUpserted, err = UpsertCustomers(ctx, tx, dims.Customers, p.opts.BatchSize); err != nil {
		return err
	}
	if summary.ProductsUpserted, err = UpsertProducts(ctx, tx, dims.Products, p.opts.BatchSize); err != nil {
		return err
	}
	if summary.DatesUpserted, err = UpsertDates(ctx, tx, dims.Dates, p.opts.BatchSize); err != nil {
		return err
	}
	p.log.Info().
		Int64("customers", summary.CustomersUpserted).
		Int64("products", summary.ProductsUpserted).
		Int64("dates", summary.DatesUpserted).
		Msg("Upserted dimensions")
	return nil
}
