//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

const factColumns = 6

// FactStats counts the outcome of a fact load.
type FactStats struct {
	Inserted int64
	Batches  int
	Skipped  map[Dimension]int
	Misses   []*LookupMissError
}

// FactLoader resolves dimension keys for cleaned rows and appends them to
// fact_sales in multi-row batches.
type FactLoader struct {
	q                db.Querier
	resolver         KeyResolver
	batchSize        int
	onMiss           string
	progressInterval int
	log              zerolog.Logger

	buf      []any
	buffered int
	fullSQL  string
	stats    FactStats
}

// NewFactLoader creates a loader writing through q.
func NewFactLoader(q db.Querier, resolver KeyResolver, opts Options, log zerolog.Logger) *FactLoader {
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = config.DefaultConfig().Load.BatchSize
	}
	return &FactLoader{
		q:                q,
		resolver:         resolver,
		batchSize:        batchSize,
		onMiss:           opts.OnLookupMiss,
		progressInterval: opts.ProgressInterval,
		log:              log,
		buf:              make([]any, 0, batchSize*factColumns),
		fullSQL:          insertFactsSQL(batchSize),
		stats:            FactStats{Skipped: make(map[Dimension]int, len(Dimensions))},
	}
}

// Load resolves and inserts every row, flushing the final partial batch at
// the end. Under the fail policy the first miss is returned as a
// *LookupMissError.
func (l *FactLoader) Load(ctx context.Context, rows []CleanedRow) (FactStats, error) {
	for i := range rows {
		if err := l.add(ctx, &rows[i]); err != nil {
			return l.stats, err
		}
		if l.progressInterval > 0 && (i+1)%l.progressInterval == 0 {
			l.log.Info().
				Int("rows", i+1).
				Int("total", len(rows)).
				Int64("inserted", l.stats.Inserted).
				Msg("Loading facts")
		}
	}
	if err := l.flush(ctx); err != nil {
		return l.stats, err
	}
	return l.stats, nil
}

func (l *FactLoader) add(ctx context.Context, r *CleanedRow) error {
	timeID, miss, err := l.resolve(ctx, r)
	if err != nil {
		return err
	}
	if miss != nil {
		if l.onMiss == config.LookupMissFail {
			return miss
		}
		l.stats.Skipped[miss.Dimension]++
		if len(l.stats.Misses) < MaxDiagnostics {
			l.stats.Misses = append(l.stats.Misses, miss)
		}
		l.log.Debug().Err(miss).Msg("Skipping fact row")
		return nil
	}

	l.buf = append(l.buf,
		r.InvoiceNo, r.CustomerID, r.StockCode, timeID, r.Quantity, r.TotalAmount.String())
	l.buffered++
	if l.buffered >= l.batchSize {
		return l.flush(ctx)
	}
	return nil
}

// resolve checks time, customer and product in that order and reports the
// first dimension that misses.
func (l *FactLoader) resolve(ctx context.Context, r *CleanedRow) (int32, *LookupMissError, error) {
	missing := func(dim Dimension, key string) *LookupMissError {
		return &LookupMissError{Line: r.Line, InvoiceNo: r.InvoiceNo, Dimension: dim, Key: key}
	}

	timeID, ok, err := l.resolver.TimeID(ctx, r.Date())
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, missing(DimTime, dateKey(r.Date())), nil
	}

	ok, err = l.resolver.HasCustomer(ctx, r.CustomerID)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, missing(DimCustomer, strconv.FormatInt(r.CustomerID, 10)), nil
	}

	ok, err = l.resolver.HasProduct(ctx, r.StockCode)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, missing(DimProduct, r.StockCode), nil
	}

	return timeID, nil, nil
}

func (l *FactLoader) flush(ctx context.Context) error {
	if l.buffered == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sql := l.fullSQL
	if l.buffered != l.batchSize {
		sql = insertFactsSQL(l.buffered)
	}

	tag, err := l.q.Exec(ctx, sql, l.buf...)
	if err != nil {
		return storeErr("insert fact_sales", err)
	}
	if tag.RowsAffected() != int64(l.buffered) {
		return storeErr("insert fact_sales", fmt.Errorf("inserted %d of %d rows",
			tag.RowsAffected(), l.buffered))
	}

	l.stats.Inserted += int64(l.buffered)
	l.stats.Batches++
	l.log.Debug().
		Int("batch", l.stats.Batches).
		Int("rows", l.buffered).
		Int64("inserted", l.stats.Inserted).
		Msg("Flushed fact batch")

	l.buf = l.buf[:0]
	l.buffered = 0
	return nil
}

// insertFactsSQL builds a parameterised insert of n fact rows.
func insertFactsSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO fact_sales (invoice_no, customer_id, product_id, time_id, quantity, total_amount) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i * factColumns
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d::numeric)",
			p+1, p+2, p+3, p+4, p+5, p+6)
	}
	return b.String()
}
