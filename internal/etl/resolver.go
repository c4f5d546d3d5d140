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
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

// KeyResolver maps the natural keys of a cleaned row onto stored
// dimension rows. A miss is reported as ok == false, never as an error.
type KeyResolver interface {
	TimeID(ctx context.Context, date time.Time) (id int32, ok bool, err error)
	HasCustomer(ctx context.Context, customerID int64) (bool, error)
	HasProduct(ctx context.Context, productID string) (bool, error)
}

// NewKeyResolver returns the resolver for the named strategy.
func NewKeyResolver(ctx context.Context, q db.Querier, strategy string, dims *DimensionSet) (KeyResolver, error) {
	switch strategy {
	case config.KeyResolutionPreload, "":
		return PreloadKeys(ctx, q, dims)
	case config.KeyResolutionLookup:
		return &LookupResolver{q: q}, nil
	default:
		return nil, fmt.Errorf("unknown key resolution strategy: %s", strategy)
	}
}

// PreloadResolver answers lookups from key maps loaded once per run.
type PreloadResolver struct {
	times     map[string]int32
	customers map[int64]struct{}
	products  map[string]struct{}
}

// PreloadKeys reads the stored keys of every dimension row the extract
// references.
func PreloadKeys(ctx context.Context, q db.Querier, dims *DimensionSet) (*PreloadResolver, error) {
	r := &PreloadResolver{
		times:     make(map[string]int32, len(dims.Dates)),
		customers: make(map[int64]struct{}, len(dims.Customers)),
		products:  make(map[string]struct{}, len(dims.Products)),
	}

	dates := make([]time.Time, len(dims.Dates))
	for i, d := range dims.Dates {
		dates[i] = d.InvoiceDate
	}
	rows, err := q.Query(ctx,
		`SELECT invoice_date, time_id FROM dim_time WHERE invoice_date = ANY($1::date[])`, dates)
	if err != nil {
		return nil, storeErr("preload dim_time", err)
	}
	var (
		day time.Time
		id  int32
	)
	_, err = pgx.ForEachRow(rows, []any{&day, &id}, func() error {
		r.times[dateKey(day)] = id
		return nil
	})
	if err != nil {
		return nil, storeErr("preload dim_time", err)
	}

	customerIDs := make([]int64, len(dims.Customers))
	for i, c := range dims.Customers {
		customerIDs[i] = c.CustomerID
	}
	rows, err = q.Query(ctx,
		`SELECT customer_id FROM dim_customer WHERE customer_id = ANY($1::bigint[])`, customerIDs)
	if err != nil {
		return nil, storeErr("preload dim_customer", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, storeErr("preload dim_customer", err)
	}
	for _, c := range found {
		r.customers[c] = struct{}{}
	}

	productIDs := make([]string, len(dims.Products))
	for i, p := range dims.Products {
		productIDs[i] = p.ProductID
	}
	rows, err = q.Query(ctx,
		`SELECT product_id FROM dim_product WHERE product_id = ANY($1::text[])`, productIDs)
	if err != nil {
		return nil, storeErr("preload dim_product", err)
	}
	stored, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("preload dim_product", err)
	}
	for _, p := range stored {
		r.products[p] = struct{}{}
	}

	return r, nil
}

func (r *PreloadResolver) TimeID(_ context.Context, date time.Time) (int32, bool, error) {
	id, ok := r.times[dateKey(date)]
	return id, ok, nil
}

func (r *PreloadResolver) HasCustomer(_ context.Context, customerID int64) (bool, error) {
	_, ok := r.customers[customerID]
	return ok, nil
}

func (r *PreloadResolver) HasProduct(_ context.Context, productID string) (bool, error) {
	_, ok := r.products[productID]
	return ok, nil
}

// LookupResolver issues one query per dimension per row.
type LookupResolver struct {
	q db.Querier
}

func (r *LookupResolver) TimeID(ctx context.Context, date time.Time) (int32, bool, error) {
	var id int32
	err := r.q.QueryRow(ctx, `SELECT time_id FROM dim_time WHERE invoice_date = $1`, date).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr("lookup dim_time", err)
	}
	return id, true, nil
}

func (r *LookupResolver) HasCustomer(ctx context.Context, customerID int64) (bool, error) {
	return r.exists(ctx, "lookup dim_customer",
		`SELECT 1 FROM dim_customer WHERE customer_id = $1`, customerID)
}

func (r *LookupResolver) HasProduct(ctx context.Context, productID string) (bool, error) {
	return r.exists(ctx, "lookup dim_product",
		`SELECT 1 FROM dim_product WHERE product_id = $1`, productID)
}

func (r *LookupResolver) exists(ctx context.Context, op, sql string, key any) (bool, error) {
	var one int32
	err := r.q.QueryRow(ctx, sql, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(op, err)
	}
	return true, nil
}

func dateKey(t time.Time) string {
	return t.Format(config.DateLayout)
}
