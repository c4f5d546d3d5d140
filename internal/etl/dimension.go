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
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

// Customer is a dim_customer row keyed by the source CustomerID.
type Customer struct {
	CustomerID int64
	Country    string
}

// Product is a dim_product row keyed by the source StockCode.
type Product struct {
	ProductID   string
	Description string
	UnitPrice   decimal.Decimal
}

// TimeDay is a dim_time row keyed by calendar date. The surrogate time_id
// is assigned by the store.
type TimeDay struct {
	InvoiceDate time.Time
	Month       int
	Year        int
}

// DimensionSet holds the derived rows of all three dimensions.
type DimensionSet struct {
	Customers []Customer
	Products  []Product
	Dates     []TimeDay
}

// dedupeLast keeps one value per key. Keys are ordered by first appearance
// and each carries the attributes of its last occurrence.
func dedupeLast[K comparable, V any](rows []CleanedRow, key func(CleanedRow) K, project func(CleanedRow) V) []V {
	index := make(map[K]int)
	out := make([]V, 0)
	for _, r := range rows {
		k := key(r)
		if i, ok := index[k]; ok {
			out[i] = project(r)
			continue
		}
		index[k] = len(out)
		out = append(out, project(r))
	}
	return out
}

// DeriveCustomers projects the cleaned rows onto the customer dimension.
func DeriveCustomers(rows []CleanedRow) []Customer {
	return dedupeLast(rows,
		func(r CleanedRow) int64 { return r.CustomerID },
		func(r CleanedRow) Customer {
			return Customer{CustomerID: r.CustomerID, Country: r.Country}
		})
}

// DeriveProducts projects the cleaned rows onto the product dimension.
func DeriveProducts(rows []CleanedRow) []Product {
	return dedupeLast(rows,
		func(r CleanedRow) string { return r.StockCode },
		func(r CleanedRow) Product {
			return Product{ProductID: r.StockCode, Description: r.Description, UnitPrice: r.UnitPrice}
		})
}

// DeriveDates projects the cleaned rows onto the time dimension.
func DeriveDates(rows []CleanedRow) []TimeDay {
	return dedupeLast(rows,
		func(r CleanedRow) time.Time { return r.Date() },
		func(r CleanedRow) TimeDay {
			d := r.Date()
			return TimeDay{InvoiceDate: d, Month: int(d.Month()), Year: d.Year()}
		})
}

// DeriveDimensions derives the three dimensions concurrently. The cleaned
// table is only read.
func DeriveDimensions(ctx context.Context, table *CleanedTable) (*DimensionSet, error) {
	set := &DimensionSet{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		set.Customers = DeriveCustomers(table.Rows)
		return ctx.Err()
	})
	g.Go(func() error {
		set.Products = DeriveProducts(table.Rows)
		return ctx.Err()
	})
	g.Go(func() error {
		set.Dates = DeriveDates(table.Rows)
		return ctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

const upsertCustomersSQL = `
INSERT INTO dim_customer (customer_id, country)
SELECT u.customer_id, u.country
FROM unnest($1::bigint[], $2::text[]) AS u(customer_id, country)
ON CONFLICT (customer_id) DO UPDATE
SET country = EXCLUDED.country`

const upsertProductsSQL = `
INSERT INTO dim_product (product_id, description, unit_price)
SELECT u.product_id, u.description, u.unit_price::numeric
FROM unnest($1::text[], $2::text[], $3::text[]) AS u(product_id, description, unit_price)
ON CONFLICT (product_id) DO UPDATE
SET description = EXCLUDED.description,
    unit_price = EXCLUDED.unit_price`

const upsertDatesSQL = `
INSERT INTO dim_time (invoice_date, month, year)
SELECT u.invoice_date, u.month, u.year
FROM unnest($1::date[], $2::int[], $3::int[]) AS u(invoice_date, month, year)
ON CONFLICT (invoice_date) DO UPDATE
SET month = EXCLUDED.month,
    year = EXCLUDED.year`

// UpsertCustomers inserts or updates customers, chunkSize keys per
// statement. It returns the number of rows written.
func UpsertCustomers(ctx context.Context, q db.Querier, customers []Customer, chunkSize int) (int64, error) {
	return upsertChunks(ctx, q, "upsert dim_customer", customers, chunkSize,
		func(chunk []Customer) (string, []any) {
			ids := make([]int64, len(chunk))
			countries := make([]string, len(chunk))
			for i, c := range chunk {
				ids[i] = c.CustomerID
				countries[i] = c.Country
			}
			return upsertCustomersSQL, []any{ids, countries}
		})
}

// UpsertProducts inserts or updates products, chunkSize keys per statement.
func UpsertProducts(ctx context.Context, q db.Querier, products []Product, chunkSize int) (int64, error) {
	return upsertChunks(ctx, q, "upsert dim_product", products, chunkSize,
		func(chunk []Product) (string, []any) {
			ids := make([]string, len(chunk))
			descriptions := make([]string, len(chunk))
			prices := make([]string, len(chunk))
			for i, p := range chunk {
				ids[i] = p.ProductID
				descriptions[i] = p.Description
				prices[i] = p.UnitPrice.String()
			}
			return upsertProductsSQL, []any{ids, descriptions, prices}
		})
}

// UpsertDates inserts or updates calendar dates, chunkSize keys per
// statement.
func UpsertDates(ctx context.Context, q db.Querier, dates []TimeDay, chunkSize int) (int64, error) {
	return upsertChunks(ctx, q, "upsert dim_time", dates, chunkSize,
		func(chunk []TimeDay) (string, []any) {
			days := make([]time.Time, len(chunk))
			months := make([]int32, len(chunk))
			years := make([]int32, len(chunk))
			for i, d := range chunk {
				days[i] = d.InvoiceDate
				months[i] = int32(d.Month)
				years[i] = int32(d.Year)
			}
			return upsertDatesSQL, []any{days, months, years}
		})
}

func upsertChunks[T any](ctx context.Context, q db.Querier, op string, rows []T, chunkSize int,
	build func([]T) (string, []any)) (int64, error) {
	if chunkSize < 1 {
		chunkSize = len(rows)
	}

	var written int64
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		sql, args := build(rows[start:end])
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return written, storeErr(op, err)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}
