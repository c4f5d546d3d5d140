//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/db"
)

// factScope joins a fact to its dimensions and applies the Filter. The
// optional filters are disabled by their zero values.
const factScope = `
FROM fact_sales f
JOIN dim_time t ON t.time_id = f.time_id
JOIN dim_customer c ON c.customer_id = f.customer_id
JOIN dim_product p ON p.product_id = f.product_id
WHERE t.invoice_date BETWEEN $1 AND $2
  AND ($3::text = '' OR c.country = $3)
  AND ($4::bigint = 0 OR f.customer_id = $4)
  AND ($5::text = '' OR f.product_id = $5)`

// Report names.
const (
	TotalSales     = "total_sales"
	TopProducts    = "top_products"
	SalesByCountry = "sales_by_country"
	DailySales     = "daily_sales"
	ProductSales   = "product_sales"
	CustomerRFM    = "customer_rfm"
	MonthlySales   = "monthly_sales"
)

// queryReport adapts a function to the Report interface.
type queryReport struct {
	name        string
	description string
	run         func(ctx context.Context, q db.Querier, f Filter) (*Result, error)
}

func (r *queryReport) Name() string { return r.name }
func (r *queryReport) Description() string { return r.description }

func (r *queryReport) Run(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	res, err := r.run(ctx, q, f)
	if err != nil {
		return nil, fmt.Errorf("report %s failed: %w", r.name, err)
	}
	if res.Title == "" {
		res.Title = fmt.Sprintf("%s (%s to %s)", r.name,
			f.From.Format(config.DateLayout), f.To.Format(config.DateLayout))
	}
	return res, nil
}

func runTotalSales(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	var (
		total    string
		lines    int64
		invoices int64
	)
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(f.total_amount), 0)::text AS total_sales,
       COUNT(*) AS lines,
       COUNT(DISTINCT f.invoice_no) AS invoices`+factScope, f.args()...).
		Scan(&total, &lines, &invoices)
	if err != nil {
		return nil, err
	}
	return &Result{
		Columns: []string{"Total Sales", "Lines", "Invoices"},
		Rows: [][]string{{
			money(total), strconv.FormatInt(lines, 10), strconv.FormatInt(invoices, 10),
		}},
	}, nil
}

type productQuantity struct {
	ProductID     string `db:"product_id"`
	Description   string `db:"description"`
	TotalQuantity int64  `db:"total_quantity"`
}

func runTopProducts(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT p.product_id, p.description, SUM(f.quantity)::bigint AS total_quantity`+factScope+`
GROUP BY p.product_id, p.description
ORDER BY total_quantity DESC, p.product_id
LIMIT $6`, f.args(f.Limit)...)
	if err != nil {
		return nil, err
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[productQuantity])
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: []string{"Product", "Description", "Quantity"}}
	for _, p := range products {
		res.Rows = append(res.Rows, []string{
			p.ProductID, p.Description, strconv.FormatInt(p.TotalQuantity, 10),
		})
	}
	return res, nil
}

func runSalesByCountry(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT c.country, SUM(f.total_amount)::text AS total_sales`+factScope+`
GROUP BY c.country
ORDER BY SUM(f.total_amount) DESC, c.country`, f.args()...)
	if err != nil {
		return nil, err
	}
	return collectPairs(rows, []string{"Country", "Total Sales"})
}

func runDailySales(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT t.invoice_date, SUM(f.total_amount)::text AS total_sales`+factScope+`
GROUP BY t.invoice_date
ORDER BY t.invoice_date`, f.args()...)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: []string{"Date", "Total Sales"}}
	var (
		day   time.Time
		total string
	)
	_, err = pgx.ForEachRow(rows, []any{&day, &total}, func() error {
		res.Rows = append(res.Rows, []string{day.Format(config.DateLayout), money(total)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func runProductSales(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT p.description, SUM(f.total_amount)::text AS total_sales`+factScope+`
GROUP BY p.product_id, p.description
ORDER BY SUM(f.total_amount) DESC, p.product_id
LIMIT $6`, f.args(f.Limit)...)
	if err != nil {
		return nil, err
	}
	return collectPairs(rows, []string{"Description", "Total Sales"})
}

type customerRFM struct {
	CustomerID   int64     `db:"customer_id"`
	Country      string    `db:"country"`
	TotalSpent   string    `db:"total_spent"`
	Frequency    int64     `db:"frequency"`
	LastPurchase time.Time `db:"last_purchase"`
}

// runCustomerRFM reports recency, frequency and monetary value per
// customer. Recency is counted in days up to the end of the range.
func runCustomerRFM(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT f.customer_id, c.country,
       SUM(f.total_amount)::text AS total_spent,
       COUNT(f.invoice_no) AS frequency,
       MAX(t.invoice_date) AS last_purchase`+factScope+`
GROUP BY f.customer_id, c.country
ORDER BY SUM(f.total_amount) DESC, f.customer_id
LIMIT $6`, f.args(f.Limit)...)
	if err != nil {
		return nil, err
	}
	customers, err := pgx.CollectRows(rows, pgx.RowToStructByName[customerRFM])
	if err != nil {
		return nil, err
	}

	res := &Result{
		Columns: []string{"Customer", "Country", "Total Spent", "Frequency", "Last Purchase", "Recency Days"},
	}
	for _, c := range customers {
		recency := int(f.To.Sub(c.LastPurchase).Hours() / 24)
		res.Rows = append(res.Rows, []string{
			strconv.FormatInt(c.CustomerID, 10),
			c.Country,
			money(c.TotalSpent),
			strconv.FormatInt(c.Frequency, 10),
			c.LastPurchase.Format(config.DateLayout),
			strconv.Itoa(recency),
		})
	}
	return res, nil
}

// runMonthlySales totals sales per calendar month and extends the series
// with a least-squares trend.
func runMonthlySales(ctx context.Context, q db.Querier, f Filter) (*Result, error) {
	rows, err := q.Query(ctx, `
SELECT date_trunc('month', t.invoice_date)::date AS month,
       SUM(f.total_amount)::text AS total_sales`+factScope+`
GROUP BY 1
ORDER BY 1`, f.args()...)
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: []string{"Month", "Total Sales", "Kind"}}
	var (
		months []time.Time
		sales  []float64
		month  time.Time
		total  string
	)
	_, err = pgx.ForEachRow(rows, []any{&month, &total}, func() error {
		d, err := decimal.NewFromString(total)
		if err != nil {
			return err
		}
		months = append(months, month)
		sales = append(sales, d.InexactFloat64())
		res.Rows = append(res.Rows, []string{month.Format("2006-01"), d.StringFixed(2), "actual"})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if f.Horizon == 0 {
		return res, nil
	}
	trend, err := FitTrend(sales)
	if err != nil {
		res.Notes = append(res.Notes, fmt.Sprintf("No forecast: %v", err))
		return res, nil
	}

	last := months[len(months)-1]
	for i, v := range trend.Forecast(f.Horizon) {
		res.Rows = append(res.Rows, []string{
			last.AddDate(0, i+1, 0).Format("2006-01"),
			decimal.NewFromFloat(v).StringFixed(2),
			"forecast",
		})
	}
	res.Notes = append(res.Notes, fmt.Sprintf("Trend: %.2f per month, R^2 %.3f over %d months",
		trend.Slope, trend.R2, trend.N))
	return res, nil
}

// collectPairs renders two-column label/amount rows.
func collectPairs(rows pgx.Rows, columns []string) (*Result, error) {
	res := &Result{Columns: columns}
	var label, total string
	_, err := pgx.ForEachRow(rows, []any{&label, &total}, func() error {
		res.Rows = append(res.Rows, []string{label, money(total)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// money formats a numeric text value with two decimals.
func money(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.StringFixed(2)
}

func init() {
	for _, r := range []*queryReport{
		{TotalSales, "Total sales, order lines and invoices", runTotalSales},
		{TopProducts, "Products ranked by quantity sold", runTopProducts},
		{SalesByCountry, "Sales per customer country", runSalesByCountry},
		{DailySales, "Sales per invoice date", runDailySales},
		{ProductSales, "Products ranked by sales", runProductSales},
		{CustomerRFM, "Recency, frequency and monetary value per customer", runCustomerRFM},
		{MonthlySales, "Sales per month with a linear trend forecast", runMonthlySales},
	} {
		Register(r)
	}
}
