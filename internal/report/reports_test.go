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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
)

var (
	from = time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2011, 12, 9, 0, 0, 0, 0, time.UTC)
)

func testFilter() Filter {
	return Filter{From: from, To: to, Limit: 10, Horizon: 2}
}

func runReport(t *testing.T, name string, f Filter, expect func(pgxmock.PgxPoolIface)) *Result {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()
	expect(mock)

	r, err := Get(name)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", name, err)
	}
	res, err := r.Run(context.Background(), mock, f)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
	return res
}

func TestRegisteredReports(t *testing.T) {
	want := []string{
		CustomerRFM, DailySales, MonthlySales, ProductSales,
		SalesByCountry, TopProducts, TotalSales,
	}

	got := List()
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
		r, err := Get(want[i])
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", want[i], err)
		}
		if r.Description() == "" {
			t.Errorf("report %s has no description", want[i])
		}
	}
}

func TestGetUnknownReport(t *testing.T) {
	if _, err := Get("forecast_everything"); err == nil {
		t.Error("expected error for unknown report")
	}
}

func TestTotalSales(t *testing.T) {
	f := testFilter()
	f.Country = "United Kingdom"

	res := runReport(t, TotalSales, f, func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("SUM\\(f.total_amount\\)").
			WithArgs(from, to, "United Kingdom", int64(0), "").
			WillReturnRows(pgxmock.NewRows([]string{"total_sales", "lines", "invoices"}).
				AddRow("42.34", int64(2), int64(1)))
	})

	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if got := res.Rows[0]; got[0] != "42.34" || got[1] != "2" || got[2] != "1" {
		t.Errorf("row = %v", got)
	}
	if !strings.Contains(res.Title, "2010-12-01 to 2011-12-09") {
		t.Errorf("Title = %q", res.Title)
	}
}

func TestTopProducts(t *testing.T) {
	res := runReport(t, TopProducts, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("ORDER BY total_quantity DESC").
			WithArgs(from, to, "", int64(0), "", 10).
			WillReturnRows(pgxmock.NewRows([]string{"product_id", "description", "total_quantity"}).
				AddRow("84077", "WORLD WAR 2 GLIDERS ASSTD DESIGNS", int64(53847)).
				AddRow("85123A", "WHITE HANGING HEART T-LIGHT HOLDER", int64(38830)))
	})

	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][0] != "84077" || res.Rows[0][2] != "53847" {
		t.Errorf("first row = %v", res.Rows[0])
	}
}

func TestSalesByCountry(t *testing.T) {
	res := runReport(t, SalesByCountry, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("GROUP BY c.country").
			WithArgs(from, to, "", int64(0), "").
			WillReturnRows(pgxmock.NewRows([]string{"country", "total_sales"}).
				AddRow("United Kingdom", "7308391.554").
				AddRow("Netherlands", "285446.34"))
	})

	want := [][]string{{"United Kingdom", "7308391.55"}, {"Netherlands", "285446.34"}}
	for i := range want {
		if res.Rows[i][0] != want[i][0] || res.Rows[i][1] != want[i][1] {
			t.Errorf("row %d = %v, want %v", i, res.Rows[i], want[i])
		}
	}
}

func TestDailySales(t *testing.T) {
	f := testFilter()
	f.CustomerID = 17850
	f.ProductID = "71053"

	res := runReport(t, DailySales, f, func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("GROUP BY t.invoice_date").
			WithArgs(from, to, "", int64(17850), "71053").
			WillReturnRows(pgxmock.NewRows([]string{"invoice_date", "total_sales"}).
				AddRow(from, "20.34").
				AddRow(from.AddDate(0, 0, 1), "20.3"))
	})

	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[1][0] != "2010-12-02" || res.Rows[1][1] != "20.30" {
		t.Errorf("second row = %v", res.Rows[1])
	}
}

func TestProductSales(t *testing.T) {
	res := runReport(t, ProductSales, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("GROUP BY p.product_id, p.description").
			WithArgs(from, to, "", int64(0), "", 10).
			WillReturnRows(pgxmock.NewRows([]string{"description", "total_sales"}).
				AddRow("REGENCY CAKESTAND 3 TIER", "142592.95"))
	})

	if len(res.Rows) != 1 || res.Rows[0][1] != "142592.95" {
		t.Errorf("rows = %v", res.Rows)
	}
}

func TestCustomerRFM(t *testing.T) {
	last := to.AddDate(0, 0, -3)
	res := runReport(t, CustomerRFM, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("MAX\\(t.invoice_date\\) AS last_purchase").
			WithArgs(from, to, "", int64(0), "", 10).
			WillReturnRows(pgxmock.NewRows([]string{"customer_id", "country", "total_spent", "frequency", "last_purchase"}).
				AddRow(int64(14646), "Netherlands", "280206.02", int64(2076), last))
	})

	want := []string{"14646", "Netherlands", "280206.02", "2076", "2011-12-06", "3"}
	got := res.Rows[0]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %s = %q, want %q", res.Columns[i], got[i], want[i])
		}
	}
}

func TestMonthlySalesForecast(t *testing.T) {
	res := runReport(t, MonthlySales, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("date_trunc\\('month', t.invoice_date\\)").
			WithArgs(from, to, "", int64(0), "").
			WillReturnRows(pgxmock.NewRows([]string{"month", "total_sales"}).
				AddRow(time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), "100").
				AddRow(time.Date(2011, 2, 1, 0, 0, 0, 0, time.UTC), "110").
				AddRow(time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC), "120"))
	})

	want := [][]string{
		{"2011-01", "100.00", "actual"},
		{"2011-02", "110.00", "actual"},
		{"2011-03", "120.00", "actual"},
		{"2011-04", "130.00", "forecast"},
		{"2011-05", "140.00", "forecast"},
	}
	if len(res.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %v", len(res.Rows), len(want), res.Rows)
	}
	for i := range want {
		for j := range want[i] {
			if res.Rows[i][j] != want[i][j] {
				t.Errorf("row %d = %v, want %v", i, res.Rows[i], want[i])
				break
			}
		}
	}
	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0], "10.00 per month") {
		t.Errorf("Notes = %v", res.Notes)
	}
}

func TestMonthlySalesSingleMonth(t *testing.T) {
	res := runReport(t, MonthlySales, testFilter(), func(m pgxmock.PgxPoolIface) {
		m.ExpectQuery("date_trunc").
			WillReturnRows(pgxmock.NewRows([]string{"month", "total_sales"}).
				AddRow(time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC), "100"))
	})

	if len(res.Rows) != 1 {
		t.Errorf("expected only the actual month, got %v", res.Rows)
	}
	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0], "No forecast") {
		t.Errorf("Notes = %v", res.Notes)
	}
}

func TestReportQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("GROUP BY c.country").WillReturnError(errors.New("relation \"fact_sales\" does not exist"))

	r, _ := Get(SalesByCountry)
	if _, err := r.Run(context.Background(), mock, testFilter()); err == nil {
		t.Error("expected an error")
	} else if !strings.Contains(err.Error(), SalesByCountry) {
		t.Errorf("error should name the report: %v", err)
	}
}

func TestFilterFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Report
	cfg.From = "2010-12-01"
	cfg.To = "2011-12-09"
	cfg.Country = "France"

	f, err := FilterFromConfig(cfg)
	if err != nil {
		t.Fatalf("FilterFromConfig failed: %v", err)
	}
	if !f.From.Equal(from) || !f.To.Equal(to) || f.Country != "France" || f.Limit != 10 || f.Horizon != 3 {
		t.Errorf("unexpected filter: %+v", f)
	}

	cfg.To = "09/12/2011"
	if _, err := FilterFromConfig(cfg); err == nil {
		t.Error("expected an error for a malformed date")
	}
}

func TestResultRender(t *testing.T) {
	res := &Result{
		Title:   "sales_by_country",
		Columns: []string{"Country", "Total Sales"},
		Rows:    [][]string{{"EIRE", "263276.82"}},
		Notes:   []string{"one country"},
	}

	var buf bytes.Buffer
	res.Render(&buf)
	out := buf.String()
	for _, want := range []string{"sales_by_country", "EIRE", "263276.82", "one country"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
