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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

// invoice536365 returns the first lines of the export plus a return and a
// line without a customer.
func invoice536365() *source.RawTable {
	lantern := rawRow(2, "536365", "71053", 6, "3.39", "12/1/2010 8:26")
	lantern.Description = "WHITE METAL LANTERN"
	hanger := rawRow(3, "536365", "84406B", 8, "2.75", "12/1/2010 8:26")
	hanger.Description = "CREAM CUPID HEARTS COAT HANGER"
	ret := rawRow(4, "C536379", "D", -1, "27.50", "12/1/2010 9:41")
	anon := rawRow(5, "536414", "22139", 56, "0.01", "12/1/2010 11:52")
	anon.CustomerID = nil

	return &source.RawTable{
		Source: "Online_Retail.csv",
		Rows:   []source.RawRow{lantern, hanger, ret, anon},
	}
}

func expectDimensionUpserts(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(upsertPattern("dim_customer", "customer_id")).
		WithArgs([]int64{17850}, []string{"United Kingdom"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(upsertPattern("dim_product", "product_id")).
		WithArgs(
			[]string{"71053", "84406B"},
			[]string{"WHITE METAL LANTERN", "CREAM CUPID HEARTS COAT HANGER"},
			[]string{"3.39", "2.75"},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(upsertPattern("dim_time", "invoice_date")).
		WithArgs([]time.Time{time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)}, []int32{12}, []int32{2010}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func expectKeyPreload(mock pgxmock.PgxPoolIface, customers ...int64) {
	mock.ExpectQuery("SELECT invoice_date, time_id FROM dim_time").
		WillReturnRows(pgxmock.NewRows([]string{"invoice_date", "time_id"}).
			AddRow(time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC), int32(1)))
	found := pgxmock.NewRows([]string{"customer_id"})
	for _, c := range customers {
		found.AddRow(c)
	}
	mock.ExpectQuery("SELECT customer_id FROM dim_customer").WillReturnRows(found)
	mock.ExpectQuery("SELECT product_id FROM dim_product").
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("71053").AddRow("84406B"))
}

func TestPipelineRunCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	expectDimensionUpserts(mock)
	expectKeyPreload(mock, 17850)
	mock.ExpectExec("INSERT INTO fact_sales").
		WithArgs(
			"536365", int64(17850), "71053", int32(1), int64(6), "20.34",
			"536365", int64(17850), "84406B", int32(1), int64(8), "22",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	p := NewPipeline(testOptions(100, config.LookupMissSkip))
	summary, err := p.Run(context.Background(), mock, invoice536365())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !summary.Committed {
		t.Error("expected the run to commit")
	}
	if summary.RowsRead != 4 || summary.RowsCleaned != 2 || summary.RowsDropped() != 2 {
		t.Errorf("read/cleaned/dropped = %d/%d/%d, want 4/2/2",
			summary.RowsRead, summary.RowsCleaned, summary.RowsDropped())
	}
	if summary.Dropped[DropNonPositiveQty] != 1 || summary.Dropped[DropMissingCustomer] != 1 {
		t.Errorf("Dropped = %v", summary.Dropped)
	}
	if summary.FactsCommitted() != 2 || summary.Batches != 1 {
		t.Errorf("facts/batches = %d/%d, want 2/1", summary.FactsCommitted(), summary.Batches)
	}
	if summary.CustomersUpserted != 1 || summary.ProductsUpserted != 2 || summary.DatesUpserted != 1 {
		t.Errorf("unexpected upsert counts: %+v", summary)
	}
	if len(summary.Diagnostics) != 2 {
		t.Errorf("expected 2 diagnostics, got %d", len(summary.Diagnostics))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineRollsBackOnLastBatchFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	expectDimensionUpserts(mock)
	expectKeyPreload(mock, 17850)
	mock.ExpectExec("INSERT INTO fact_sales").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO fact_sales").
		WillReturnError(errors.New("could not extend file"))
	mock.ExpectRollback()

	p := NewPipeline(testOptions(1, config.LookupMissSkip))
	summary, err := p.Run(context.Background(), mock, invoice536365())

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %v", err)
	}
	if summary.Committed || summary.FactsCommitted() != 0 {
		t.Errorf("no facts may be committed after a rollback, got %d", summary.FactsCommitted())
	}
	if summary.FactsInserted != 1 {
		t.Errorf("FactsInserted = %d, want 1 before the failure", summary.FactsInserted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineFailPolicyRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	expectDimensionUpserts(mock)
	expectKeyPreload(mock)
	mock.ExpectRollback()

	p := NewPipeline(testOptions(100, config.LookupMissFail))
	summary, err := p.Run(context.Background(), mock, invoice536365())

	var miss *LookupMissError
	if !errors.As(err, &miss) {
		t.Fatalf("expected *LookupMissError, got %v", err)
	}
	if miss.Dimension != DimCustomer || miss.Key != "17850" || miss.Line != 2 {
		t.Errorf("unexpected miss: %+v", miss)
	}
	if summary.Committed {
		t.Error("run must not commit")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineSkipPolicyCommitsRemainder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	expectDimensionUpserts(mock)
	expectKeyPreload(mock)
	mock.ExpectCommit()

	p := NewPipeline(testOptions(100, config.LookupMissSkip))
	summary, err := p.Run(context.Background(), mock, invoice536365())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Skipped[DimCustomer] != 2 || summary.RowsSkipped() != 2 {
		t.Errorf("Skipped = %v, want 2 customer misses", summary.Skipped)
	}
	if summary.FactsCommitted() != 0 || summary.Batches != 0 {
		t.Errorf("facts/batches = %d/%d, want 0/0", summary.FactsCommitted(), summary.Batches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineRollbackLogging(t *testing.T) {
	tests := []struct {
		name        string
		rollbackErr error
		want        string
		notWant     []string
	}{
		{"rolled back", nil, "Run rolled back", []string{"Rollback failed"}},
		{"already closed", pgx.ErrTxClosed, "", []string{"Run rolled back", "Rollback failed"}},
		{"rollback error", errors.New("conn busy"), "Rollback failed", []string{"Run rolled back"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("Failed to create mock: %v", err)
			}
			defer mock.Close()

			mock.ExpectBegin()
			mock.ExpectExec(upsertPattern("dim_customer", "customer_id")).
				WillReturnError(errors.New("connection reset"))
			rb := mock.ExpectRollback()
			if tt.rollbackErr != nil {
				rb.WillReturnError(tt.rollbackErr)
			}

			var buf bytes.Buffer
			p := NewPipeline(testOptions(100, config.LookupMissSkip))
			p.log = zerolog.New(&buf)

			if _, err := p.Run(context.Background(), mock, invoice536365()); err == nil {
				t.Fatal("expected the run to fail")
			}

			out := buf.String()
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("log missing %q:\n%s", tt.want, out)
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("log should not contain %q:\n%s", s, out)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Unmet expectations: %v", err)
			}
		})
	}
}

func TestPipelineParseErrorBeforeWrites(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	raw := invoice536365()
	raw.Rows[1].InvoiceDate = "31/31/2010"

	p := NewPipeline(testOptions(100, config.LookupMissSkip))
	summary, err := p.Run(context.Background(), mock, raw)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if summary == nil || summary.Committed {
		t.Error("expected an uncommitted summary")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineBeginFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	p := NewPipeline(testOptions(100, config.LookupMissSkip))
	_, err = p.Run(context.Background(), mock, invoice536365())

	var se *StoreError
	if !errors.As(err, &se) || se.Op != "begin" {
		t.Errorf("expected begin StoreError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestPipelineCommitFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	expectDimensionUpserts(mock)
	expectKeyPreload(mock, 17850)
	mock.ExpectExec("INSERT INTO fact_sales").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	p := NewPipeline(testOptions(100, config.LookupMissSkip))
	summary, err := p.Run(context.Background(), mock, invoice536365())

	var se *StoreError
	if !errors.As(err, &se) || se.Op != "commit" {
		t.Errorf("expected commit StoreError, got %v", err)
	}
	if summary.FactsCommitted() != 0 {
		t.Errorf("FactsCommitted = %d, want 0", summary.FactsCommitted())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSummaryRender(t *testing.T) {
	s := newSummary("Online_Retail.csv")
	s.RowsRead = 4
	s.RowsCleaned = 2
	s.Dropped[DropDuplicate] = 2
	s.Skipped[DimProduct] = 1
	s.FactsInserted = 1
	s.Committed = true

	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()

	for _, want := range []string{"Online_Retail.csv", "rows read", "dropped.duplicate", "skipped.product", "facts committed"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dropped.missing_customer_id") {
		t.Error("zero drop reasons should be omitted")
	}
}
