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
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

// CleanedRow is an order line that passed validation. It is never mutated
// after Clean returns it.
type CleanedRow struct {
	Line        int
	InvoiceNo   string
	CustomerID  int64
	StockCode   string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int64
	InvoiceDate time.Time
	Country     string
	TotalAmount decimal.Decimal
}

// Date returns the calendar date of the invoice, the time dimension's
// natural key.
func (r CleanedRow) Date() time.Time {
	return CalendarDate(r.InvoiceDate)
}

// CleanedTable is the fact-ready table produced by Clean.
type CleanedTable struct {
	Source string
	Rows   []CleanedRow
}

// CleanStats counts what cleaning kept and dropped.
type CleanStats struct {
	Read    int
	Cleaned int
	Dropped map[DropReason]int

	// Diagnostics holds the first MaxDiagnostics drops.
	Diagnostics []*ValidationError
}

// MaxDiagnostics caps the per-row diagnostics kept in memory.
const MaxDiagnostics = 1000

// Accepted textual invoice date layouts, tried in order.
var invoiceDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06 15:04",
	"1/2/2006",
}

// Spreadsheet serials beyond this are past year 9999.
const maxSpreadsheetSerial = 2958465

var errUnknownDateLayout = errors.New("unrecognised date/time format")

// ParseInvoiceDate parses an invoice timestamp from text or a spreadsheet
// serial number. The result is wall-clock time in UTC.
func ParseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 || serial > maxSpreadsheetSerial {
			return time.Time{}, errors.New("spreadsheet serial out of range")
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		// Serials carry floating point noise; the export has minute resolution.
		return t.UTC().Round(time.Second), nil
	}

	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Location() != time.UTC {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(),
					t.Second(), t.Nanosecond(), time.UTC)
			}
			return t, nil
		}
	}
	return time.Time{}, errUnknownDateLayout
}

// CalendarDate truncates a timestamp to midnight UTC of its date.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clean filters and normalizes the raw table. Rows are dropped, in this
// order, for a missing customer or invoice identifier, for being an exact
// duplicate of an earlier row, and for a non-positive quantity or price.
// An invoice date that cannot be parsed fails the whole run.
func Clean(raw *source.RawTable) (*CleanedTable, CleanStats, error) {
	stats := CleanStats{
		Read:    raw.Len(),
		Dropped: make(map[DropReason]int, len(DropReasons)),
	}
	drop := func(line int, reason DropReason) {
		stats.Dropped[reason]++
		if len(stats.Diagnostics) < MaxDiagnostics {
			stats.Diagnostics = append(stats.Diagnostics, &ValidationError{Line: line, Reason: reason})
		}
	}

	seen := make(map[string]struct{}, len(raw.Rows))
	out := &CleanedTable{
		Source: raw.Source,
		Rows:   make([]CleanedRow, 0, len(raw.Rows)),
	}

	for _, r := range raw.Rows {
		if r.CustomerID == nil {
			drop(r.Line, DropMissingCustomer)
			continue
		}
		if r.InvoiceNo == "" {
			drop(r.Line, DropMissingInvoice)
			continue
		}

		key := rowKey(r)
		if _, dup := seen[key]; dup {
			drop(r.Line, DropDuplicate)
			continue
		}
		seen[key] = struct{}{}

		if r.Quantity == nil || *r.Quantity <= 0 {
			drop(r.Line, DropNonPositiveQty)
			continue
		}
		if r.UnitPrice == nil || !r.UnitPrice.IsPositive() {
			drop(r.Line, DropNonPositivePrice)
			continue
		}

		ts, err := ParseInvoiceDate(r.InvoiceDate)
		if err != nil {
			return nil, stats, &ParseError{
				Source: raw.Source,
				Line:   r.Line,
				Column: source.ColInvoiceDate,
				Value:  r.InvoiceDate,
				Err:    err,
			}
		}

		out.Rows = append(out.Rows, CleanedRow{
			Line:        r.Line,
			InvoiceNo:   r.InvoiceNo,
			CustomerID:  *r.CustomerID,
			StockCode:   r.StockCode,
			Description: r.Description,
			UnitPrice:   *r.UnitPrice,
			Quantity:    *r.Quantity,
			InvoiceDate: ts,
			Country:     r.Country,
			TotalAmount: r.UnitPrice.Mul(decimal.NewFromInt(*r.Quantity)),
		})
	}

	stats.Cleaned = len(out.Rows)
	return out, stats, nil
}

// rowKey identifies a row by all of its source columns for duplicate
// detection.
func rowKey(r source.RawRow) string {
	const null = "\x00"
	customer, quantity, price := null, null, null
	if r.CustomerID != nil {
		customer = strconv.FormatInt(*r.CustomerID, 10)
	}
	if r.Quantity != nil {
		quantity = strconv.FormatInt(*r.Quantity, 10)
	}
	if r.UnitPrice != nil {
		// 3.39 and 3.390 are the same price.
		price = r.UnitPrice.String()
	}
	return strings.Join([]string{
		r.InvoiceNo, customer, r.StockCode, r.Description,
		price, quantity, r.InvoiceDate, r.Country,
	}, "\x1f")
}
