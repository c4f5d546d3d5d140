//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package source reads a retail transaction export (CSV or XLSX) into an
// in-memory table of raw order lines.
package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Export column names, in the order the Online Retail export uses them.
const (
	ColInvoiceNo   = "InvoiceNo"
	ColStockCode   = "StockCode"
	ColDescription = "Description"
	ColQuantity    = "Quantity"
	ColInvoiceDate = "InvoiceDate"
	ColUnitPrice   = "UnitPrice"
	ColCustomerID  = "CustomerID"
	ColCountry     = "Country"
)

// Columns lists every column a valid export must carry.
var Columns = []string{
	ColInvoiceNo, ColStockCode, ColDescription, ColQuantity,
	ColInvoiceDate, ColUnitPrice, ColCustomerID, ColCountry,
}

// ErrMissingColumn is wrapped by ParseError when the header lacks a column.
var ErrMissingColumn = errors.New("missing required column")

// ErrEmptyInput is returned when the export has no header row.
var ErrEmptyInput = errors.New("input has no header row")

// RawRow is one order line as read from the export. Optional numeric
// fields are nil when the cell is blank.
type RawRow struct {
	// Line is the 1-based line (or sheet row) number, header included.
	Line        int
	InvoiceNo   string
	CustomerID  *int64
	StockCode   string
	Description string
	UnitPrice   *decimal.Decimal
	Quantity    *int64
	InvoiceDate string
	Country     string
}

// RawTable is the whole export held in memory.
type RawTable struct {
	Source string
	Rows   []RawRow
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	return len(t.Rows)
}

// ParseError reports input that cannot be interpreted. It is fatal for a run
// and is always raised before anything is written to the warehouse.
type ParseError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse error in %s", e.Source)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %s", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
