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
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

// DropReason names why cleaning rejected a row.
type DropReason string

// Cleaning drop reasons.
const (
	DropMissingCustomer  DropReason = "missing_customer_id"
	DropMissingInvoice   DropReason = "missing_invoice_no"
	DropDuplicate        DropReason = "duplicate"
	DropNonPositiveQty   DropReason = "non_positive_quantity"
	DropNonPositivePrice DropReason = "non_positive_price"
)

// DropReasons lists every reason in reporting order.
var DropReasons = []DropReason{
	DropMissingCustomer, DropMissingInvoice, DropDuplicate,
	DropNonPositiveQty, DropNonPositivePrice,
}

// Dimension names a dimension table of the star schema.
type Dimension string

// Star schema dimensions.
const (
	DimTime     Dimension = "time"
	DimCustomer Dimension = "customer"
	DimProduct  Dimension = "product"
)

// Dimensions lists every dimension in resolution order.
var Dimensions = []Dimension{DimTime, DimCustomer, DimProduct}

// ParseError is fatal for the whole run and is raised before any write.
type ParseError = source.ParseError

// ValidationError records a row dropped by cleaning. It never aborts a run.
type ValidationError struct {
	Line   int
	Reason DropReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d dropped: %s", e.Line, e.Reason)
}

// LookupMissError records a fact row whose dimension key did not resolve.
// It is skipped under the skip policy and fatal under the fail policy.
type LookupMissError struct {
	Line      int
	InvoiceNo string
	Dimension Dimension
	Key       string
}

func (e *LookupMissError) Error() string {
	return fmt.Sprintf("line %d (invoice %s) skipped: %s key %s not found",
		e.Line, e.InvoiceNo, e.Dimension, e.Key)
}

// StoreError wraps any failure talking to the warehouse. It aborts the run
// and the transaction is rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
	if hint := e.Hint(); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Code returns the PostgreSQL SQLSTATE of the underlying error, if any.
func (e *StoreError) Code() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Hint suggests a remedy for common SQLSTATE classes.
func (e *StoreError) Hint() string {
	code := e.Code()
	switch {
	case code == "":
		return ""
	case code == pgerrcode.UndefinedTable || code == pgerrcode.UndefinedColumn:
		return "warehouse schema is missing or outdated; run 'pgedge-retail-etl init'"
	case code == pgerrcode.InsufficientPrivilege:
		return "the connecting role cannot write the warehouse tables"
	case pgerrcode.IsConnectionException(code):
		return "check the connection string and that the server is reachable"
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return "warehouse constraints differ from the expected schema"
	case code == pgerrcode.NumericValueOutOfRange:
		return "a price or amount exceeds the warehouse column precision"
	}
	return ""
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
