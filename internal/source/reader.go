//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Supported export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Options controls how an export is read.
type Options struct {
	// Format is "csv" or "xlsx"; empty detects it from the file extension.
	Format string

	// Sheet is the worksheet to read; empty reads the first sheet.
	Sheet string

	// Delimiter is the CSV field separator; zero means ','.
	Delimiter rune
}

// DetectFormat returns the export format implied by a file name.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("cannot detect format of %s; set the format explicitly", path)
	}
}

// ReadFile loads an export from disk.
func ReadFile(path string, opts Options) (*RawTable, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	switch format {
	case FormatCSV:
		return ReadCSV(f, name, opts.Delimiter)
	case FormatXLSX:
		return ReadXLSX(f, name, opts.Sheet)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ReadCSV reads a delimited export.
func ReadCSV(r io.Reader, name string, delimiter rune) (*RawTable, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Source: name, Err: ErrEmptyInput}
	}
	if err != nil {
		return nil, &ParseError{Source: name, Line: 1, Err: err}
	}

	b, err := newTableBuilder(name, header)
	if err != nil {
		return nil, err
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Source: name, Line: csvErr.StartLine, Err: csvErr.Err}
			}
			return nil, &ParseError{Source: name, Err: err}
		}
		line, _ := cr.FieldPos(0)
		if err := b.add(line, record); err != nil {
			return nil, err
		}
	}

	return b.finish(), nil
}

// ReadXLSX reads a spreadsheet export. Cells are read raw, so invoice
// dates arrive as spreadsheet serial numbers unless stored as text.
func ReadXLSX(r io.Reader, name, sheet string) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Source: name, Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &ParseError{Source: name, Err: ErrEmptyInput}
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, &ParseError{Source: name, Column: sheet, Err: err}
	}
	defer rows.Close()

	var b *tableBuilder
	line := 0
	for rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &ParseError{Source: name, Line: line, Err: err}
		}
		if b == nil {
			if b, err = newTableBuilder(name, cells); err != nil {
				return nil, err
			}
			continue
		}
		if err := b.add(line, cells); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, &ParseError{Source: name, Line: line, Err: err}
	}
	if b == nil {
		return nil, &ParseError{Source: name, Err: ErrEmptyInput}
	}

	return b.finish(), nil
}

// tableBuilder maps header positions to columns and converts records.
type tableBuilder struct {
	name  string
	index map[string]int
	rows  []RawRow
	blank int
}

func newTableBuilder(name string, header []string) (*tableBuilder, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	index := make(map[string]int, len(Columns))
	for _, col := range Columns {
		pos, ok := positions[strings.ToLower(col)]
		if !ok {
			return nil, &ParseError{Source: name, Line: 1, Column: col, Err: ErrMissingColumn}
		}
		index[col] = pos
	}

	return &tableBuilder{name: name, index: index}, nil
}

func (b *tableBuilder) cell(record []string, col string) string {
	pos := b.index[col]
	if pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func (b *tableBuilder) add(line int, record []string) error {
	if isBlankRecord(record) {
		b.blank++
		return nil
	}

	row := RawRow{
		Line:        line,
		InvoiceNo:   b.cell(record, ColInvoiceNo),
		StockCode:   b.cell(record, ColStockCode),
		Description: b.cell(record, ColDescription),
		InvoiceDate: b.cell(record, ColInvoiceDate),
		Country:     b.cell(record, ColCountry),
	}

	var err error
	if row.CustomerID, err = b.parseInt(line, record, ColCustomerID); err != nil {
		return err
	}
	if row.Quantity, err = b.parseInt(line, record, ColQuantity); err != nil {
		return err
	}
	if row.UnitPrice, err = b.parseDecimal(line, record, ColUnitPrice); err != nil {
		return err
	}

	b.rows = append(b.rows, row)
	return nil
}

func (b *tableBuilder) finish() *RawTable {
	logging.Debug().
		Str("source", b.name).
		Int("rows", len(b.rows)).
		Int("blank_rows", b.blank).
		Msg("Read export")
	return &RawTable{Source: b.name, Rows: b.rows}
}

// parseDecimal returns nil for blank cells. Spreadsheet exports carry
// integer identifiers as floats ("17850.0"), so decimals are the common path.
func (b *tableBuilder) parseDecimal(line int, record []string, col string) (*decimal.Decimal, error) {
	raw := b.cell(record, col)
	if isNullCell(raw) {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, &ParseError{Source: b.name, Line: line, Column: col, Value: raw, Err: err}
	}
	return &d, nil
}

func (b *tableBuilder) parseInt(line int, record []string, col string) (*int64, error) {
	d, err := b.parseDecimal(line, record, col)
	if err != nil || d == nil {
		return nil, err
	}
	if !d.IsInteger() {
		return nil, &ParseError{
			Source: b.name, Line: line, Column: col, Value: d.String(),
			Err: errors.New("not an integer"),
		}
	}
	v := d.IntPart()
	return &v, nil
}

func isNullCell(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
