//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/pgEdge/pgedge-retail-etl/internal/source"
)

// CSVDateLayout is how the export writes invoice dates in CSV.
const CSVDateLayout = "1/2/2006 15:04"

// SheetName is the worksheet name of generated .xlsx exports.
const SheetName = "Online Retail"

// record returns the line's cells in source.Columns order.
func (l Line) record() []string {
	customer := ""
	if l.CustomerID != nil {
		customer = strconv.FormatInt(*l.CustomerID, 10)
	}
	return []string{
		l.InvoiceNo,
		l.StockCode,
		l.Description,
		strconv.FormatInt(l.Quantity, 10),
		l.InvoiceDate.Format(CSVDateLayout),
		l.UnitPrice.String(),
		customer,
		l.Country,
	}
}

// CSVWriter writes lines as comma separated values.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter writes the header row and returns the writer.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(source.Columns); err != nil {
		return nil, err
	}
	return &CSVWriter{w: cw}, nil
}

func (c *CSVWriter) WriteLine(l Line) error {
	return c.w.Write(l.record())
}

// Close flushes buffered records.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}

// XLSXWriter streams lines into a single worksheet. Invoice dates are
// stored as date cells and numbers as numeric cells.
type XLSXWriter struct {
	out  io.Writer
	file *excelize.File
	sw   *excelize.StreamWriter
	row  int
}

// NewXLSXWriter writes the header row and returns the writer. The workbook
// is written to out on Close.
func NewXLSXWriter(out io.Writer) (*XLSXWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	x := &XLSXWriter{out: out, file: f, sw: sw, row: 1}
	header := make([]interface{}, len(source.Columns))
	for i, c := range source.Columns {
		header[i] = c
	}
	if err := x.setRow(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return x, nil
}

func (x *XLSXWriter) WriteLine(l Line) error {
	var customer interface{}
	if l.CustomerID != nil {
		customer = *l.CustomerID
	}
	return x.setRow([]interface{}{
		l.InvoiceNo,
		l.StockCode,
		l.Description,
		l.Quantity,
		l.InvoiceDate,
		l.UnitPrice.InexactFloat64(),
		customer,
		l.Country,
	})
}

func (x *XLSXWriter) setRow(values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	if err := x.sw.SetRow(cell, values); err != nil {
		return err
	}
	x.row++
	return nil
}

// Close flushes the worksheet and writes the workbook.
func (x *XLSXWriter) Close() error {
	err := x.sw.Flush()
	if err == nil {
		err = x.file.Write(x.out)
	}
	return errors.Join(err, x.file.Close())
}

// WriteFile generates an export at path. The format is taken from the file
// extension.
func WriteFile(ctx context.Context, path string, cfg Config) (Stats, error) {
	format, err := source.DetectFormat(path)
	if err != nil {
		return Stats{}, err
	}

	f, err := os.Create(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	stats, err := Write(ctx, f, format, cfg)
	if err != nil {
		return stats, err
	}
	return stats, f.Close()
}

// Write generates an export in the given format to w.
func Write(ctx context.Context, w io.Writer, format string, cfg Config) (Stats, error) {
	var (
		lw interface {
			LineWriter
			io.Closer
		}
		err error
	)
	switch format {
	case source.FormatCSV:
		lw, err = NewCSVWriter(w)
	case source.FormatXLSX:
		lw, err = NewXLSXWriter(w)
	default:
		return Stats{}, fmt.Errorf("unsupported export format: %s", format)
	}
	if err != nil {
		return Stats{}, err
	}

	stats, err := NewGenerator(cfg).Generate(ctx, lw)
	if closeErr := lw.Close(); err == nil {
		err = closeErr
	}
	return stats, err
}
