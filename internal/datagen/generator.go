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
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-retail-etl/internal/config"
	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Kinds of generated lines. Everything except KindValid is rejected by
// cleaning.
const (
	KindValid         = "valid"
	KindReturn        = "return"
	KindBlankCustomer = "blank_customer"
	KindZeroPrice     = "zero_price"
	KindDuplicate     = "duplicate"
)

// InvalidKinds lists the kinds of invalid lines in reporting order.
var InvalidKinds = []string{KindReturn, KindBlankCustomer, KindZeroPrice, KindDuplicate}

// First invoice number of the Online Retail export.
const firstInvoice = 536365

// Weighted country mix; the real export is mostly UK customers.
var (
	countries      = []string{"United Kingdom", "Germany", "France", "EIRE", "Spain", "Netherlands", "Belgium", "Switzerland"}
	countryWeights = []int{80, 4, 4, 3, 2, 3, 2, 2}
)

// Config configures export generation.
type Config struct {
	// Rows is the number of lines to write.
	Rows int

	// Seed makes the output reproducible; 0 picks a random seed.
	Seed uint64

	// InvalidRatio is the share of lines cleaning should reject.
	InvalidRatio float64

	// Start is the earliest invoice date; invoices span Days days.
	Start time.Time
	Days  int

	// ProgressInterval is how often to log progress (in rows).
	ProgressInterval int64
}

// ConfigFromGenerate builds a Config from validated generate settings.
func ConfigFromGenerate(cfg config.GenerateConfig) (Config, error) {
	start, err := time.Parse(config.DateLayout, cfg.StartDate)
	if err != nil {
		return Config{}, fmt.Errorf("invalid start date: %w", err)
	}
	return Config{
		Rows:             cfg.Rows,
		Seed:             cfg.Seed,
		InvalidRatio:     cfg.InvalidRatio,
		Start:            start,
		Days:             cfg.Days,
		ProgressInterval: 100000,
	}, nil
}

// Line is one generated export row.
type Line struct {
	Kind        string
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int64
	InvoiceDate time.Time

	UnitPrice decimal.Decimal

	// CustomerID is nil for a blank cell.
	CustomerID *int64
	Country    string
}

// Stats counts the generated lines by kind.
type Stats struct {
	Rows   int
	ByKind map[string]int
}

// Invalid returns the number of lines cleaning should reject.
func (s Stats) Invalid() int {
	return s.Rows - s.ByKind[KindValid]
}

// LineWriter receives generated lines.
type LineWriter interface {
	WriteLine(Line) error
}

type customer struct {
	id      int64
	country string
}

type product struct {
	code        string
	description string
	price       decimal.Decimal
}

// Generator produces invoices of an Online Retail style export.
type Generator struct {
	cfg       Config
	faker     *Faker
	customers []customer
	products  []product
}

// NewGenerator creates a generator with customer and product pools sized
// for cfg.Rows.
func NewGenerator(cfg Config) *Generator {
	f := NewFaker()
	if cfg.Seed != 0 {
		f = NewFakerWithSeed(cfg.Seed)
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 100000
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}

	g := &Generator{cfg: cfg, faker: f}

	numCustomers := max(5, cfg.Rows/20)
	for i := 0; i < numCustomers; i++ {
		g.customers = append(g.customers, customer{
			id:      int64(12346 + i),
			country: ChooseWeighted(f, countries, countryWeights),
		})
	}

	numProducts := max(10, cfg.Rows/10)
	seen := make(map[string]bool, numProducts)
	for len(g.products) < numProducts {
		code := f.StockCode()
		if seen[code] {
			continue
		}
		seen[code] = true
		g.products = append(g.products, product{
			code:        code,
			description: f.ProductDescription(),
			price:       f.Price(0.29, 49.95),
		})
	}

	return g
}

// Generate writes cfg.Rows lines to w, grouped into invoices of one
// customer and timestamp.
func (g *Generator) Generate(ctx context.Context, w LineWriter) (Stats, error) {
	stats := Stats{ByKind: make(map[string]int, len(InvalidKinds)+1)}
	progress := NewProgressReporter("export", int64(g.cfg.Rows), g.cfg.ProgressInterval)

	end := g.cfg.Start.AddDate(0, 0, g.cfg.Days)
	invoice := firstInvoice
	var prev *Line

	for stats.Rows < g.cfg.Rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		cust := Choose(g.faker, g.customers)
		at := g.faker.DateRange(g.cfg.Start, end).UTC().Truncate(time.Minute)
		lines := min(g.faker.Int(1, 8), g.cfg.Rows-stats.Rows)

		for i := 0; i < lines; i++ {
			line := g.line(invoice, cust, at, prev)
			if err := w.WriteLine(line); err != nil {
				return stats, err
			}
			stats.Rows++
			stats.ByKind[line.Kind]++
			progress.Update(1)
			prev = &line
		}
		invoice++
	}

	progress.Done()
	return stats, nil
}

func (g *Generator) line(invoice int, cust customer, at time.Time, prev *Line) Line {
	p := Choose(g.faker, g.products)
	id := cust.id
	line := Line{
		Kind:        KindValid,
		InvoiceNo:   strconv.Itoa(invoice),
		StockCode:   p.code,
		Description: p.description,
		Quantity:    int64(g.faker.Int(1, 48)),
		InvoiceDate: at,
		UnitPrice:   p.price,
		CustomerID:  &id,
		Country:     cust.country,
	}

	if g.faker.Float64(0, 1) >= g.cfg.InvalidRatio {
		return line
	}

	switch kind := Choose(g.faker, InvalidKinds); {
	case kind == KindDuplicate && prev != nil && prev.Kind == KindValid:
		dup := *prev
		dup.Kind = KindDuplicate
		return dup
	case kind == KindBlankCustomer:
		line.Kind = KindBlankCustomer
		line.CustomerID = nil
	case kind == KindZeroPrice:
		line.Kind = KindZeroPrice
		line.UnitPrice = decimal.Zero
	default:
		line.Kind = KindReturn
		line.InvoiceNo = "C" + line.InvoiceNo
		line.Quantity = -line.Quantity
	}
	return line
}

// ProgressReporter tracks and reports generation progress.
type ProgressReporter struct {
	name             string
	totalRows        int64
	currentRow       int64
	progressInterval int64
}

// NewProgressReporter creates a new progress reporter.
func NewProgressReporter(name string, totalRows int64, interval int64) *ProgressReporter {
	return &ProgressReporter{
		name:             name,
		totalRows:        totalRows,
		progressInterval: interval,
	}
}

// Update updates the progress and logs if necessary.
func (p *ProgressReporter) Update(rows int64) {
	oldRow := p.currentRow
	p.currentRow += rows

	// Check if we crossed a progress interval
	if p.currentRow/p.progressInterval > oldRow/p.progressInterval {
		pct := float64(p.currentRow) / float64(p.totalRows) * 100
		logging.Info().
			Str("output", p.name).
			Int64("rows", p.currentRow).
			Int64("total", p.totalRows).
			Float64("percent", pct).
			Msg("Generating export")
	}
}

// Done logs completion.
func (p *ProgressReporter) Done() {
	logging.Info().
		Str("output", p.name).
		Int64("rows", p.currentRow).
		Msg("Export complete")
}
