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
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
)

// Summary is the outcome of a pipeline run.
type Summary struct {
	Source      string
	RowsRead    int
	RowsCleaned int
	Dropped     map[DropReason]int
	Skipped     map[Dimension]int

	CustomersUpserted int64
	ProductsUpserted  int64
	DatesUpserted     int64

	FactsInserted int64
	Batches       int
	Committed     bool
	Duration      time.Duration

	// Diagnostics holds the first drops and lookup misses, each capped at
	// MaxDiagnostics.
	Diagnostics []error
}

func newSummary(source string) *Summary {
	return &Summary{
		Source:  source,
		Dropped: make(map[DropReason]int, len(DropReasons)),
		Skipped: make(map[Dimension]int, len(Dimensions)),
	}
}

func (s *Summary) addClean(stats CleanStats) {
	s.RowsRead = stats.Read
	s.RowsCleaned = stats.Cleaned
	for reason, n := range stats.Dropped {
		s.Dropped[reason] += n
	}
	for _, d := range stats.Diagnostics {
		s.Diagnostics = append(s.Diagnostics, d)
	}
}

func (s *Summary) addFacts(stats FactStats) {
	s.FactsInserted = stats.Inserted
	s.Batches = stats.Batches
	for dim, n := range stats.Skipped {
		s.Skipped[dim] += n
	}
	for _, m := range stats.Misses {
		s.Diagnostics = append(s.Diagnostics, m)
	}
}

// RowsDropped is the number of rows rejected by cleaning.
func (s *Summary) RowsDropped() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// RowsSkipped is the number of cleaned rows skipped on a lookup miss.
func (s *Summary) RowsSkipped() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// FactsCommitted is the number of fact rows made durable by the run.
func (s *Summary) FactsCommitted() int64 {
	if !s.Committed {
		return 0
	}
	return s.FactsInserted
}

// Render writes the summary as a table.
func (s *Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"source", s.Source})
	table.Append([]string{"rows read", strconv.Itoa(s.RowsRead)})
	table.Append([]string{"rows cleaned", strconv.Itoa(s.RowsCleaned)})
	for _, reason := range DropReasons {
		if n := s.Dropped[reason]; n > 0 {
			table.Append([]string{"dropped." + string(reason), strconv.Itoa(n)})
		}
	}
	for _, dim := range Dimensions {
		if n := s.Skipped[dim]; n > 0 {
			table.Append([]string{"skipped." + string(dim), strconv.Itoa(n)})
		}
	}
	table.Append([]string{"customers upserted", strconv.FormatInt(s.CustomersUpserted, 10)})
	table.Append([]string{"products upserted", strconv.FormatInt(s.ProductsUpserted, 10)})
	table.Append([]string{"dates upserted", strconv.FormatInt(s.DatesUpserted, 10)})
	table.Append([]string{"facts committed", strconv.FormatInt(s.FactsCommitted(), 10)})
	table.Append([]string{"batches flushed", strconv.Itoa(s.Batches)})
	table.Append([]string{"duration", s.Duration.Round(time.Millisecond).String()})

	table.Render()
}

// Log writes the summary as a single structured event.
func (s *Summary) Log(log zerolog.Logger) {
	dropped := zerolog.Dict()
	for _, reason := range DropReasons {
		dropped.Int(string(reason), s.Dropped[reason])
	}
	skipped := zerolog.Dict()
	for _, dim := range Dimensions {
		skipped.Int(string(dim), s.Skipped[dim])
	}

	log.Info().
		Str("source", s.Source).
		Int("read", s.RowsRead).
		Int("cleaned", s.RowsCleaned).
		Dict("dropped", dropped).
		Dict("skipped", skipped).
		Int64("customers", s.CustomersUpserted).
		Int64("products", s.ProductsUpserted).
		Int64("dates", s.DatesUpserted).
		Int64("facts", s.FactsCommitted()).
		Int("batches", s.Batches).
		Bool("committed", s.Committed).
		Dur("duration", s.Duration).
		Msg("Load summary")
}
