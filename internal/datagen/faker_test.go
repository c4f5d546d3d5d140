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
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewFaker(t *testing.T) {
	f := NewFaker()
	if f == nil {
		t.Fatal("NewFaker returned nil")
	}
	if f.faker == nil {
		t.Fatal("faker field is nil")
	}
}

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		v1 := f1.StockCode()
		v2 := f2.StockCode()
		if v1 != v2 {
			t.Errorf("Same seed produced different values: %s != %s", v1, v2)
		}
	}
}

func TestFakerStockCode(t *testing.T) {
	f := NewFaker()
	pattern := regexp.MustCompile(`^[0-9]{5}[A-Z]?$`)

	for i := 0; i < 100; i++ {
		code := f.StockCode()
		if !pattern.MatchString(code) {
			t.Errorf("StockCode returned %q", code)
		}
	}
}

func TestFakerProductDescription(t *testing.T) {
	f := NewFaker()
	desc := f.ProductDescription()
	if desc == "" {
		t.Error("ProductDescription returned empty string")
	}
	if desc != strings.ToUpper(desc) {
		t.Errorf("ProductDescription should be upper case, got %q", desc)
	}
}

func TestFakerPrice(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		price := f.Price(0.29, 49.95)
		if !price.Equal(price.Round(2)) {
			t.Errorf("Price has more than two decimals: %s", price)
		}
		if !price.IsPositive() {
			t.Errorf("Price should be positive, got %s", price)
		}
	}
}

func TestFakerInt(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Int(1, 48)
		if v < 1 || v > 48 {
			t.Errorf("Int out of range: %d", v)
		}
	}
}

func TestFakerDateRange(t *testing.T) {
	f := NewFaker()
	start := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	for i := 0; i < 100; i++ {
		d := f.DateRange(start, end)
		if d.Before(start) || d.After(end) {
			t.Errorf("DateRange returned %v outside [%v, %v]", d, start, end)
		}
	}
}

func TestChoose(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 100; i++ {
		chosen := Choose(f, items)
		found := false
		for _, item := range items {
			if item == chosen {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Choose returned item not in slice: %s", chosen)
		}
	}
}

func TestChooseEmpty(t *testing.T) {
	f := NewFaker()
	var items []string

	chosen := Choose(f, items)
	if chosen != "" {
		t.Errorf("Choose on empty slice should return zero value, got: %s", chosen)
	}
}

func TestChooseWeighted(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c"}
	weights := []int{1, 2, 7} // c should be chosen ~70% of the time

	counts := make(map[string]int)
	iterations := 1000

	for i := 0; i < iterations; i++ {
		chosen := ChooseWeighted(f, items, weights)
		counts[chosen]++
	}

	// c should be most common
	if counts["c"] < counts["a"] || counts["c"] < counts["b"] {
		t.Errorf("Weighted choice distribution unexpected: %v", counts)
	}
}

func TestChooseWeightedEmpty(t *testing.T) {
	f := NewFaker()
	var items []string
	var weights []int

	chosen := ChooseWeighted(f, items, weights)
	if chosen != "" {
		t.Errorf("ChooseWeighted on empty slices should return zero value, got: %s", chosen)
	}
}

func BenchmarkStockCode(b *testing.B) {
	f := NewFaker()
	for i := 0; i < b.N; i++ {
		f.StockCode()
	}
}

func BenchmarkChooseWeighted(b *testing.B) {
	f := NewFaker()
	for i := 0; i < b.N; i++ {
		ChooseWeighted(f, countries, countryWeights)
	}
}
