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
	"errors"
	"math"
)

// ErrTooFewPoints is returned when a trend needs at least two points.
var ErrTooFewPoints = errors.New("at least two points are required to fit a trend")

// Trend is a least-squares line y = Slope*x + Intercept fitted to points at
// x = 0, 1, 2, ...
type Trend struct {
	Slope     float64
	Intercept float64
	R         float64
	R2        float64
	N         int
}

// FitTrend fits a straight line to evenly spaced observations.
func FitTrend(ys []float64) (*Trend, error) {
	if len(ys) < 2 {
		return nil, ErrTooFewPoints
	}

	n := float64(len(ys))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}

	// Distinct x values keep the denominator positive.
	denominator := n*sumX2 - sumX*sumX
	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	var r float64
	spread := math.Sqrt(denominator * (n*sumY2 - sumY*sumY))
	if spread > 1e-10 {
		r = (n*sumXY - sumX*sumY) / spread
	}

	return &Trend{
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		R2:        r * r,
		N:         len(ys),
	}, nil
}

// Predict returns the fitted value at x.
func (t *Trend) Predict(x float64) float64 {
	return t.Slope*x + t.Intercept
}

// Forecast returns the fitted values for the next horizon points after the
// observed ones.
func (t *Trend) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = t.Predict(float64(t.N + i))
	}
	return out
}
