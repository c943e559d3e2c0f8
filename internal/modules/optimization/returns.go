package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/frontier/pkg/formulas"
)

// Asset count limits for a single request.
const (
	MinAssets = 2
	MaxAssets = 6
)

// PriceSeries is one asset's prices, one entry per time step. Missing
// observations are NaN.
type PriceSeries []float64

// ValidatePriceSeries checks the shape of a request before any statistics
// are computed.
func ValidatePriceSeries(series []PriceSeries) error {
	if len(series) < MinAssets || len(series) > MaxAssets {
		return fmt.Errorf("%w: number of assets must be between %d and %d, got %d",
			ErrMalformedInput, MinAssets, MaxAssets, len(series))
	}

	length := len(series[0])
	for i, prices := range series {
		if len(prices) < 2 {
			return fmt.Errorf("%w: asset %d has %d prices, need at least 2", ErrMalformedInput, i+1, len(prices))
		}
		if len(prices) != length {
			return fmt.Errorf("%w: asset %d has %d prices, expected %d", ErrMalformedInput, i+1, len(prices), length)
		}
		for t, p := range prices {
			// NaN marks a missing observation and is handled by row dropping
			if math.IsNaN(p) {
				continue
			}
			if math.IsInf(p, 0) || p < 0 {
				return fmt.Errorf("%w: asset %d has invalid price %v at row %d", ErrMalformedInput, i+1, p, t+1)
			}
		}
	}

	return nil
}

// AlignedReturns computes simple returns for every asset and keeps only the
// time indices where all assets have a finite return. The result is
// row-major: rows[t][asset]. dropped counts the discarded time indices.
func AlignedReturns(series []PriceSeries) (rows [][]float64, dropped int) {
	if len(series) == 0 {
		return nil, 0
	}

	columns := make([][]float64, len(series))
	for i, prices := range series {
		columns[i] = formulas.SimpleReturns(prices)
	}

	steps := len(columns[0])
	rows = make([][]float64, 0, steps)
	for t := 0; t < steps; t++ {
		row := make([]float64, len(columns))
		valid := true
		for i := range columns {
			if t >= len(columns[i]) || !formulas.IsFinite(columns[i][t]) {
				valid = false
				break
			}
			row[i] = columns[i][t]
		}
		if !valid {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	return rows, dropped
}
