package formulas

import (
	"github.com/markcheno/go-talib"
)

// SMA calculates the simple moving average of prices over period.
// The first period-1 entries have no full window and are omitted, so the
// result has len(prices)-period+1 values. Returns nil if there is not enough
// data for a single window.
func SMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return nil
	}

	// talib pads the lookback region with zeros; drop it
	sma := talib.Sma(prices, period)
	return sma[period-1:]
}
