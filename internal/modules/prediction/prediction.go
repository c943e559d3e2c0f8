// Package prediction provides the naive price outlook shown next to the
// two-asset allocation: a trailing simple moving average.
package prediction

import (
	"github.com/aristath/frontier/pkg/formulas"
)

// Moving average defaults.
const (
	DefaultWindow  = 5
	DefaultHorizon = 10
)

// MovingAverage returns the last horizon values of the window-period simple
// moving average of prices, rounded to two decimals. Non-finite prices are
// skipped. When fewer than window prices remain the result is empty.
func MovingAverage(prices []float64, window, horizon int) []float64 {
	if window < 1 {
		window = DefaultWindow
	}
	if horizon < 1 {
		horizon = DefaultHorizon
	}

	sma := formulas.SMA(formulas.FiniteValues(prices), window)
	if len(sma) > horizon {
		sma = sma[len(sma)-horizon:]
	}
	return formulas.RoundAll(sma, 2)
}

// Forecast is MovingAverage with the default window and horizon.
func Forecast(prices []float64) []float64 {
	return MovingAverage(prices, DefaultWindow, DefaultHorizon)
}
