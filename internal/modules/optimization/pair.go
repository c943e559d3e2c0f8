package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/pkg/formulas"
)

// PairGraphPoints is the number of weight steps on a two-asset curve.
const PairGraphPoints = 50

// PairModel is the two-asset variant of ReturnModel. Unlike BuildReturnModel,
// each series drops its own missing rows and the covariance is taken over
// the time indices both assets still share.
type PairModel struct {
	Model *ReturnModel

	// Prices that survived each asset's own row dropping, in order.
	Prices [2][]float64
}

// PairGraphPoint is one blend of the two assets: Weight in the first asset,
// 1-Weight in the second.
type PairGraphPoint struct {
	Weight     float64
	Return     float64
	Volatility float64
}

// BuildPairModel estimates annualized means, volatilities and the pairwise
// covariance for two price histories that need not be aligned or equally
// long.
func BuildPairModel(first, second PriceSeries) (*PairModel, error) {
	returns := [2]map[int]float64{}
	pm := &PairModel{}

	for k, prices := range [2]PriceSeries{first, second} {
		for t, p := range prices {
			if math.IsInf(p, 0) || p < 0 {
				return nil, fmt.Errorf("%w: asset %d has invalid price %v at row %d", ErrMalformedInput, k+1, p, t+1)
			}
		}

		returns[k] = make(map[int]float64)
		for t, r := range formulas.SimpleReturns(prices) {
			if formulas.IsFinite(r) {
				returns[k][t] = r
				pm.Prices[k] = append(pm.Prices[k], prices[t+1])
			}
		}
		if len(returns[k]) < 2 {
			return nil, fmt.Errorf("%w: asset %d needs at least 2 valid returns, got %d", ErrInsufficientData, k+1, len(returns[k]))
		}
	}

	// Pairwise covariance over the shared time indices
	var x, y []float64
	steps := len(first)
	if len(second) > steps {
		steps = len(second)
	}
	for t := 0; t < steps; t++ {
		r1, ok1 := returns[0][t]
		r2, ok2 := returns[1][t]
		if ok1 && ok2 {
			x = append(x, r1)
			y = append(y, r2)
		}
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("%w: assets share %d valid returns, need at least 2", ErrInsufficientData, len(x))
	}

	means := make([]float64, 2)
	cov := mat.NewSymDense(2, nil)
	for k := range returns {
		series := orderedValues(returns[k], steps)
		means[k] = formulas.AnnualizedMean(series)
		cov.SetSym(k, k, formulas.Variance(series)*formulas.TradingDaysPerYear)
	}
	cov.SetSym(0, 1, formulas.Covariance(x, y)*formulas.TradingDaysPerYear)

	if err := checkEstimates(means, cov); err != nil {
		return nil, err
	}

	pm.Model = &ReturnModel{
		MeanReturns:  means,
		Covariance:   cov,
		Observations: len(x),
	}
	return pm, nil
}

// GraphPoints evaluates n evenly spaced blends from all-second-asset
// (Weight 0) to all-first-asset (Weight 1).
func (pm *PairModel) GraphPoints(n int) []PairGraphPoint {
	if n < 2 {
		n = PairGraphPoints
	}

	points := make([]PairGraphPoint, n)
	for i, w := range FrontierAlphas(n) {
		ret, vol := PortfolioMetrics([]float64{w, 1 - w}, pm.Model)
		points[i] = PairGraphPoint{Weight: w, Return: ret, Volatility: vol}
	}
	return points
}

// Optimize solves the two-asset allocation for riskFactor, which weighs
// volatility against return the other way round from alpha:
//
//	riskFactor·volatility - (1-riskFactor)·return
//
// The solve starts from an even split.
func (pm *PairModel) Optimize(ctx context.Context, solver *Solver, riskFactor float64) (Solution, error) {
	if !(riskFactor >= 0 && riskFactor <= 1) {
		return Solution{}, fmt.Errorf("%w: riskFactor must be between 0 and 1, got %v", ErrMalformedInput, riskFactor)
	}
	return solver.Solve(ctx, TradeoffProblem(pm.Model, 1-riskFactor), UniformWeights(2)), nil
}

func orderedValues(values map[int]float64, steps int) []float64 {
	out := make([]float64, 0, len(values))
	for t := 0; t < steps; t++ {
		if v, ok := values[t]; ok {
			out = append(out, v)
		}
	}
	return out
}
