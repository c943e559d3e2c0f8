package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoAssetModel(t *testing.T) *ReturnModel {
	t.Helper()
	model, err := NewReturnModel(
		[]float64{0.12, 0.08},
		[][]float64{
			{0.04, 0.01},
			{0.01, 0.03},
		},
	)
	require.NoError(t, err)
	return model
}

func threeAssetModel(t *testing.T) *ReturnModel {
	t.Helper()
	model, err := NewReturnModel(
		[]float64{0.12, 0.08, 0.10},
		[][]float64{
			{0.04, 0.01, 0.005},
			{0.01, 0.03, 0.008},
			{0.005, 0.008, 0.025},
		},
	)
	require.NoError(t, err)
	return model
}

// hedgedPairModel has the second asset returning exactly -2× the first, so
// the 2/3, 1/3 blend carries no volatility at all.
func hedgedPairModel(t *testing.T) *ReturnModel {
	t.Helper()
	model, err := NewReturnModel(
		[]float64{0.1, -0.2},
		[][]float64{
			{0.04, -0.08},
			{-0.08, 0.16},
		},
	)
	require.NoError(t, err)
	return model
}

func TestPortfolioMetrics(t *testing.T) {
	model := twoAssetModel(t)

	ret, vol := PortfolioMetrics([]float64{0.5, 0.5}, model)
	assert.InDelta(t, 0.10, ret, 1e-15)
	// 0.25·0.04 + 0.25·0.03 + 2·0.25·0.01 = 0.0225
	assert.InDelta(t, 0.15, vol, 1e-15)

	ret, vol = PortfolioMetrics([]float64{1, 0}, model)
	assert.InDelta(t, 0.12, ret, 1e-15)
	assert.InDelta(t, 0.2, vol, 1e-15)
}

func TestPortfolioMetrics_ClampsNegativeVariance(t *testing.T) {
	// Not positive semi-definite: w'Σw < 0 for the even split
	model, err := NewReturnModel([]float64{0.1, 0.1}, [][]float64{{0, -1e-3}, {-1e-3, 0}})
	require.NoError(t, err)

	_, vol := PortfolioMetrics([]float64{0.5, 0.5}, model)
	assert.Equal(t, 0.0, vol)
	assert.False(t, math.IsNaN(vol))
}

func TestTradeoffObjective(t *testing.T) {
	model := twoAssetModel(t)
	w := []float64{0.5, 0.5}

	assert.InDelta(t, 0.15, TradeoffObjective(w, 0, model), 1e-15, "alpha 0 is pure volatility")
	assert.InDelta(t, -0.10, TradeoffObjective(w, 1, model), 1e-15, "alpha 1 is negated return")
	assert.InDelta(t, 0.5*-0.10+0.5*0.15, TradeoffObjective(w, 0.5, model), 1e-15)
}

func TestProblems_MatchTradeoffObjective(t *testing.T) {
	model := threeAssetModel(t)
	w := []float64{0.2, 0.3, 0.5}

	for _, alpha := range []float64{0, 0.25, 0.5, 1} {
		p := TradeoffProblem(model, alpha)
		assert.InDelta(t, TradeoffObjective(w, alpha, model), p.Func(w), 1e-15)
	}

	assert.Equal(t, TradeoffProblem(model, 0).Func(w), MinVolatilityProblem(model).Func(w))
	assert.Equal(t, TradeoffProblem(model, 1).Func(w), MaxReturnProblem(model).Func(w))
}

func TestProblems_GradientMatchesFiniteDifferences(t *testing.T) {
	model := threeAssetModel(t)
	w := []float64{0.2, 0.3, 0.5}
	const h = 1e-7

	problems := map[string]Problem{
		"tradeoff":       TradeoffProblem(model, 0.3),
		"min volatility": MinVolatilityProblem(model),
		"max return":     MaxReturnProblem(model),
	}

	for name, p := range problems {
		t.Run(name, func(t *testing.T) {
			grad := make([]float64, 3)
			p.Grad(grad, w)

			for i := range w {
				plus := append([]float64(nil), w...)
				minus := append([]float64(nil), w...)
				plus[i] += h
				minus[i] -= h
				numeric := (p.Func(plus) - p.Func(minus)) / (2 * h)
				assert.InDelta(t, numeric, grad[i], 1e-6, "component %d", i)
			}
		})
	}
}

func TestProblems_ZeroVolatilitySubgradient(t *testing.T) {
	model, err := NewReturnModel([]float64{0.1, 0.05}, [][]float64{{0.04, 0}, {0, 0}})
	require.NoError(t, err)

	grad := make([]float64, 2)
	TradeoffProblem(model, 0.5).Grad(grad, []float64{0, 1})

	assert.Equal(t, []float64{-0.05, -0.025}, grad)
}

func TestProblems_KinkSlope(t *testing.T) {
	model := hedgedPairModel(t)
	blend := []float64{2.0 / 3, 1.0 / 3}

	_, vol := PortfolioMetrics(blend, model)
	require.Less(t, vol, 1e-7)

	// Along e0 - e1: -alpha·0.3 + (1-alpha)·0.6
	slope, atKink := TradeoffProblem(model, 0.5).KinkSlope(blend, []float64{1, -1})
	assert.True(t, atKink)
	assert.InDelta(t, 0.15, slope, 1e-12)

	slope, atKink = TradeoffProblem(model, 0.9).KinkSlope(blend, []float64{1, -1})
	assert.True(t, atKink)
	assert.Less(t, slope, 0.0)

	_, atKink = TradeoffProblem(model, 0.5).KinkSlope([]float64{0.5, 0.5}, []float64{1, -1})
	assert.False(t, atKink, "the even split carries volatility")

	assert.Nil(t, MaxReturnProblem(model).KinkSlope)
}
