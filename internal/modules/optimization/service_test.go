package optimization

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (o *recordingObserver) ObserveSolve(kind string, _ Solution, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.kinds == nil {
		o.kinds = make(map[string]int)
	}
	o.kinds[kind]++
}

func newTestService(opts SolverOptions) *FrontierService {
	return NewFrontierService(NewSolver(opts), DefaultFrontierPoints, 4, zerolog.Nop())
}

func TestFrontierAlphas(t *testing.T) {
	alphas := FrontierAlphas(DefaultFrontierPoints)
	require.Len(t, alphas, 50)
	assert.Equal(t, 0.0, alphas[0])
	assert.Equal(t, 1.0, alphas[49])
	assert.InDelta(t, 1.0/49, alphas[1], 1e-15)

	for _, n := range []int{2, 3, 7, 49, 100, 101} {
		alphas := FrontierAlphas(n)
		assert.Equal(t, 1.0, alphas[n-1], "n=%d", n)
		assert.Equal(t, 0.0, alphas[0], "n=%d", n)
	}

	assert.Equal(t, []float64{0}, FrontierAlphas(1))
}

func TestValidateAlpha(t *testing.T) {
	for _, alpha := range []float64{0, 0.5, 1} {
		assert.NoError(t, ValidateAlpha(alpha))
	}
	for _, alpha := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, ValidateAlpha(alpha), ErrMalformedInput, "alpha %v", alpha)
	}
}

func TestFrontierService_Compute(t *testing.T) {
	model := threeAssetModel(t)
	service := newTestService(DefaultSolverOptions())

	result, err := service.Compute(context.Background(), model, 0.5)
	require.NoError(t, err)

	require.Len(t, result.EfficientFrontier, DefaultFrontierPoints)
	assert.Empty(t, result.Warnings)

	for i, p := range result.EfficientFrontier {
		assert.True(t, p.Converged, "point %d", i)
		assertOnSimplex(t, p.Weights)

		ret, vol := PortfolioMetrics(p.Weights, model)
		assert.Equal(t, ret, p.Return)
		assert.Equal(t, vol, p.Volatility)
	}

	// Expected return never decreases as alpha grows
	for i := 1; i < len(result.EfficientFrontier); i++ {
		assert.GreaterOrEqual(t,
			result.EfficientFrontier[i].Return,
			result.EfficientFrontier[i-1].Return-1e-9,
			"frontier return should be non-decreasing at point %d", i)
	}

	// Boundary alphas reproduce the named portfolios
	first := result.EfficientFrontier[0]
	last := result.EfficientFrontier[len(result.EfficientFrontier)-1]
	assert.InDeltaSlice(t, result.MinimumVolatility.Weights, first.Weights, 1e-9)
	assert.InDeltaSlice(t, result.MaximumReturn.Weights, last.Weights, 1e-9)

	assert.InDeltaSlice(t, []float64{0.2444310651634426, 0.29801324780748284, 0.45755568702907456}, result.MinimumVolatility.Weights, 1e-5)
	assert.InDeltaSlice(t, []float64{1, 0, 0}, result.MaximumReturn.Weights, 1e-9)
	assert.InDeltaSlice(t, []float64{0.33605893740879705, 0.1823518331524076, 0.48158922943879534}, result.Tradeoff.Weights, 1e-5)

	// Minimum volatility really is the least volatile point found
	for _, p := range result.EfficientFrontier {
		assert.GreaterOrEqual(t, p.Volatility, result.MinimumVolatility.Volatility-1e-12)
	}
}

func TestFrontierService_ConcreteScenario(t *testing.T) {
	model, err := BuildReturnModel([]PriceSeries{scenarioA, scenarioB})
	require.NoError(t, err)

	result, err := newTestService(DefaultSolverOptions()).Compute(context.Background(), model, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 1.000, result.Tradeoff.Weights[0], 5e-4)
	assert.InDelta(t, 0.000, result.Tradeoff.Weights[1], 5e-4)
	assert.InDelta(t, 0.50658, result.MinimumVolatility.Weights[0], 1e-4)
	assert.InDeltaSlice(t, []float64{1, 0}, result.MaximumReturn.Weights, 1e-9)
	assert.Empty(t, result.Warnings)
}

func TestFrontierService_IdenticalSeries(t *testing.T) {
	prices := PriceSeries{100, 102, 101, 103, 104}
	model, err := BuildReturnModel([]PriceSeries{prices, prices})
	require.NoError(t, err)

	result, err := newTestService(DefaultSolverOptions()).Compute(context.Background(), model, 0.5)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.5, 0.5}, result.MinimumVolatility.Weights, 1e-9)
	for _, p := range result.EfficientFrontier {
		assert.InDelta(t, result.EfficientFrontier[0].Return, p.Return, 1e-12)
	}
}

func TestFrontierService_NonConvergenceIsReported(t *testing.T) {
	model := threeAssetModel(t)
	service := newTestService(SolverOptions{MaxIterations: 1})

	result, err := service.Compute(context.Background(), model, 0.5)
	require.NoError(t, err, "non-convergence is not an error")

	require.Len(t, result.EfficientFrontier, DefaultFrontierPoints)
	assert.NotEmpty(t, result.Warnings)
	assert.False(t, result.Tradeoff.Converged)
	assert.Equal(t, StatusIterationLimit, result.Tradeoff.Status)
	for _, p := range result.EfficientFrontier {
		assertOnSimplex(t, p.Weights)
	}
}

func TestFrontierService_InvalidInput(t *testing.T) {
	service := newTestService(DefaultSolverOptions())
	model := twoAssetModel(t)

	_, err := service.Compute(context.Background(), model, 1.5)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = service.Compute(context.Background(), nil, 0.5)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestFrontierService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestService(DefaultSolverOptions()).Compute(ctx, threeAssetModel(t), 0.5)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrontierService_ProgressAndObserver(t *testing.T) {
	model := threeAssetModel(t)
	service := newTestService(DefaultSolverOptions())
	observer := &recordingObserver{}
	service.SetObserver(observer)

	seen := make(map[int]PortfolioPoint)
	result, err := service.ComputeWithProgress(context.Background(), model, 0.5, func(index int, point PortfolioPoint) {
		seen[index] = point
	})
	require.NoError(t, err)

	require.Len(t, seen, DefaultFrontierPoints)
	for i, p := range result.EfficientFrontier {
		assert.Equal(t, p, seen[i])
	}

	assert.Equal(t, map[string]int{
		SolveKindFrontier:      DefaultFrontierPoints,
		SolveKindMinVolatility: 1,
		SolveKindMaxReturn:     1,
		SolveKindTradeoff:      1,
	}, observer.kinds)
}

func TestFrontierService_PerfectlyHedgedPair(t *testing.T) {
	model := hedgedPairModel(t)

	result, err := newTestService(DefaultSolverOptions()).Compute(context.Background(), model, 0.5)
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	assert.True(t, result.MinimumVolatility.Converged)
	assert.InDelta(t, 0.0, result.MinimumVolatility.Volatility, 1e-7)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, result.Tradeoff.Weights, 1e-6)
	for i, p := range result.EfficientFrontier {
		assert.Equal(t, StatusConverged, p.Status, "point %d", i)
	}
}

func TestFrontierResult_JSON(t *testing.T) {
	result := FrontierResult{
		EfficientFrontier: []PortfolioPoint{{Return: 0.1, Volatility: 0.2, Weights: []float64{0.5, 0.5}, Converged: true}},
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Contains(t, decoded, "efficient_frontier")
	assert.Contains(t, decoded, "minimum_volatility_portfolio")
	assert.Contains(t, decoded, "maximum_return_portfolio")
	assert.Contains(t, decoded, "tradeoff_portfolio")
	assert.NotContains(t, decoded, "warnings", "empty warnings are omitted")

	point := decoded["efficient_frontier"].([]interface{})[0].(map[string]interface{})
	assert.ElementsMatch(t, []string{"return", "volatility", "weights"}, keys(point))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
