package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReturnModel_Scenario(t *testing.T) {
	model, err := BuildReturnModel([]PriceSeries{scenarioA, scenarioB})
	require.NoError(t, err)

	assert.Equal(t, 2, model.Assets())
	assert.Equal(t, 4, model.Observations)
	assert.Equal(t, 0, model.Dropped)

	assert.InDeltaSlice(t, []float64{1.8836400698893419, -1.8962337662337665}, model.MeanReturns, 1e-12)
	assert.InDelta(t, 0.038873236425358934, model.Covariance.At(0, 0), 1e-12)
	assert.InDelta(t, -0.03990903317222479, model.Covariance.At(0, 1), 1e-12)
	assert.InDelta(t, -0.03990903317222479, model.Covariance.At(1, 0), 1e-12)
	assert.InDelta(t, 0.04097424487832651, model.Covariance.At(1, 1), 1e-12)
}

func TestBuildReturnModel_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		series []PriceSeries
	}{
		{
			name:   "only one return row",
			series: []PriceSeries{{100, 101}, {50, 51}},
		},
		{
			name:   "missing values leave one row",
			series: []PriceSeries{{100, 101, math.NaN(), 104}, {50, 51, 52, 53}},
		},
		{
			name:   "everything missing",
			series: []PriceSeries{{math.NaN(), math.NaN(), math.NaN()}, {50, 51, 52}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := BuildReturnModel(tt.series)
			assert.Nil(t, model)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}

func TestBuildReturnModel_MalformedInput(t *testing.T) {
	_, err := BuildReturnModel([]PriceSeries{scenarioA, scenarioB[:3]})
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestBuildReturnModel_OverflowingEstimates(t *testing.T) {
	// Each price is finite but the returns swing by 1e200
	_, err := BuildReturnModel([]PriceSeries{{1, 1e200, 1, 1e200}, scenarioA[:4]})
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Contains(t, err.Error(), "not finite")
}

func TestBuildReturnModel_ConstantSeries(t *testing.T) {
	model, err := BuildReturnModel([]PriceSeries{{10, 10, 10, 10}, scenarioA[:4]})
	require.NoError(t, err)

	assert.Equal(t, 0.0, model.MeanReturns[0])
	assert.Equal(t, 0.0, model.Covariance.At(0, 0))
	assert.Equal(t, 0.0, model.Covariance.At(0, 1))
	assert.Equal(t, 0.0, model.Volatilities()[0])

	// No defined correlation for a zero-variance asset
	assert.Empty(t, model.HighCorrelations(0))
}

func TestNewReturnModel(t *testing.T) {
	model, err := NewReturnModel([]float64{0.12, 0.08}, [][]float64{{0.04, 0.01}, {0.01, 0.03}})
	require.NoError(t, err)
	assert.Equal(t, 2, model.Assets())
	assert.InDeltaSlice(t, []float64{0.2, math.Sqrt(0.03)}, model.Volatilities(), 1e-15)

	_, err = NewReturnModel(nil, nil)
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = NewReturnModel([]float64{0.1, 0.2}, [][]float64{{0.04, 0.01}})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = NewReturnModel([]float64{0.1, 0.2}, [][]float64{{0.04, 0.01}, {0.01}})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = NewReturnModel([]float64{0.1, 0.2}, [][]float64{{0.04, 0.01}, {0.02, 0.03}})
	assert.ErrorIs(t, err, ErrMalformedInput, "asymmetric covariance")

	_, err = NewReturnModel([]float64{math.NaN(), 0.2}, [][]float64{{0.04, 0.01}, {0.01, 0.03}})
	assert.ErrorIs(t, err, ErrMalformedInput, "non-finite mean")

	_, err = NewReturnModel([]float64{0.1, 0.2}, [][]float64{{math.Inf(1), 0.01}, {0.01, 0.03}})
	assert.ErrorIs(t, err, ErrMalformedInput, "non-finite covariance")
}

func TestNewReturnModel_CopiesInput(t *testing.T) {
	mu := []float64{0.12, 0.08}
	model, err := NewReturnModel(mu, [][]float64{{0.04, 0.01}, {0.01, 0.03}})
	require.NoError(t, err)

	mu[0] = 99
	assert.Equal(t, 0.12, model.MeanReturns[0])
}

func TestHighCorrelations(t *testing.T) {
	model, err := BuildReturnModel([]PriceSeries{scenarioA, scenarioB})
	require.NoError(t, err)

	pairs := model.HighCorrelations(HighCorrelationThreshold)
	require.Len(t, pairs, 1)
	assert.Equal(t, 0, pairs[0].Asset1)
	assert.Equal(t, 1, pairs[0].Asset2)
	assert.Less(t, pairs[0].Correlation, -0.99)

	lowCorr, err := NewReturnModel([]float64{0.1, 0.1}, [][]float64{{0.04, 0.001}, {0.001, 0.04}})
	require.NoError(t, err)
	assert.Empty(t, lowCorr.HighCorrelations(HighCorrelationThreshold))
}
