package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/pkg/formulas"
)

// HighCorrelationThreshold marks asset pairs worth reporting when a model is
// built. 80% correlation is considered "high".
const HighCorrelationThreshold = 0.80

// ReturnModel holds the annualized risk/return estimates for one request.
// It is never mutated after BuildReturnModel returns and may be shared
// between concurrent solves.
type ReturnModel struct {
	MeanReturns  []float64     // daily mean × 252, one per asset
	Covariance   *mat.SymDense // sample covariance × 252
	Observations int           // aligned return rows used
	Dropped      int           // rows discarded for non-finite returns
}

// CorrelationPair is a pair of assets whose returns move together (or
// against each other) beyond HighCorrelationThreshold.
type CorrelationPair struct {
	Asset1      int     `json:"asset1"`
	Asset2      int     `json:"asset2"`
	Correlation float64 `json:"correlation"`
}

// BuildReturnModel converts aligned price histories into the mean-return
// vector and covariance matrix used by every solve.
func BuildReturnModel(series []PriceSeries) (*ReturnModel, error) {
	if err := ValidatePriceSeries(series); err != nil {
		return nil, err
	}

	rows, dropped := AlignedReturns(series)
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 valid return rows, got %d", ErrInsufficientData, len(rows))
	}

	n := len(series)
	data := mat.NewDense(len(rows), n, nil)
	for t, row := range rows {
		data.SetRow(t, row)
	}

	means := make([]float64, n)
	col := make([]float64, len(rows))
	for j := 0; j < n; j++ {
		mat.Col(col, j, data)
		means[j] = stat.Mean(col, nil) * formulas.TradingDaysPerYear
	}

	// Unbiased estimator (N-1 denominator)
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)
	cov.ScaleSym(formulas.TradingDaysPerYear, cov)

	if err := checkEstimates(means, cov); err != nil {
		return nil, err
	}

	return &ReturnModel{
		MeanReturns:  means,
		Covariance:   cov,
		Observations: len(rows),
		Dropped:      dropped,
	}, nil
}

// checkEstimates rejects mean or covariance entries that overflowed. Prices
// that are finite on their own can still produce them when they differ by
// hundreds of orders of magnitude.
func checkEstimates(means []float64, cov *mat.SymDense) error {
	for i, m := range means {
		if !formulas.IsFinite(m) {
			return fmt.Errorf("%w: mean return of asset %d is not finite", ErrMalformedInput, i+1)
		}
	}
	n := cov.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !formulas.IsFinite(cov.At(i, j)) {
				return fmt.Errorf("%w: covariance of assets %d and %d is not finite", ErrMalformedInput, i+1, j+1)
			}
		}
	}
	return nil
}

// NewReturnModel wraps precomputed annualized estimates. The covariance must
// be square, symmetric and match the number of mean returns.
func NewReturnModel(meanReturns []float64, covariance [][]float64) (*ReturnModel, error) {
	n := len(meanReturns)
	if n == 0 {
		return nil, fmt.Errorf("%w: no assets provided", ErrMalformedInput)
	}
	if len(covariance) != n {
		return nil, fmt.Errorf("%w: covariance matrix size %d doesn't match asset count %d", ErrMalformedInput, len(covariance), n)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(covariance[i]) != n {
			return nil, fmt.Errorf("%w: covariance matrix row %d has size %d, expected %d", ErrMalformedInput, i, len(covariance[i]), n)
		}
		for j := i; j < n; j++ {
			if math.Abs(covariance[i][j]-covariance[j][i]) > 1e-12 {
				return nil, fmt.Errorf("%w: covariance matrix is not symmetric at (%d,%d)", ErrMalformedInput, i, j)
			}
			cov.SetSym(i, j, covariance[i][j])
		}
	}

	mu := make([]float64, n)
	copy(mu, meanReturns)
	if err := checkEstimates(mu, cov); err != nil {
		return nil, err
	}

	return &ReturnModel{MeanReturns: mu, Covariance: cov}, nil
}

// Assets returns the number of assets in the model.
func (m *ReturnModel) Assets() int {
	return len(m.MeanReturns)
}

// Volatilities returns the annualized volatility of each asset on its own.
func (m *ReturnModel) Volatilities() []float64 {
	vols := make([]float64, m.Assets())
	for i := range vols {
		vols[i] = formulas.NonNegativeSqrt(m.Covariance.At(i, i))
	}
	return vols
}

// HighCorrelations extracts asset pairs whose absolute correlation reaches
// threshold. Assets with zero variance have no defined correlation and are
// skipped.
func (m *ReturnModel) HighCorrelations(threshold float64) []CorrelationPair {
	n := m.Assets()
	pairs := make([]CorrelationPair, 0)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			vi, vj := m.Covariance.At(i, i), m.Covariance.At(j, j)
			if vi <= 0 || vj <= 0 {
				continue
			}
			correlation := m.Covariance.At(i, j) / math.Sqrt(vi*vj)
			if math.Abs(correlation) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Asset1:      i,
					Asset2:      j,
					Correlation: correlation,
				})
			}
		}
	}

	return pairs
}
