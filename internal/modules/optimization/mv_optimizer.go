package optimization

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/frontier/pkg/formulas"
)

// volatilityFloor is the volatility below which the volatility term is
// treated as sitting at its kink and contributes a zero subgradient.
const volatilityFloor = 1e-14

// kinkVolatility is the largest annual volatility at which a stalled solve
// is examined as sitting on the volatility kink.
const kinkVolatility = 1e-7

// Problem is a smooth (or subdifferentiable) objective over portfolio
// weights. Func returns the objective value at x; Grad writes a
// (sub)gradient at x into grad.
//
// KinkSlope is optional. It returns the one-sided derivative of Func at x
// along d when x sits on a kink of the objective, and false otherwise.
type Problem struct {
	Func      func(x []float64) float64
	Grad      func(grad, x []float64)
	KinkSlope func(x, d []float64) (float64, bool)
}

// PortfolioMetrics returns the expected annual return and annual volatility
// of weights under model.
//
// Mathematical formulation:
//   - return     = μ'w
//   - volatility = sqrt(max(0, w'Σw))
//
// The radicand is clamped because a near-singular Σ can produce a tiny
// negative quadratic form through rounding.
func PortfolioMetrics(weights []float64, model *ReturnModel) (float64, float64) {
	ret := floats.Dot(model.MeanReturns, weights)
	w := mat.NewVecDense(len(weights), weights)
	return ret, formulas.NonNegativeSqrt(mat.Inner(w, model.Covariance, w))
}

// TradeoffObjective scalarizes return against volatility:
//
//	-alpha·return + (1-alpha)·volatility
//
// alpha = 1 pursues pure return maximization, alpha = 0 pure volatility
// minimization. Maximizing return is expressed as minimizing its negation so
// a single minimizer serves every portfolio.
func TradeoffObjective(weights []float64, alpha float64, model *ReturnModel) float64 {
	ret, vol := PortfolioMetrics(weights, model)
	return -alpha*ret + (1-alpha)*vol
}

// TradeoffProblem builds the tradeoff objective for a fixed alpha.
func TradeoffProblem(model *ReturnModel, alpha float64) Problem {
	return meanVolatilityProblem(model, alpha, 1-alpha)
}

// MinVolatilityProblem minimizes sqrt(w'Σw) with no return term.
func MinVolatilityProblem(model *ReturnModel) Problem {
	return meanVolatilityProblem(model, 0, 1)
}

// MaxReturnProblem minimizes -μ'w with no volatility term.
func MaxReturnProblem(model *ReturnModel) Problem {
	n := model.Assets()
	return Problem{
		Func: func(x []float64) float64 {
			return -floats.Dot(model.MeanReturns, x)
		},
		Grad: func(grad, x []float64) {
			for i := 0; i < n; i++ {
				grad[i] = -model.MeanReturns[i]
			}
		},
	}
}

// meanVolatilityProblem minimizes -returnWeight·μ'w + volWeight·sqrt(w'Σw).
// The gradient of the volatility term is Σw/σ; at σ = 0 the zero vector is
// a valid subgradient, and the derivative along d is
// -returnWeight·μ'd + volWeight·sqrt(d'Σd).
//
// The returned Problem keeps scratch space and must not be evaluated from
// more than one goroutine at a time.
func meanVolatilityProblem(model *ReturnModel, returnWeight, volWeight float64) Problem {
	n := model.Assets()
	sigmaW := mat.NewVecDense(n, nil)

	return Problem{
		Func: func(x []float64) float64 {
			ret, vol := PortfolioMetrics(x, model)
			return -returnWeight*ret + volWeight*vol
		},
		Grad: func(grad, x []float64) {
			w := mat.NewVecDense(n, x)
			sigmaW.MulVec(model.Covariance, w)
			vol := formulas.NonNegativeSqrt(mat.Dot(w, sigmaW))

			for i := 0; i < n; i++ {
				grad[i] = -returnWeight * model.MeanReturns[i]
				if volWeight != 0 && vol > volatilityFloor {
					grad[i] += volWeight * sigmaW.AtVec(i) / vol
				}
			}
		},
		KinkSlope: func(x, d []float64) (float64, bool) {
			if volWeight == 0 {
				return 0, false
			}
			if _, vol := PortfolioMetrics(x, model); vol > kinkVolatility {
				return 0, false
			}
			ret, vol := PortfolioMetrics(d, model)
			return -returnWeight*ret + volWeight*vol, true
		},
	}
}
