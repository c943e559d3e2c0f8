// Package optimization provides mean-variance portfolio optimization: the
// return model, portfolio metrics, a constrained solver over the long-only
// weight simplex and the efficient frontier sweep built on top of it.
package optimization

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the slack allowed when checking that a weight vector
// lies on the simplex.
const WeightTolerance = 1e-6

// UniformWeights returns the equal-weight portfolio (1/n each), the starting
// point of every solve.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// ProjectOntoSimplex projects v onto {x : x >= 0, sum(x) = 1} using the
// exact O(n log n) algorithm from Duchi et al. (2008), "Efficient
// projections onto the l1-ball". Modifies v in place.
//
// On this set the upper bound x_i <= 1 holds automatically, so the box
// [0,1]^n together with sum(x) = 1 needs no separate treatment.
func ProjectOntoSimplex(v []float64) {
	n := len(v)
	if n == 0 {
		return
	}

	u := make([]float64, n)
	copy(u, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	// rho: largest index j such that u[j] - (sum_{i<=j} u[i] - 1)/(j+1) > 0
	cumSum := 0.0
	rho := 0
	rhoSum := u[0]
	for j := 0; j < n; j++ {
		cumSum += u[j]
		if u[j]-(cumSum-1)/float64(j+1) > 0 {
			rho = j
			rhoSum = cumSum
		}
	}
	theta := (rhoSum - 1) / float64(rho+1)

	for i := range v {
		v[i] = math.Max(v[i]-theta, 0)
	}
}

// CheckWeights verifies that w is a valid long-only allocation within
// WeightTolerance: every weight in [0, 1] and the total equal to 1.
func CheckWeights(w []float64) error {
	if len(w) == 0 {
		return fmt.Errorf("empty weight vector")
	}

	sum := 0.0
	for i, x := range w {
		if math.IsNaN(x) || x < -WeightTolerance || x > 1+WeightTolerance {
			return fmt.Errorf("weight %d out of bounds: %v", i, x)
		}
		sum += x
	}
	if math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("weights sum to %v, expected 1", sum)
	}

	return nil
}
