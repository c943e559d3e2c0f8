package optimization

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Solver defaults.
const (
	DefaultMaxIterations  = 5000
	DefaultTolerance      = 1e-9
	DefaultStallTolerance = 1e-6
	DefaultSolveTimeout   = 2 * time.Second
)

// Spectral step safeguards and line search parameters.
const (
	minSpectralStep  = 1e-10
	maxSpectralStep  = 1e10
	armijoSufficient = 1e-4
	maxBacktracks    = 60
)

// SolveStatus describes how a solve terminated.
type SolveStatus int

const (
	// StatusConverged means the KKT residual fell below the tolerance.
	StatusConverged SolveStatus = iota
	// StatusIterationLimit means MaxIterations was reached first.
	StatusIterationLimit
	// StatusDeadlineExceeded means the context was cancelled or its
	// deadline passed.
	StatusDeadlineExceeded
	// StatusStalled means the line search could not decrease the objective
	// any further although the residual is above StallTolerance and the
	// iterate is not a certified kink optimum.
	StatusStalled
)

func (s SolveStatus) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusDeadlineExceeded:
		return "deadline_exceeded"
	case StatusStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// SolverOptions bounds the work done by a single solve. Zero values select
// the defaults; a negative Timeout disables the per-solve deadline.
//
// StallTolerance is the residual below which a solve whose line search can
// no longer decrease the objective still counts as converged. On
// near-singular covariance matrices rounding in the objective puts a floor
// on the attainable residual that can sit above Tolerance.
type SolverOptions struct {
	MaxIterations  int
	Tolerance      float64
	StallTolerance float64
	Timeout        time.Duration
}

// DefaultSolverOptions returns the options used when none are configured.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		MaxIterations:  DefaultMaxIterations,
		Tolerance:      DefaultTolerance,
		StallTolerance: DefaultStallTolerance,
		Timeout:        DefaultSolveTimeout,
	}
}

// Solution is the outcome of one solve. Weights always holds the best
// feasible iterate found, whether or not the solve converged.
type Solution struct {
	Weights    []float64
	Value      float64
	Residual   float64
	Iterations int
	Status     SolveStatus
	Converged  bool
}

// Solver minimizes an objective over the long-only weight simplex
//
//	minimize f(w)  subject to  sum(w) = 1,  0 <= w_i <= 1
//
// with the spectral projected gradient method (Birgin, Martínez & Raydan):
// a Barzilai-Borwein step along the negative gradient, projected onto the
// simplex, followed by an Armijo backtracking search along the projected
// direction. All iterates are feasible.
//
// Convergence is declared when the KKT stationarity residual
// ||w - P(w - ∇f(w))||∞ drops below the tolerance; it is zero exactly at
// points satisfying the KKT conditions of the problem. A solve whose line
// search stops making progress is also converged if the residual is within
// StallTolerance, or if it sits on a kink of the objective that no feasible
// edge direction descends from.
//
// A Solver holds no mutable state and is safe for concurrent use.
type Solver struct {
	opts SolverOptions
}

// NewSolver creates a solver, filling unset options with defaults.
func NewSolver(opts SolverOptions) *Solver {
	defaults := DefaultSolverOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaults.MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaults.Tolerance
	}
	if opts.StallTolerance < opts.Tolerance {
		opts.StallTolerance = math.Max(defaults.StallTolerance, opts.Tolerance)
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	return &Solver{opts: opts}
}

// Options returns the effective solver options.
func (s *Solver) Options() SolverOptions {
	return s.opts
}

// Solve minimizes problem starting from initial, which is projected onto
// the simplex first. It never fails: on cancellation, iteration exhaustion
// or a stalled line search the best iterate is returned with Converged set
// to false and Status explaining why.
func (s *Solver) Solve(ctx context.Context, problem Problem, initial []float64) Solution {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	n := len(initial)
	x := make([]float64, n)
	copy(x, initial)
	ProjectOntoSimplex(x)

	g := make([]float64, n)
	problem.Grad(g, x)
	f := problem.Func(x)

	trial := make([]float64, n)
	d := make([]float64, n)
	xNew := make([]float64, n)
	gNew := make([]float64, n)
	step := make([]float64, n)
	change := make([]float64, n)

	residual := kktResidual(x, g, trial)
	lambda := clampStep(1 / math.Max(residual, minSpectralStep))

	sol := Solution{Status: StatusIterationLimit}
	iter := 0
	for ; ; iter++ {
		if residual < s.opts.Tolerance {
			sol.Status = StatusConverged
			break
		}
		if iter >= s.opts.MaxIterations {
			sol.Status = StatusIterationLimit
			break
		}
		if ctx.Err() != nil {
			sol.Status = StatusDeadlineExceeded
			break
		}

		// Projected spectral direction d = P(x - λg) - x
		for i := range trial {
			trial[i] = x[i] - lambda*g[i]
		}
		ProjectOntoSimplex(trial)
		floats.SubTo(d, trial, x)
		slope := floats.Dot(g, d)

		// Armijo backtracking along d; x + θd stays feasible for θ in (0, 1]
		theta := 1.0
		fNew := f
		accepted := false
		for k := 0; k < maxBacktracks; k++ {
			floats.AddScaledTo(xNew, x, theta, d)
			fNew = problem.Func(xNew)
			// Strict decrease guards against accepting steps lost to rounding
			if fNew < f && fNew <= f+armijoSufficient*theta*slope {
				accepted = true
				break
			}
			theta *= 0.5
		}
		if !accepted {
			if residual < s.opts.StallTolerance || s.optimalAtKink(problem, x, d) {
				sol.Status = StatusConverged
			} else {
				sol.Status = StatusStalled
			}
			break
		}

		problem.Grad(gNew, xNew)

		// Barzilai-Borwein step: λ = s's / s'y
		floats.SubTo(step, xNew, x)
		floats.SubTo(change, gNew, g)
		sy := floats.Dot(step, change)
		if sy <= 0 {
			lambda = maxSpectralStep
		} else {
			lambda = clampStep(floats.Dot(step, step) / sy)
		}

		copy(x, xNew)
		copy(g, gNew)
		f = fNew

		residual = kktResidual(x, g, trial)
	}

	// The line search is monotone, so the last iterate is the best one seen.
	sol.Weights = x
	sol.Value = f
	sol.Residual = residual
	sol.Iterations = iter
	sol.Converged = sol.Status == StatusConverged
	return sol
}

// optimalAtKink reports whether x is a minimum on the simplex although the
// gradient residual says otherwise, which happens on a kink of the
// objective. It requires a non-negative one-sided derivative along every
// edge direction e_j - e_i that keeps x feasible. edge is scratch space.
func (s *Solver) optimalAtKink(problem Problem, x, edge []float64) bool {
	if problem.KinkSlope == nil {
		return false
	}
	for i := range x {
		if x[i] <= 0 {
			continue
		}
		for j := range x {
			if j == i {
				continue
			}
			for k := range edge {
				edge[k] = 0
			}
			edge[i], edge[j] = -1, 1

			slope, atKink := problem.KinkSlope(x, edge)
			if !atKink || slope < -s.opts.Tolerance {
				return false
			}
		}
	}
	return true
}

// kktResidual returns ||x - P(x - g)||∞, using scratch for the projection.
func kktResidual(x, g, scratch []float64) float64 {
	for i := range scratch {
		scratch[i] = x[i] - g[i]
	}
	ProjectOntoSimplex(scratch)

	residual := 0.0
	for i := range x {
		residual = math.Max(residual, math.Abs(x[i]-scratch[i]))
	}
	return residual
}

func clampStep(lambda float64) float64 {
	if math.IsNaN(lambda) {
		return maxSpectralStep
	}
	return math.Min(maxSpectralStep, math.Max(minSpectralStep, lambda))
}
