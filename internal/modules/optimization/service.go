package optimization

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/frontier/internal/utils"
)

// Frontier sweep defaults.
const (
	DefaultFrontierPoints = 50
	DefaultAlpha          = 0.5
)

// PortfolioPoint is one solved portfolio: its weights and the metrics they
// produce.
type PortfolioPoint struct {
	Return     float64     `json:"return"`
	Volatility float64     `json:"volatility"`
	Weights    []float64   `json:"weights"`
	Converged  bool        `json:"-"`
	Status     SolveStatus `json:"-"`
}

// FrontierResult is the full answer for one request.
type FrontierResult struct {
	EfficientFrontier []PortfolioPoint `json:"efficient_frontier"`
	MinimumVolatility PortfolioPoint   `json:"minimum_volatility_portfolio"`
	MaximumReturn     PortfolioPoint   `json:"maximum_return_portfolio"`
	Tradeoff          PortfolioPoint   `json:"tradeoff_portfolio"`
	Warnings          []string         `json:"warnings,omitempty"`
}

// FrontierService sweeps the tradeoff parameter across [0, 1] and solves
// the named portfolios for one return model.
type FrontierService struct {
	solver   *Solver
	points   int
	workers  int
	observer SolveObserver
	log      zerolog.Logger
}

// NewFrontierService creates a frontier service. points below 2 selects
// DefaultFrontierPoints; workers below 1 selects the logical CPU count.
func NewFrontierService(solver *Solver, points, workers int, log zerolog.Logger) *FrontierService {
	if points < 2 {
		points = DefaultFrontierPoints
	}
	return &FrontierService{
		solver:  solver,
		points:  points,
		workers: utils.WorkerCount(workers),
		log:     log.With().Str("component", "frontier_service").Logger(),
	}
}

// SetObserver sets the observer notified after every solve.
func (s *FrontierService) SetObserver(observer SolveObserver) {
	s.observer = observer
}

// Points returns the number of frontier points per sweep.
func (s *FrontierService) Points() int {
	return s.points
}

// FrontierAlphas returns n evenly spaced alphas from 0 to 1 inclusive. The
// last alpha is exactly 1.
func FrontierAlphas(n int) []float64 {
	if n < 2 {
		return []float64{0}
	}
	alphas := floats.Span(make([]float64, n), 0, 1)
	// Span accumulates the step and can land one ulp short of 1
	alphas[n-1] = 1
	return alphas
}

// ValidateAlpha rejects tradeoff parameters outside [0, 1].
func ValidateAlpha(alpha float64) error {
	if !(alpha >= 0 && alpha <= 1) {
		return fmt.Errorf("%w: alpha must be between 0 and 1, got %v", ErrMalformedInput, alpha)
	}
	return nil
}

// Compute solves the frontier, minimum-volatility, maximum-return and
// tradeoff portfolios for model.
func (s *FrontierService) Compute(ctx context.Context, model *ReturnModel, alpha float64) (*FrontierResult, error) {
	return s.ComputeWithProgress(ctx, model, alpha, nil)
}

// ComputeWithProgress is Compute with a callback fired as each frontier point
// completes. Every solve is independent; they fan out over at most workers
// goroutines and are gathered back in ascending alpha order.
//
// Points that fail to converge are still returned with their best iterate
// and a warning. The only errors are invalid input and cancellation of ctx.
func (s *FrontierService) ComputeWithProgress(
	ctx context.Context,
	model *ReturnModel,
	alpha float64,
	progress ProgressFunc,
) (*FrontierResult, error) {
	if err := ValidateAlpha(alpha); err != nil {
		return nil, err
	}
	if model == nil || model.Assets() < MinAssets {
		return nil, fmt.Errorf("%w: return model needs at least %d assets", ErrMalformedInput, MinAssets)
	}

	timer := utils.NewTimer("efficient_frontier", s.log)

	if pairs := model.HighCorrelations(HighCorrelationThreshold); len(pairs) > 0 {
		s.log.Debug().
			Interface("pairs", pairs).
			Msg("Highly correlated assets in return model")
	}

	alphas := FrontierAlphas(s.points)
	frontier := make([]PortfolioPoint, len(alphas))

	var (
		minVol, maxRet, tradeoff PortfolioPoint
		progressMu               sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, a := range alphas {
		i, a := i, a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frontier[i] = s.solvePoint(gctx, SolveKindFrontier, model, TradeoffProblem(model, a))
			if progress != nil {
				progressMu.Lock()
				progress(i, frontier[i])
				progressMu.Unlock()
			}
			return nil
		})
	}

	named := []struct {
		kind    string
		target  *PortfolioPoint
		problem func() Problem
	}{
		{SolveKindMinVolatility, &minVol, func() Problem { return MinVolatilityProblem(model) }},
		{SolveKindMaxReturn, &maxRet, func() Problem { return MaxReturnProblem(model) }},
		{SolveKindTradeoff, &tradeoff, func() Problem { return TradeoffProblem(model, alpha) }},
	}
	for _, n := range named {
		n := n
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			*n.target = s.solvePoint(gctx, n.kind, model, n.problem())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("frontier computation cancelled: %w", err)
	}
	// Solves that hit a cancelled parent context return quietly; the
	// request as a whole is still abandoned.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("frontier computation cancelled: %w", err)
	}

	result := &FrontierResult{
		EfficientFrontier: frontier,
		MinimumVolatility: minVol,
		MaximumReturn:     maxRet,
		Tradeoff:          tradeoff,
	}

	for i, p := range frontier {
		if !p.Converged {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("frontier point %d (alpha=%.4f) did not converge: %s", i, alphas[i], p.Status))
		}
	}
	for _, n := range named {
		if !n.target.Converged {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s portfolio did not converge: %s", n.kind, n.target.Status))
		}
	}

	if len(result.Warnings) > 0 {
		s.log.Warn().
			Int("non_converged", len(result.Warnings)).
			Strs("warnings", result.Warnings).
			Msg("Some solves did not converge, returning best iterates")
	}

	timer.StopWithContext(map[string]interface{}{
		"assets":       model.Assets(),
		"observations": model.Observations,
		"points":       len(frontier),
		"alpha":        alpha,
	})

	return result, nil
}

// OptimizePair solves the two-asset allocation for riskFactor.
func (s *FrontierService) OptimizePair(ctx context.Context, pm *PairModel, riskFactor float64) (PortfolioPoint, error) {
	start := time.Now()
	sol, err := pm.Optimize(ctx, s.solver, riskFactor)
	if err != nil {
		return PortfolioPoint{}, err
	}

	if s.observer != nil {
		s.observer.ObserveSolve(SolveKindPair, sol, time.Since(start))
	}
	if !sol.Converged {
		s.log.Warn().
			Str("status", sol.Status.String()).
			Float64("risk_factor", riskFactor).
			Msg("Pair solve did not converge, returning best iterate")
	}

	return NewPortfolioPoint(sol, pm.Model), nil
}

func (s *FrontierService) solvePoint(ctx context.Context, kind string, model *ReturnModel, problem Problem) PortfolioPoint {
	start := time.Now()
	sol := s.solver.Solve(ctx, problem, UniformWeights(model.Assets()))
	elapsed := time.Since(start)

	if s.observer != nil {
		s.observer.ObserveSolve(kind, sol, elapsed)
	}
	if !sol.Converged {
		s.log.Debug().
			Str("kind", kind).
			Str("status", sol.Status.String()).
			Int("iterations", sol.Iterations).
			Float64("residual", sol.Residual).
			Msg("Solve did not converge")
	}

	return NewPortfolioPoint(sol, model)
}

// NewPortfolioPoint evaluates a solution's weights under model.
func NewPortfolioPoint(sol Solution, model *ReturnModel) PortfolioPoint {
	ret, vol := PortfolioMetrics(sol.Weights, model)
	return PortfolioPoint{
		Return:     ret,
		Volatility: vol,
		Weights:    sol.Weights,
		Converged:  sol.Converged,
		Status:     sol.Status,
	}
}
