package optimization

import "time"

// Solve kinds reported to a SolveObserver.
const (
	SolveKindFrontier      = "frontier"
	SolveKindMinVolatility = "min_volatility"
	SolveKindMaxReturn     = "max_return"
	SolveKindTradeoff      = "tradeoff"
	SolveKindPair          = "pair"
)

// SolveObserver receives the outcome of every solve. Used to export solver
// metrics without making this package depend on the metrics backend.
// Implementations must be safe for concurrent use.
type SolveObserver interface {
	ObserveSolve(kind string, sol Solution, elapsed time.Duration)
}

// ProgressFunc is called once per frontier point as soon as its solve
// finishes. Calls are serialized but arrive in completion order, so index
// identifies the point's position in the final frontier.
type ProgressFunc func(index int, point PortfolioPoint)
