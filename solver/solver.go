// Package solver fits loop-model coefficients to a measured curve by nonlinear least squares.
//
// A Solver pairs a model.Objective with a Strategy. Fit starts from an initial coefficient
// vector and returns the refined coefficients together with the final sum of squared residuals.
// A fit that stops at the iteration limit returns its best coefficients and an error wrapping
// errs.ErrNotConverged, so callers can decide whether to keep them.
//
// Solvers are safe for concurrent use; every call allocates its own scratch state.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/internal/options"
	"github.com/arloliu/loopfit/model"
)

const (
	// DefaultMaxIterations bounds the number of major iterations of a single fit.
	DefaultMaxIterations = 400
	// DefaultTolerance is the relative change in cost below which a fit has converged.
	DefaultTolerance = 1e-10
)

var errNonFinite = errors.New("model is not finite at the initial coefficients")

// Result is the outcome of a single fit.
type Result struct {
	Coef       model.Coefficients
	Cost       float64 // sum of squared residuals at Coef
	Iterations int
	Converged  bool
}

type config struct {
	strategy  Strategy
	objective model.Objective
	maxIter   int
	tolerance float64
}

// Option configures a Solver.
type Option = options.Option[*config]

// WithStrategy selects the minimisation algorithm.
func WithStrategy(s Strategy) Option {
	return options.New(func(c *config) error {
		if _, ok := strategyNames[s]; !ok {
			return fmt.Errorf("%w: solver strategy %d", errs.ErrInvalidConfig, s)
		}
		c.strategy = s

		return nil
	})
}

// WithObjective selects the objective function. Only model.BELoop exists today.
func WithObjective(o model.Objective) Option {
	return options.New(func(c *config) error {
		if o != model.BELoop {
			return fmt.Errorf("%w: objective %s", errs.ErrInvalidConfig, o)
		}
		c.objective = o

		return nil
	})
}

// WithMaxIterations sets the iteration limit of a fit.
func WithMaxIterations(n int) Option {
	return options.New(func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("%w: max iterations must be positive, got %d", errs.ErrInvalidConfig, n)
		}
		c.maxIter = n

		return nil
	})
}

// WithTolerance sets the relative convergence tolerance.
func WithTolerance(tol float64) Option {
	return options.New(func(c *config) error {
		if !(tol > 0) || math.IsInf(tol, 0) {
			return fmt.Errorf("%w: tolerance must be positive, got %g", errs.ErrInvalidConfig, tol)
		}
		c.tolerance = tol

		return nil
	})
}

// Solver runs least-squares fits of one objective with one strategy.
type Solver struct {
	cfg config
}

// New creates a Solver. The default is Levenberg-Marquardt on model.BELoop.
func New(opts ...Option) (*Solver, error) {
	cfg := config{
		strategy:  LevenbergMarquardt,
		objective: model.BELoop,
		maxIter:   DefaultMaxIterations,
		tolerance: DefaultTolerance,
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Solver{cfg: cfg}, nil
}

// Strategy returns the configured strategy.
func (s *Solver) Strategy() Strategy {
	return s.cfg.strategy
}

// Objective returns the configured objective.
func (s *Solver) Objective() model.Objective {
	return s.cfg.objective
}

// Fit refines x0 so that the objective evaluated on v approaches y.
//
// The returned error wraps errs.ErrNotConverged when the iteration limit was reached; Result
// then holds the best coefficients found. Any other error leaves Result zero.
func (s *Solver) Fit(ctx context.Context, v, y []float64, x0 model.Coefficients) (Result, error) {
	if len(v) == 0 || len(v) != len(y) {
		return Result{}, fmt.Errorf("%w: bias has %d points, response has %d", errs.ErrInvalidConfig, len(v), len(y))
	}
	if !x0.IsFinite() {
		return Result{}, fmt.Errorf("%w: initial coefficients are not finite", errs.ErrInvalidCoefficients)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	p := problem{objective: s.cfg.objective, v: v, y: y}

	var (
		res Result
		err error
	)
	switch s.cfg.strategy {
	case LevenbergMarquardt:
		res, err = levenbergMarquardt(ctx, p, x0, s.cfg.maxIter, s.cfg.tolerance)
	case BFGS, NelderMead:
		res, err = minimize(p, x0, s.cfg.strategy, s.cfg.maxIter, s.cfg.tolerance)
	default:
		return Result{}, fmt.Errorf("%w: solver strategy %s", errs.ErrInvalidConfig, s.cfg.strategy)
	}
	if err != nil {
		return res, err
	}
	if !res.Converged {
		return res, fmt.Errorf("%w: %s stopped after %d iterations (cost %g)",
			errs.ErrNotConverged, s.cfg.strategy, res.Iterations, res.Cost)
	}

	return res, nil
}

// problem binds an objective to one curve.
type problem struct {
	objective model.Objective
	v, y      []float64
}

func (p problem) residuals(dst, x []float64) {
	p.objective.Residuals(x, p.v, p.y, dst)
}

func (p problem) cost(x, scratch []float64) float64 {
	return p.objective.SumSquares(x, p.v, p.y, scratch)
}
