package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/arloliu/loopfit/model"
)

// minimize runs a gonum optimize method on the scalar sum of squares.
func minimize(p problem, x0 model.Coefficients, strategy Strategy, maxIter int, tol float64) (Result, error) {
	scratch := make([]float64, len(p.v))
	gradScratch := make([]float64, len(p.v))

	prob := optimize.Problem{
		Func: func(x []float64) float64 {
			return p.cost(x, scratch)
		},
	}

	var method optimize.Method
	switch strategy {
	case BFGS:
		settings := &fd.Settings{Formula: fd.Central}
		prob.Grad = func(grad, x []float64) {
			fd.Gradient(grad, func(x []float64) float64 { return p.cost(x, gradScratch) }, x, settings)
		}
		method = &optimize.BFGS{}
	default:
		method = &optimize.NelderMead{}
	}

	initial := p.cost(x0[:], scratch)
	if math.IsInf(initial, 0) {
		return Result{}, errNonFinite
	}

	result, err := optimize.Minimize(prob, x0.Slice(), &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol * tol,
			Relative:   tol,
			Iterations: 20,
		},
	}, method)
	if result == nil {
		return Result{}, fmt.Errorf("%s: %w", strategy, err)
	}

	var res Result
	copy(res.Coef[:], result.X)
	res.Cost = result.F
	res.Iterations = result.MajorIterations

	switch {
	case err == nil:
		res.Converged = true
	case errors.Is(err, optimize.IterationLimit.Err()), result.Status == optimize.IterationLimit:
		res.Converged = false
	default:
		// a failed line search still leaves the best location found
		if result.F > initial || math.IsInf(result.F, 0) {
			return Result{}, fmt.Errorf("%s: %w", strategy, err)
		}
		res.Converged = result.F < initial
	}

	return res, nil
}
