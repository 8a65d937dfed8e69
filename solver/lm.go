package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/loopfit/internal/pool"
	"github.com/arloliu/loopfit/model"
)

const (
	lmInitialDamping = 1e-3
	lmMaxDamping     = 1e16
	lmDampingUp      = 10
	lmDampingDown    = 10
	// lmMinDiagonal keeps the damping term of a parameter with zero sensitivity positive.
	lmMinDiagonal = 1e-12
)

// levenbergMarquardt solves (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr and steps x -= δ, raising λ after a
// rejected step and lowering it after an accepted one.
func levenbergMarquardt(ctx context.Context, p problem, x0 model.Coefficients, maxIter int, tol float64) (Result, error) {
	n := model.NumCoefficients
	m := len(p.v)

	x := x0.Slice()
	trial := make([]float64, n)

	r, releaseR := pool.GetFloat64Slice(m)
	defer releaseR()
	scratch, releaseScratch := pool.GetFloat64Slice(m)
	defer releaseScratch()

	p.residuals(r, x)
	cost := sumSquares(r)
	if math.IsInf(cost, 0) {
		return Result{}, errNonFinite
	}

	jac := mat.NewDense(m, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central}

	var (
		jtj   mat.SymDense
		grad  mat.VecDense
		delta mat.VecDense
		chol  mat.Cholesky
	)
	damped := mat.NewSymDense(n, nil)
	lambda := lmInitialDamping

	res := Result{Cost: cost}
	for iter := 1; iter <= maxIter; iter++ {
		res.Iterations = iter
		if iter%16 == 0 && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		fd.Jacobian(jac, p.residuals, x, settings)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		if mat.Norm(&grad, math.Inf(1)) <= tol*math.Max(cost, tol) {
			res.Converged = true
			break
		}

		accepted := false
		for lambda <= lmMaxDamping {
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				damped.SetSym(i, i, d+lambda*math.Max(d, lmMinDiagonal))
			}
			if !chol.Factorize(damped) {
				lambda *= lmDampingUp
				continue
			}
			if err := chol.SolveVecTo(&delta, &grad); err != nil {
				lambda *= lmDampingUp
				continue
			}

			for i := range trial {
				trial[i] = x[i] - delta.AtVec(i)
			}
			trialCost := p.cost(trial, scratch)
			if trialCost < cost {
				accepted = true
				break
			}
			lambda *= lmDampingUp
		}
		if !accepted {
			// no damping produces a descent step: x is a minimum to working precision
			res.Converged = true
			break
		}

		step := floats.Norm(delta.RawVector().Data, 2)
		prev := cost
		copy(x, trial)
		p.residuals(r, x)
		cost = sumSquares(r)
		lambda = math.Max(lambda/lmDampingDown, 1e-12)

		if prev-cost <= tol*prev || step <= tol*(floats.Norm(x, 2)+tol) {
			res.Converged = true
			break
		}
	}

	copy(res.Coef[:], x)
	res.Cost = cost

	return res, nil
}

func sumSquares(r []float64) float64 {
	sum := floats.Dot(r, r)
	if math.IsNaN(sum) {
		return math.Inf(1)
	}

	return sum
}
