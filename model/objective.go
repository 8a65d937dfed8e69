package model

import (
	"fmt"
	"math"

	"github.com/arloliu/loopfit/errs"
)

// Objective is a closed set of objective functions that can be fitted to a loop.
type Objective uint8

const (
	// BELoop is the band-excitation loop model.
	BELoop Objective = iota + 1
)

// switchSharpness scales the error function that switches a branch from its lower to its
// upper width coefficient.
const switchSharpness = 1000

func (o Objective) String() string {
	switch o {
	case BELoop:
		return "BE_LOOP"
	default:
		return "Unknown"
	}
}

// ParseObjective maps a name returned by String back to an Objective.
func ParseObjective(name string) (Objective, error) {
	if name == BELoop.String() {
		return BELoop, nil
	}

	return 0, fmt.Errorf("%w: unknown objective %q", errs.ErrInvalidConfig, name)
}

// NumParams returns the number of coefficients of the objective.
func (o Objective) NumParams() int {
	return NumCoefficients
}

// Evaluate writes the model value at every bias point of v into dst, which must have len(v).
func (o Objective) Evaluate(coef, v, dst []float64) {
	a0, a1, a2, a3, a4 := coef[A0], coef[A1], coef[A2], coef[A3], coef[A4]
	b0, b1, b2, b3 := coef[B0], coef[B1], coef[B2], coef[B3]

	half := len(v) / 2
	for i, x := range v {
		var y float64
		if i < half {
			g := (b1-b0)/2*(math.Erf((x-a2)*switchSharpness)+1) + b0
			y = (g*math.Erf((x-a2)/g) + b0) / (b0 + b1)
		} else {
			g := (b3-b2)/2*(math.Erf((x-a3)*switchSharpness)+1) + b2
			y = (g*math.Erf((x-a3)/g) + b2) / (b2 + b3)
		}
		dst[i] = a0 + a1*y + a4*x
	}
}

// Residuals writes model(v) - y into dst.
func (o Objective) Residuals(coef, v, y, dst []float64) {
	o.Evaluate(coef, v, dst)
	for i := range dst {
		dst[i] -= y[i]
	}
}

// SumSquares returns the sum of squared residuals of coef against (v, y). Non-finite model
// values make the result +Inf.
func (o Objective) SumSquares(coef, v, y, scratch []float64) float64 {
	o.Residuals(coef, v, y, scratch)
	sum := 0.0
	for _, r := range scratch {
		sum += r * r
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}

	return sum
}

// QuarterShift returns the roll that moves the bias sweep by a quarter cycle, -len/4.
func QuarterShift(n int) int {
	return -n / 4
}

// Roll returns x circularly shifted by shift: out[i] = x[(i-shift) mod len(x)].
func Roll(x []float64, shift int) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] = x[((i-shift)%n+n)%n]
	}

	return out
}
