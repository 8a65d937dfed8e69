package solver

import (
	"fmt"
	"strings"

	"github.com/arloliu/loopfit/errs"
)

// Strategy selects the minimisation algorithm used by a Solver.
type Strategy int

const (
	// LevenbergMarquardt damps Gauss-Newton steps on the residual vector.
	LevenbergMarquardt Strategy = iota
	// BFGS minimises the sum of squares with a quasi-Newton method and a finite-difference gradient.
	BFGS
	// NelderMead minimises the sum of squares with the derivative-free simplex method.
	NelderMead
)

// strategyNames maps Strategy to its string representation.
var strategyNames = map[Strategy]string{
	LevenbergMarquardt: "levenberg-marquardt",
	BFGS:               "bfgs",
	NelderMead:         "nelder-mead",
}

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}

	return "unknown"
}

var strategyFromString = map[string]Strategy{
	"levenberg-marquardt": LevenbergMarquardt,
	"lm":                  LevenbergMarquardt,
	"bfgs":                BFGS,
	"nelder-mead":         NelderMead,
	"simplex":             NelderMead,
}

// ParseStrategy returns the Strategy for name, case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	if s, ok := strategyFromString[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}

	return 0, fmt.Errorf("%w: unknown solver strategy %q", errs.ErrInvalidConfig, name)
}
