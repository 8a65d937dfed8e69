package model

import (
	"fmt"
	"math"

	"github.com/arloliu/loopfit/errs"
)

// NumCoefficients is the number of loop-model coefficients.
const NumCoefficients = 9

// Coefficients are the loop-model coefficients a0, a1, a2, a3, a4, b0, b1, b2, b3.
type Coefficients [NumCoefficients]float64

// Coefficient indices.
const (
	A0 = iota
	A1
	A2
	A3
	A4
	B0
	B1
	B2
	B3
)

// CoefficientsFrom copies a slice of NumCoefficients values.
func CoefficientsFrom(values []float64) (Coefficients, error) {
	var c Coefficients
	if len(values) != NumCoefficients {
		return c, fmt.Errorf("%w: got %d, want %d", errs.ErrInvalidCoefficients, len(values), NumCoefficients)
	}
	copy(c[:], values)

	return c, nil
}

// Slice returns the coefficients as a new slice.
func (c Coefficients) Slice() []float64 {
	out := make([]float64, NumCoefficients)
	copy(out, c[:])

	return out
}

// IsFinite reports whether every coefficient is finite.
func (c Coefficients) IsFinite() bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Record is one Guess or Fit table cell: the coefficients and a goodness score. Guesses score
// 1 - sum(residual^2); fits store the sum of squared residuals, or LowConfidence when the solver
// failed.
type Record struct {
	Coef Coefficients
	R2   float64
}

// LowConfidence is the score of a fit record whose solver failed; its coefficients are the guess.
const LowConfidence = -1

// Values returns the record in format.LoopFitLayout field order.
func (r Record) Values() []float64 {
	return append(r.Coef.Slice(), r.R2)
}

// RecordFrom parses a record in format.LoopFitLayout field order.
func RecordFrom(values []float64) (Record, error) {
	if len(values) != NumCoefficients+1 {
		return Record{}, fmt.Errorf("%w: record has %d fields, want %d", errs.ErrInvalidCoefficients, len(values), NumCoefficients+1)
	}
	c, _ := CoefficientsFrom(values[:NumCoefficients])

	return Record{Coef: c, R2: values[NumCoefficients]}, nil
}
