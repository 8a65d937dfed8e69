package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// InitialGuess derives loop coefficients from the shape of a curve sampled on the
// quarter-cycle shifted bias vector v (first half one branch, second half the other).
//
// The saturation levels give a0 (minimum) and a1 (span); the bias at which each branch crosses
// the half-span level gives a2 and a3; the slope at that crossing gives the branch widths,
// because the model's slope at the switch is a1*(2/sqrt(pi))/(b_lo+b_hi). Both widths of a
// branch start equal and a4 starts at zero.
func InitialGuess(v, y []float64) Coefficients {
	var c Coefficients
	if len(v) < 4 || len(v) != len(y) {
		c[B0], c[B1], c[B2], c[B3] = 1, 1, 1, 1
		return c
	}

	lo, hi := floats.Min(y), floats.Max(y)
	c[A0] = lo
	c[A1] = hi - lo
	mid := lo + c[A1]/2

	span := floats.Max(v) - floats.Min(v)
	fallbackWidth := span / 10
	if fallbackWidth <= 0 {
		fallbackWidth = 1
	}

	half := len(v) / 2
	a2, w1 := crossing(v[:half], y[:half], mid, c[A1], fallbackWidth)
	a3, w2 := crossing(v[half:], y[half:], mid, c[A1], fallbackWidth)

	c[A2], c[A3] = a2, a3
	c[B0], c[B1] = w1/2, w1/2
	c[B2], c[B3] = w2/2, w2/2

	return c
}

// crossing finds where the branch (v, y) crosses level and estimates the summed branch width
// from the local slope.
func crossing(v, y []float64, level, amplitude, fallbackWidth float64) (float64, float64) {
	best := -1
	for i := 0; i+1 < len(y); i++ {
		if (y[i]-level)*(y[i+1]-level) <= 0 && y[i] != y[i+1] {
			// prefer the steepest crossing, noise can add spurious ones
			if best < 0 || math.Abs(y[i+1]-y[i]) > math.Abs(y[best+1]-y[best]) {
				best = i
			}
		}
	}

	if best < 0 {
		i := nearest(y, level)
		return v[i], fallbackWidth
	}

	t := (level - y[best]) / (y[best+1] - y[best])
	at := v[best] + t*(v[best+1]-v[best])

	dv := v[best+1] - v[best]
	if dv == 0 || amplitude == 0 {
		return at, fallbackWidth
	}
	slope := math.Abs((y[best+1] - y[best]) / dv)
	width := 2 * math.Abs(amplitude) / (math.Sqrt(math.Pi) * slope)
	if math.IsNaN(width) || math.IsInf(width, 0) || width <= 0 {
		width = fallbackWidth
	}

	return at, width
}

func nearest(y []float64, level float64) int {
	best := 0
	for i := range y {
		if math.Abs(y[i]-level) < math.Abs(y[best]-level) {
			best = i
		}
	}

	return best
}
