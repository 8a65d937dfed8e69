// Package model defines the piecewise error-function loop model fitted to projected hysteresis
// loops, its heuristic initial guess and the switching parameters derived from its coefficients.
//
// The model has nine coefficients, a0..a4 and b0..b3. The bias vector is split in half: the
// first half is the branch that switches at a2, the second half the branch that switches at a3.
// Each branch is an error function step from a0 (R-) to a0+a1 (R+) whose width is b0/b1 (first
// branch, below/above the switch) or b2/b3 (second branch), plus a linear term a4*v.
//
// Fits always run on the bias vector rolled by a quarter cycle (see QuarterShift), so that both
// branches are contiguous and the sweep endpoints do not fall on a switching event.
package model
