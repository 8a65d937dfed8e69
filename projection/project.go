// Package projection turns the complex response of one pixel into an upright hysteresis loop.
//
// The (amplitude, phase) trace is a cloud of points in the complex plane that lies close to a
// line. Project rotates that line onto the real axis, removes the perpendicular offset, orients
// the loop so that the response at the largest bias is the larger one, and measures the area
// and centroid of the resulting (bias, response) polygon.
package projection

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are the geometric properties of a projected loop.
type Metrics struct {
	Area          float64
	CentroidX     float64
	CentroidY     float64
	RotationAngle float64 // radians
	Offset        float64
}

// Record returns the metrics in format.LoopMetricsLayout field order.
func (m Metrics) Record() []float64 {
	return []float64{m.Area, m.CentroidX, m.CentroidY, m.RotationAngle, m.Offset}
}

// Result is the projection of one pixel.
type Result struct {
	Projected []float64
	Metrics   Metrics
}

// Project projects one loop. bias, amp and phase must have the same length, at least 3.
func Project(bias, amp, phase []float64) (Result, error) {
	n := len(bias)
	if len(amp) != n || len(phase) != n {
		return Result{}, fmt.Errorf("projection: bias, amplitude and phase lengths differ (%d, %d, %d)", n, len(amp), len(phase))
	}
	if n < 3 {
		return Result{}, fmt.Errorf("projection: need at least 3 points, got %d", n)
	}

	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		s, c := math.Sincos(phase[i])
		x[i] = amp[i] * c
		y[i] = amp[i] * s
	}

	// principal axis of the point cloud
	sxx := stat.Variance(x, nil)
	syy := stat.Variance(y, nil)
	sxy := stat.Covariance(x, y, nil)
	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)

	sin, cos := math.Sincos(theta)
	projected := make([]float64, n)
	perp := make([]float64, n)
	for i := range x {
		projected[i] = x[i]*cos + y[i]*sin
		perp[i] = -x[i]*sin + y[i]*cos
	}
	offset := stat.Mean(perp, nil)

	if projected[floats.MaxIdx(bias)] < projected[floats.MinIdx(bias)] {
		floats.Scale(-1, projected)
		offset = -offset
		theta += math.Pi
	}

	area := PolygonArea(bias, projected)
	cx, cy := PolygonCentroid(bias, projected)

	return Result{
		Projected: projected,
		Metrics: Metrics{
			Area:          area,
			CentroidX:     cx,
			CentroidY:     cy,
			RotationAngle: theta,
			Offset:        offset,
		},
	}, nil
}

// Batch projects every pixel concurrently with at most workers goroutines (unbounded when
// workers < 1). Results are returned in pixel order.
func Batch(ctx context.Context, bias []float64, amp, phase [][]float64, workers int) ([]Result, error) {
	if len(amp) != len(phase) {
		return nil, fmt.Errorf("projection: %d amplitude rows, %d phase rows", len(amp), len(phase))
	}

	results := make([]Result, len(amp))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i := range amp {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := Project(bias, amp[i], phase[i])
			if err != nil {
				return fmt.Errorf("pixel %d: %w", i, err)
			}
			results[i] = r

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// PolygonArea returns the signed shoelace area of the closed polygon (x[i], y[i]). It is
// positive for counter-clockwise traversal.
func PolygonArea(x, y []float64) float64 {
	n := len(x)
	sum := 0.0
	for i := range n {
		j := (i + 1) % n
		sum += x[i]*y[j] - x[j]*y[i]
	}

	return sum / 2
}

// PolygonCentroid returns the centroid of the closed polygon (x[i], y[i]). A degenerate polygon
// with zero area yields the mean of its vertices.
func PolygonCentroid(x, y []float64) (float64, float64) {
	n := len(x)
	area := PolygonArea(x, y)
	if n == 0 {
		return 0, 0
	}
	if area == 0 {
		return stat.Mean(x, nil), stat.Mean(y, nil)
	}

	var cx, cy float64
	for i := range n {
		j := (i + 1) % n
		cross := x[i]*y[j] - x[j]*y[i]
		cx += (x[i] + x[j]) * cross
		cy += (y[i] + y[j]) * cross
	}

	return cx / (6 * area), cy / (6 * area)
}
