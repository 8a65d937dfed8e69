package projection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func circle(n int, r, cx, cy float64) ([]float64, []float64) {
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		x[i] = cx + r*math.Cos(a)
		y[i] = cy + r*math.Sin(a)
	}

	return x, y
}

func TestPolygonCircle(t *testing.T) {
	const r = 2.5
	x, y := circle(2000, r, 1, -3)

	require.InEpsilon(t, math.Pi*r*r, PolygonArea(x, y), 1e-4)
	cx, cy := PolygonCentroid(x, y)
	require.InDelta(t, 1, cx, 1e-9)
	require.InDelta(t, -3, cy, 1e-9)

	// clockwise traversal flips the sign
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
		y[i], y[j] = y[j], y[i]
	}
	require.InEpsilon(t, -math.Pi*r*r, PolygonArea(x, y), 1e-4)
}

func TestPolygonDegenerate(t *testing.T) {
	x := []float64{0, 1, 2}
	y := []float64{0, 1, 2}
	require.Zero(t, PolygonArea(x, y))
	cx, cy := PolygonCentroid(x, y)
	require.Equal(t, 1.0, cx)
	require.Equal(t, 1.0, cy)
}

// rotatedLoop builds a loop response r(bias) and embeds it in the complex plane rotated by
// theta with a perpendicular offset c.
func rotatedLoop(n int, theta, c float64) (bias, amp, phase, loop []float64) {
	bias, loop = make([]float64, n), make([]float64, n)
	amp, phase = make([]float64, n), make([]float64, n)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		bias[i] = 10 * math.Sin(a)
		loop[i] = math.Tanh(bias[i]/2 + math.Cos(a)*2)
		z := complex(loop[i], c) * complex(math.Cos(theta), math.Sin(theta))
		amp[i] = math.Hypot(real(z), imag(z))
		phase[i] = math.Atan2(imag(z), real(z))
	}

	return bias, amp, phase, loop
}

func TestProjectRecoversLoop(t *testing.T) {
	for _, theta := range []float64{0.3, -1.1, 2.5} {
		bias, amp, phase, loop := rotatedLoop(64, theta, 0.05)
		res, err := Project(bias, amp, phase)
		require.NoError(t, err)

		for i := range loop {
			require.InDelta(t, loop[i], res.Projected[i], 0.02, "theta=%v i=%d", theta, i)
		}
		require.InDelta(t, 0.05, res.Metrics.Offset, 0.02)
		require.InDelta(t, PolygonArea(bias, res.Projected), res.Metrics.Area, 1e-12)
		require.Len(t, res.Metrics.Record(), 5)
	}
}

func TestProjectOrientation(t *testing.T) {
	bias, amp, phase, _ := rotatedLoop(32, 0, 0)
	res, err := Project(bias, amp, phase)
	require.NoError(t, err)

	hi, lo := 0, 0
	for i := range bias {
		if bias[i] > bias[hi] {
			hi = i
		}
		if bias[i] < bias[lo] {
			lo = i
		}
	}
	require.Greater(t, res.Projected[hi], res.Projected[lo])
}

func TestProjectErrors(t *testing.T) {
	_, err := Project([]float64{1, 2, 3}, []float64{1, 2}, []float64{1, 2, 3})
	require.Error(t, err)
	_, err = Project([]float64{1, 2}, []float64{1, 2}, []float64{1, 2})
	require.Error(t, err)
}

func TestBatchMatchesProject(t *testing.T) {
	bias, amp0, phase0, _ := rotatedLoop(48, 0.7, 0.1)
	_, amp1, phase1, _ := rotatedLoop(48, -0.4, -0.2)
	amp := [][]float64{amp0, amp1, amp0}
	phase := [][]float64{phase0, phase1, phase0}

	results, err := Batch(context.Background(), bias, amp, phase, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := range amp {
		want, err := Project(bias, amp[i], phase[i])
		require.NoError(t, err)
		require.Equal(t, want, results[i])
	}

	_, err = Batch(context.Background(), bias, [][]float64{amp0, {1}}, [][]float64{phase0, {1}}, 0)
	require.Error(t, err)
}
