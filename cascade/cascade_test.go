package cascade

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/solver"
)

var base = model.Coefficients{0.2, 1.8, -3, 3, 0.01, 1.5, 1.5, 1.5, 1.5}

func triangle(n int, vmax float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		p := float64(i) / float64(n)
		switch {
		case p < 0.25:
			v[i] = vmax * p * 4
		case p < 0.75:
			v[i] = vmax * (2 - p*4)
		default:
			v[i] = vmax * (p*4 - 4)
		}
	}

	return v
}

// acquired evaluates coef on the shifted sweep and returns the curve in acquisition order.
func acquired(bias []float64, coef model.Coefficients) []float64 {
	shift := model.QuarterShift(len(bias))
	v := model.Roll(bias, shift)
	y := make([]float64, len(v))
	model.BELoop.Evaluate(coef[:], v, y)

	return model.Roll(y, -shift)
}

func family(bias []float64, n int) [][]float64 {
	loops := make([][]float64, n)
	for i := range loops {
		c := base
		c[model.A2] -= 0.05 * float64(i%4)
		c[model.A3] += 0.05 * float64(i%3)
		c[model.A1] *= 1 + 0.02*float64(i%5)
		loops[i] = acquired(bias, c)
	}

	return loops
}

type countingFitter struct {
	calls atomic.Int32
	err   error
	inner Fitter
}

func (f *countingFitter) Fit(ctx context.Context, v, y []float64, x0 model.Coefficients) (solver.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return solver.Result{Coef: x0}, f.err
	}

	return f.inner.Fit(ctx, v, y, x0)
}

func TestClusters(t *testing.T) {
	tests := map[int]int{1: 1, 2: 2, 3: 2, 4: 2, 9: 3, 10: 3, 13: 4, 100: 10}
	for n, want := range tests {
		require.Equal(t, want, Clusters(n), "n=%d", n)
	}
}

func TestGuessRecoversSharedLoop(t *testing.T) {
	bias := triangle(64, 10)
	loops := make([][]float64, 6)
	for i := range loops {
		loops[i] = acquired(bias, base)
	}

	records, err := Guess(context.Background(), bias, loops, WithSeed(1))
	require.NoError(t, err)
	require.Len(t, records, len(loops))

	for _, r := range records {
		require.InDelta(t, base[model.A2], r.Coef[model.A2], 0.05)
		require.InDelta(t, base[model.A3], r.Coef[model.A3], 0.05)
		require.InDelta(t, base[model.A1], r.Coef[model.A1], 0.05)
		require.InDelta(t, 1.0, r.R2, 1e-3)
	}
}

func TestGuessDeterministic(t *testing.T) {
	bias := triangle(48, 10)
	loops := family(bias, 16)

	first, err := Guess(context.Background(), bias, loops, WithSeed(7))
	require.NoError(t, err)
	second, err := Guess(context.Background(), bias, loops, WithSeed(7))
	require.NoError(t, err)
	require.Equal(t, first, second)

	parallel, err := Guess(context.Background(), bias, loops, WithSeed(7), WithWorkers(4))
	require.NoError(t, err)
	require.Equal(t, first, parallel)
}

func TestGuessFitsEveryNode(t *testing.T) {
	bias := triangle(32, 10)
	loops := family(bias, 9)

	s, err := solver.New(solver.WithMaxIterations(50))
	require.NoError(t, err)
	f := &countingFitter{inner: s}

	_, err = Guess(context.Background(), bias, loops, WithFitter(f))
	require.NoError(t, err)
	require.Equal(t, int32(2*Clusters(9)-1), f.calls.Load())
}

func TestGuessFallsBackToParent(t *testing.T) {
	bias := triangle(32, 10)
	loops := family(bias, 4)

	f := &countingFitter{err: errs.ErrNotConverged}
	records, err := Guess(context.Background(), bias, loops, WithFitter(f), WithWorkers(2))
	require.NoError(t, err)

	// every node inherits the root's heuristic guess
	first := records[0].Coef
	for _, r := range records {
		require.Equal(t, first, r.Coef)
	}
	require.True(t, first.IsFinite())
}

func TestGuessSingleLoop(t *testing.T) {
	bias := triangle(32, 10)
	records, err := Guess(context.Background(), bias, [][]float64{acquired(bias, base)})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestGuessErrors(t *testing.T) {
	bias := triangle(16, 10)

	_, err := Guess(context.Background(), bias, nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Guess(context.Background(), bias, [][]float64{make([]float64, 8)})
	require.ErrorIs(t, err, errs.ErrAxisMismatch)

	_, err = Guess(context.Background(), bias, family(bias, 2), WithWorkers(0))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Guess(context.Background(), bias, family(bias, 2), WithFitter(nil))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Guess(ctx, bias, family(bias, 4))
	require.ErrorIs(t, err, context.Canceled)
}
