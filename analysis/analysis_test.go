package analysis

import (
	"context"
	"math"
	"path"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/solver"
	"github.com/arloliu/loopfit/store"
	"github.com/arloliu/loopfit/synth"
)

func buildDataset(t *testing.T, opts ...synth.Option) *synth.Dataset {
	t.Helper()

	ds, err := synth.Build(opts...)
	require.NoError(t, err)

	return ds
}

func readRecords(t *testing.T, s Storage, p string) [][]model.Record {
	t.Helper()

	rows, cols, err := s.Shape(p)
	require.NoError(t, err)
	b, err := s.ReadTable(p, store.All(rows), store.All(cols))
	require.NoError(t, err)
	grid, err := fitRecords(b)
	require.NoError(t, err)

	out := make([][]model.Record, rows)
	for r := range out {
		out[r] = make([]model.Record, cols)
		for c := range out[r] {
			out[r][c] = grid.At(r, c)
		}
	}

	return out
}

func requireClose(t *testing.T, want, got model.Coefficients, msgAndArgs ...any) {
	t.Helper()

	require.InDelta(t, want[model.A0], got[model.A0], 0.05, msgAndArgs...)
	for _, i := range []int{model.A1, model.A2, model.A3} {
		require.InDelta(t, want[i], got[i], 0.05*math.Abs(want[i]), msgAndArgs...)
	}
}

func TestLoopModel_GuessAndFit(t *testing.T) {
	ds := buildDataset(t)
	reg := prometheus.NewRegistry()

	lm, err := New(ds.Store, ds.Path, WithWorkers(2), WithSeed(7), WithRegisterer(reg))
	require.NoError(t, err)
	require.Equal(t, 64, lm.Axes().BiasSteps())
	require.Equal(t, 1, lm.MetricAxes().Columns())
	require.Empty(t, lm.Group())

	guess, err := lm.DoGuess(context.Background())
	require.NoError(t, err)

	group := synth.DatasetPath + "-Loop_Fit_000"
	require.Equal(t, group, lm.Group())
	require.Equal(t, path.Join(group, format.Guess), guess)
	require.Equal(t, guess, lm.GuessPath())
	for _, name := range []string{format.ProjectedLoops, format.LoopMetrics, format.LoopMetricsIndices, format.LoopMetricsValues} {
		require.True(t, ds.Store.HasTable(path.Join(group, name)), name)
	}

	method, err := ds.Store.AttrString(group, format.AttrGuessMethod)
	require.NoError(t, err)
	require.Equal(t, guessMethod, method)
	source, err := ds.Store.AttrString(group, format.AttrSource)
	require.NoError(t, err)
	require.Equal(t, ds.Path, source)

	linked, err := ds.Store.Resolve(guess, format.SpectroscopicIndices)
	require.NoError(t, err)
	require.Equal(t, path.Join(group, format.LoopMetricsIndices), linked)
	linked, err = ds.Store.Resolve(guess, format.PositionIndices)
	require.NoError(t, err)
	require.Equal(t, store.Join(synth.MeasurementGroup, format.PositionIndices), linked)

	rows, cols, err := ds.Store.Shape(path.Join(group, format.ProjectedLoops))
	require.NoError(t, err)
	require.Equal(t, 4, rows)
	require.Equal(t, 64, cols)

	fit, err := lm.DoFit(context.Background())
	require.NoError(t, err)
	require.Equal(t, path.Join(group, format.Fit), fit)
	require.Equal(t, fit, lm.FitPath())

	fitMethod, err := ds.Store.AttrString(group, format.AttrFitMethod)
	require.NoError(t, err)
	require.Equal(t, solver.LevenbergMarquardt.String(), fitMethod)

	records := readRecords(t, ds.Store, fit)
	require.Len(t, records, 4)
	for p, row := range records {
		require.Len(t, row, 1)
		requireClose(t, ds.Truth[p][0], row[0].Coef, "pixel %d", p)
		require.GreaterOrEqual(t, row[0].R2, 0.0, "pixel %d", p)
		require.Less(t, row[0].R2, 1e-3, "pixel %d", p)
	}

	require.InDelta(t, 1, testutil.ToFloat64(lm.metrics.chunks.WithLabelValues(PhaseGuess)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(lm.metrics.chunks.WithLabelValues(PhaseFit)), 0)
	fitted := testutil.ToFloat64(lm.metrics.loops.WithLabelValues(OutcomeConverged)) +
		testutil.ToFloat64(lm.metrics.loops.WithLabelValues(OutcomeNotConverged))
	require.InDelta(t, 4, fitted, 0)
	require.InDelta(t, 0, testutil.ToFloat64(lm.metrics.loops.WithLabelValues(OutcomeFailed)), 0)
}

func TestLoopModel_ForcCycles(t *testing.T) {
	ds := buildDataset(t,
		synth.WithPixels(3),
		synth.WithCycles(2),
		synth.WithCoefficients(func(p, cy int) model.Coefficients {
			c := synth.Varied(p, cy)
			c[model.A3] += 0.5 * float64(cy)

			return c
		}),
	)

	lm, err := New(ds.Store, ds.Path, WithWorkers(2))
	require.NoError(t, err)
	require.Equal(t, 2, lm.Axes().OuterCycles())
	require.Equal(t, 2, lm.MetricAxes().Columns())
	require.GreaterOrEqual(t, lm.ChunkLayout().MaxPixels, 3)

	_, err = lm.DoGuess(context.Background())
	require.NoError(t, err)
	fit, err := lm.DoFit(context.Background())
	require.NoError(t, err)

	records := readRecords(t, ds.Store, fit)
	require.Len(t, records, 3)
	for p, row := range records {
		require.Len(t, row, 2)
		for cy, rec := range row {
			requireClose(t, ds.Truth[p][cy], rec.Coef, "pixel %d cycle %d", p, cy)
		}
	}
}

func TestLoopModel_FitRequiresGuess(t *testing.T) {
	ds := buildDataset(t)
	lm, err := New(ds.Store, ds.Path)
	require.NoError(t, err)

	groups, tables := ds.Store.Groups(), ds.Store.Tables()

	_, err = lm.DoFit(context.Background())
	require.ErrorIs(t, err, errs.ErrGuessRequired)
	require.Equal(t, groups, ds.Store.Groups())
	require.Equal(t, tables, ds.Store.Tables())
}

func TestLoopModel_GuessGroupsAreNumbered(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))
	lm, err := New(ds.Store, ds.Path)
	require.NoError(t, err)

	first, err := lm.DoGuess(context.Background())
	require.NoError(t, err)
	second, err := lm.DoGuess(context.Background())
	require.NoError(t, err)

	require.Equal(t, synth.DatasetPath+"-Loop_Fit_000", path.Dir(first))
	require.Equal(t, synth.DatasetPath+"-Loop_Fit_001", path.Dir(second))
	require.Equal(t, second, lm.GuessPath())
}

func TestLoopModel_SetGuess(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))
	first, err := New(ds.Store, ds.Path)
	require.NoError(t, err)
	guess, err := first.DoGuess(context.Background())
	require.NoError(t, err)

	lm, err := New(ds.Store, ds.Path)
	require.NoError(t, err)

	err = lm.SetGuess(path.Join(path.Dir(guess), format.ProjectedLoops))
	require.ErrorIs(t, err, errs.ErrLayoutMismatch)
	require.Empty(t, lm.GuessPath())

	require.NoError(t, lm.SetGuess(guess))
	require.Equal(t, guess, lm.GuessPath())
	require.Equal(t, path.Dir(guess), lm.Group())

	fit, err := lm.DoFit(context.Background())
	require.NoError(t, err)
	require.Equal(t, path.Join(path.Dir(guess), format.Fit), fit)

	// a second fit overwrites the same table
	again, err := lm.DoFit(context.Background())
	require.NoError(t, err)
	require.Equal(t, fit, again)
}

func TestLoopModel_LoopParameters(t *testing.T) {
	ds := buildDataset(t)
	lm, err := New(ds.Store, ds.Path, WithLoopParameters(true), WithSeed(1))
	require.NoError(t, err)

	guess, err := lm.DoGuess(context.Background())
	require.NoError(t, err)
	require.True(t, ds.Store.HasTable(guess+format.LoopParametersSuffix))

	fit, err := lm.DoFit(context.Background())
	require.NoError(t, err)
	params := fit + format.LoopParametersSuffix
	require.True(t, ds.Store.HasTable(params))

	threshold, err := ds.Store.AttrFloat(params, format.AttrNucThreshold)
	require.NoError(t, err)
	require.InDelta(t, model.DefaultNucThreshold, threshold, 1e-12)

	b, err := ds.Store.ReadTable(params, store.All(4), store.All(1))
	require.NoError(t, err)
	vPlus, err := b.Field("V+")
	require.NoError(t, err)
	vMinus, err := b.Field("V-")
	require.NoError(t, err)
	for p := range 4 {
		want := ds.Truth[p][0]
		require.InDelta(t, want[model.A3], vPlus[p][0], 0.05*math.Abs(want[model.A3]), "pixel %d", p)
		require.InDelta(t, want[model.A2], vMinus[p][0], 0.05*math.Abs(want[model.A2]), "pixel %d", p)
	}

	links, err := ds.Store.Links(params)
	require.NoError(t, err)
	require.Contains(t, links, format.PositionIndices)
	require.Contains(t, links, format.SpectroscopicIndices)
}

func TestExtractLoopParameters(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))
	lm, err := New(ds.Store, ds.Path)
	require.NoError(t, err)
	guess, err := lm.DoGuess(context.Background())
	require.NoError(t, err)

	out, err := ExtractLoopParameters(ds.Store, guess, 0.03)
	require.NoError(t, err)
	require.Equal(t, guess+format.LoopParametersSuffix, out)

	// repeated extraction overwrites the table and its threshold
	again, err := lm.ExtractLoopParameters(guess)
	require.NoError(t, err)
	require.Equal(t, out, again)
	out, err = ExtractLoopParameters(ds.Store, guess, 0.1)
	require.NoError(t, err)
	threshold, err := ds.Store.AttrFloat(out, format.AttrNucThreshold)
	require.NoError(t, err)
	require.InDelta(t, 0.1, threshold, 1e-12)

	_, err = ExtractLoopParameters(ds.Store, guess, 0)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = ExtractLoopParameters(ds.Store, guess, 1)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = ExtractLoopParameters(ds.Store, path.Join(path.Dir(guess), format.LoopMetrics), 0.03)
	require.ErrorIs(t, err, errs.ErrLayoutMismatch)
	_, err = ExtractLoopParameters(ds.Store, "/missing", 0.03)
	require.ErrorIs(t, err, errs.ErrTableNotFound)
}

func TestLoopModel_Canceled(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))
	lm, err := New(ds.Store, ds.Path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = lm.DoGuess(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, lm.GuessPath())
}

func TestNew_Errors(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))

	_, err := New(ds.Store, ds.Path, WithMaxMemMB(0))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = New(ds.Store, ds.Path, WithWorkers(0))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = New(ds.Store, ds.Path, WithOverhead(0.5))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = New(ds.Store, ds.Path, WithNucThreshold(1.5))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = New(ds.Store, ds.Path, WithBiasLabel(""))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
	_, err = New(ds.Store, ds.Path, WithSolver(solver.WithMaxIterations(0)))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = New(ds.Store, ds.Path, WithBiasLabel("Frequency"))
	require.ErrorIs(t, err, errs.ErrNoBiasAxis)

	_, err = New(ds.Store, "/missing")
	require.ErrorIs(t, err, errs.ErrTableNotFound)

	// a table without amplitude and phase
	require.NoError(t, ds.Store.CreateTable("/other/Metrics", format.LoopMetricsLayout, 2, 64))
	_, err = New(ds.Store, "/other/Metrics")
	require.ErrorIs(t, err, errs.ErrLayoutMismatch)

	// a response table without spectroscopic links
	require.NoError(t, ds.Store.CreateTable("/other/Raw", format.SHOLayout, 2, 64))
	_, err = New(ds.Store, "/other/Raw")
	require.ErrorIs(t, err, errs.ErrLinkNotFound)

	// spectroscopic tables that do not describe the dataset columns
	require.NoError(t, ds.Store.CreateTable("/other/Short", format.SHOLayout, 2, 32))
	target, err := ds.Store.Resolve(ds.Path, format.SpectroscopicIndices)
	require.NoError(t, err)
	require.NoError(t, ds.Store.Link("/other/Short", format.SpectroscopicIndices, target))
	target, err = ds.Store.Resolve(ds.Path, format.SpectroscopicValues)
	require.NoError(t, err)
	require.NoError(t, ds.Store.Link("/other/Short", format.SpectroscopicValues, target))
	_, err = New(ds.Store, "/other/Short")
	require.ErrorIs(t, err, errs.ErrAxisMismatch)
}

func TestNew_SharedRegistry(t *testing.T) {
	ds := buildDataset(t, synth.WithPixels(2))
	reg := prometheus.NewRegistry()

	a, err := New(ds.Store, ds.Path, WithRegisterer(reg))
	require.NoError(t, err)
	b, err := New(ds.Store, ds.Path, WithRegisterer(reg))
	require.NoError(t, err)
	require.Same(t, a.metrics.chunks, b.metrics.chunks)

	_, err = b.DoGuess(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1, testutil.ToFloat64(a.metrics.chunks.WithLabelValues(PhaseGuess)), 0)
}
