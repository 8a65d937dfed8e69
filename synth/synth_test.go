package synth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/projection"
	"github.com/arloliu/loopfit/store"
)

func TestTriangle(t *testing.T) {
	v := Triangle(8, 4)
	require.Equal(t, []float64{0, 2, 4, 2, 0, -2, -4, -2}, v)
}

func TestBuildDefaults(t *testing.T) {
	ds, err := Build()
	require.NoError(t, err)
	require.Equal(t, DatasetPath, ds.Path)
	require.Len(t, ds.Bias, 64)
	require.Len(t, ds.Truth, 4)

	rows, cols, err := ds.Store.Shape(ds.Path)
	require.NoError(t, err)
	require.Equal(t, 4, rows)
	require.Equal(t, 64, cols)

	layout, err := ds.Store.Layout(ds.Path)
	require.NoError(t, err)
	require.True(t, layout.Equal(format.SHOLayout))

	for _, alias := range []string{format.SpectroscopicIndices, format.SpectroscopicValues, format.PositionIndices, format.PositionValues} {
		target, err := ds.Store.Resolve(ds.Path, alias)
		require.NoError(t, err, alias)
		require.True(t, ds.Store.HasTable(target), alias)
	}

	labels, err := ds.Store.Labels(store.Join(SourceGroup, format.SpectroscopicIndices))
	require.NoError(t, err)
	require.Equal(t, []string{axis.DefaultBiasLabel}, labels)

	pr, pc, err := ds.Store.Shape(store.Join(MeasurementGroup, format.PositionIndices))
	require.NoError(t, err)
	require.Equal(t, 4, pr)
	require.Equal(t, 2, pc)
}

func TestBuildProjectsBack(t *testing.T) {
	ds, err := Build(WithPixels(3), WithSteps(32))
	require.NoError(t, err)

	b, err := ds.Store.ReadTable(ds.Path, store.All(3), store.All(32))
	require.NoError(t, err)
	amp, err := b.Field(format.FieldAmplitude)
	require.NoError(t, err)
	phase, err := b.Field(format.FieldPhase)
	require.NoError(t, err)

	for p := range 3 {
		res, err := projection.Project(ds.Bias, amp[p], phase[p])
		require.NoError(t, err)

		want := Loop(ds.Bias, ds.Truth[p][0])
		require.InDeltaSlice(t, want, res.Projected, 1e-4, "pixel %d", p)
	}
}

func TestBuildCycles(t *testing.T) {
	ds, err := Build(WithPixels(2), WithSteps(16), WithCycles(3))
	require.NoError(t, err)

	_, cols, err := ds.Store.Shape(ds.Path)
	require.NoError(t, err)
	require.Equal(t, 48, cols)

	specTable := store.Join(SourceGroup, format.SpectroscopicIndices)
	labels, err := ds.Store.Labels(specTable)
	require.NoError(t, err)
	require.Equal(t, []string{axis.DefaultBiasLabel, axis.ForcLabel}, labels)

	idx, err := ds.Store.ReadTable(specTable, store.All(2), store.All(48))
	require.NoError(t, err)
	require.InDelta(t, 15, idx.At(0, 15, 0), 0)
	require.InDelta(t, 0, idx.At(0, 16, 0), 0)
	require.InDelta(t, 1, idx.At(1, 16, 0), 0)
	require.InDelta(t, 2, idx.At(1, 47, 0), 0)

	require.Len(t, ds.Truth[1], 3)
}

func TestBuildCustomCoefficients(t *testing.T) {
	ds, err := Build(WithPixels(2), WithCoefficients(func(p, _ int) model.Coefficients {
		c := BaseCoefficients
		c[model.A0] = float64(p)

		return c
	}))
	require.NoError(t, err)
	require.InDelta(t, 1, ds.Truth[1][0][model.A0], 0)
}

func TestBuildErrors(t *testing.T) {
	for name, opt := range map[string]Option{
		"pixels":   WithPixels(0),
		"steps":    WithSteps(10),
		"small":    WithSteps(4),
		"cycles":   WithCycles(0),
		"max bias": WithMaxBias(0),
		"noise":    WithNoise(-1, 0),
	} {
		_, err := Build(opt)
		require.ErrorIs(t, err, errs.ErrInvalidConfig, name)
	}
}
