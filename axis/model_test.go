package axis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/errs"
)

// grid enumerates a regular nested index table. names and sizes are listed slow to fast; order
// gives the table row of every name.
func grid(names []string, sizes []int, order []string) ([]string, [][]int, [][]float64) {
	total := 1
	for _, s := range sizes {
		total *= s
	}

	byName := make(map[string][]int, len(names))
	for k, name := range names {
		stride := 1
		for _, s := range sizes[k+1:] {
			stride *= s
		}
		row := make([]int, total)
		for j := range row {
			row[j] = (j / stride) % sizes[k]
		}
		byName[name] = row
	}

	indices := make([][]int, len(order))
	values := make([][]float64, len(order))
	for i, name := range order {
		indices[i] = byName[name]
		values[i] = make([]float64, total)
		for j, v := range byName[name] {
			values[i][j] = float64(v)*0.5 - 1
		}
	}

	return order, indices, values
}

func TestNewSingleAxis(t *testing.T) {
	labels := []string{DefaultBiasLabel}
	m, err := New(labels, [][]int{{0, 1, 2, 3}}, [][]float64{{0, 1, 0, -1}})
	require.NoError(t, err)

	require.Equal(t, 4, m.Columns())
	require.Equal(t, 1, m.Cycles())
	require.Equal(t, 4, m.BiasSteps())
	require.Equal(t, 1, m.LoopsPerCycle())

	vec, err := m.BiasVector(0)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 0, -1}, vec)
}

func TestNewNestedAxes(t *testing.T) {
	labels, indices, values := grid(
		[]string{ForcLabel, DefaultBiasLabel, "Field"},
		[]int{3, 8, 2},
		[]string{"Field", DefaultBiasLabel, ForcLabel},
	)
	m, err := New(labels, indices, values)
	require.NoError(t, err)

	require.Equal(t, 48, m.Columns())
	require.Equal(t, 3, m.OuterCycles())
	require.Equal(t, 1, m.Repeats())
	require.Equal(t, 16, m.ColumnsPerCycle())
	require.Equal(t, 8, m.BiasSteps())
	require.Equal(t, 2, m.LoopsPerCycle())

	nesting := m.Nesting()
	require.Len(t, nesting, 2)
	require.Equal(t, DefaultBiasLabel, nesting[0].Name)
	require.Equal(t, "Field", nesting[1].Name)

	cycleAxes := m.CycleAxes()
	require.Equal(t, "Field", cycleAxes[0].Name)
	require.Equal(t, DefaultBiasLabel, cycleAxes[1].Name)

	start, end := m.CycleSlice(2)
	require.Equal(t, 32, start)
	require.Equal(t, 48, end)

	vec, err := m.BiasVector(1)
	require.NoError(t, err)
	require.Len(t, vec, 8)
	for k, v := range vec {
		require.Equal(t, float64(k)*0.5-1, v)
	}

	_, err = m.BiasVector(3)
	require.ErrorIs(t, err, errs.ErrOutOfBounds)
}

func TestNewRepeatAxis(t *testing.T) {
	labels, indices, values := grid(
		[]string{ForcCycleLabel, ForcRepeatLabel, DefaultBiasLabel},
		[]int{2, 3, 4},
		[]string{DefaultBiasLabel, ForcRepeatLabel, ForcCycleLabel},
	)
	m, err := New(labels, indices, values)
	require.NoError(t, err)
	require.Equal(t, 2, m.OuterCycles())
	require.Equal(t, 3, m.Repeats())
	require.Equal(t, 6, m.Cycles())
	require.Equal(t, 4, m.ColumnsPerCycle())
}

func TestNewErrors(t *testing.T) {
	t.Run("no bias", func(t *testing.T) {
		_, err := New([]string{"Field"}, [][]int{{0, 1}}, [][]float64{{0, 1}})
		require.ErrorIs(t, err, errs.ErrNoBiasAxis)
	})

	t.Run("custom bias label", func(t *testing.T) {
		m, err := New([]string{"Field"}, [][]int{{0, 1}}, [][]float64{{0, 1}}, WithBiasLabel("Field"))
		require.NoError(t, err)
		require.Equal(t, "Field", m.BiasAxis().Name)
	})

	t.Run("ragged", func(t *testing.T) {
		_, err := New([]string{DefaultBiasLabel, "Field"}, [][]int{{0, 1}, {0}}, [][]float64{{0, 1}, {0}})
		require.ErrorIs(t, err, errs.ErrAxisMismatch)
	})

	t.Run("cardinality", func(t *testing.T) {
		// 2 x 2 distinct values but only 3 columns
		_, err := New([]string{DefaultBiasLabel, "Field"},
			[][]int{{0, 1, 0}, {0, 0, 1}}, [][]float64{{0, 1, 0}, {0, 0, 1}})
		require.ErrorIs(t, err, errs.ErrAxisMismatch)
	})

	t.Run("outer axis not slowest", func(t *testing.T) {
		labels, indices, values := grid(
			[]string{DefaultBiasLabel, ForcLabel},
			[]int{4, 2},
			[]string{DefaultBiasLabel, ForcLabel},
		)
		_, err := New(labels, indices, values)
		require.ErrorIs(t, err, errs.ErrAxisMismatch)
	})

	t.Run("irregular nesting", func(t *testing.T) {
		_, err := New([]string{DefaultBiasLabel, "Field"},
			[][]int{{0, 1, 1, 0}, {0, 0, 1, 1}}, [][]float64{{0, 1, 1, 0}, {0, 0, 1, 1}})
		require.ErrorIs(t, err, errs.ErrAxisMismatch)
	})
}

func TestReduce(t *testing.T) {
	labels, indices, values := grid(
		[]string{ForcLabel, "Field", DefaultBiasLabel},
		[]int{2, 3, 5},
		[]string{DefaultBiasLabel, "Field", ForcLabel},
	)
	m, err := New(labels, indices, values)
	require.NoError(t, err)

	r, err := m.Reduce()
	require.NoError(t, err)
	require.False(t, r.HasBias())
	require.Equal(t, []string{"Field", ForcLabel}, r.Labels())
	require.Equal(t, 6, r.Columns())
	require.Equal(t, 2, r.Cycles())
	require.Equal(t, 3, r.ColumnsPerCycle())
	require.Equal(t, m.LoopsPerCycle(), r.LoopsPerCycle())
	require.Equal(t, []int{0, 1, 2, 0, 1, 2}, r.Indices()[0])
	require.Equal(t, []int{0, 0, 0, 1, 1, 1}, r.Indices()[1])

	_, err = r.BiasVector(0)
	require.ErrorIs(t, err, errs.ErrNoBiasAxis)
}

func TestReduceBiasOnly(t *testing.T) {
	m, err := New([]string{DefaultBiasLabel}, [][]int{{0, 1, 2}}, [][]float64{{1, 2, 3}})
	require.NoError(t, err)

	r, err := m.Reduce()
	require.NoError(t, err)
	require.Equal(t, []string{SingleStepLabel}, r.Labels())
	require.Equal(t, 1, r.Columns())
	require.Equal(t, 1, r.LoopsPerCycle())
}

func TestModelIsImmutable(t *testing.T) {
	indices := [][]int{{0, 1}}
	m, err := New([]string{DefaultBiasLabel}, indices, [][]float64{{0, 1}})
	require.NoError(t, err)

	indices[0][0] = 5
	got := m.Indices()
	require.Equal(t, 0, got[0][0])
	got[0][1] = 7
	require.Equal(t, 1, m.Indices()[0][1])
}
