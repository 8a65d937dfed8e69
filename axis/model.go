package axis

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/internal/options"
)

// Well-known axis labels.
const (
	DefaultBiasLabel = "DC_Offset"
	ForcLabel        = "FORC"
	ForcCycleLabel   = "FORC_Cycle"
	ForcRepeatLabel  = "FORC_repeat"
	// SingleStepLabel names the placeholder axis of a reduced model that has no axis left.
	SingleStepLabel = "Single_Step"
)

// Axis is one named row of the spectroscopic index table.
type Axis struct {
	Name string
	// Row is the row of the axis in the index table.
	Row int
	// Size is the number of distinct index values.
	Size int
	// Rate is the number of index changes between consecutive columns.
	Rate int
}

// Model is the parsed axis structure of a spectroscopic index table. It is immutable.
type Model struct {
	axes    []Axis
	labels  []string
	indices [][]int
	values  [][]float64
	columns int
	// levels are the sorted distinct index values of every row
	levels  [][]int

	bias   int // row of the bias axis, -1 in a reduced model
	outer  int // row of the outer-cycle axis or -1
	repeat int // row of the repeat axis or -1

	outerCycles     int
	repeats         int
	columnsPerCycle int

	// cycleAxes are the rows of all axes except outer and repeat, in table order.
	cycleAxes []int
	// nesting lists cycleAxes entries slow to fast.
	nesting []int
}

type config struct {
	biasLabel string
}

// Option configures New.
type Option = options.Option[*config]

// WithBiasLabel sets the label of the swept bias axis. The default is DC_Offset.
func WithBiasLabel(label string) Option {
	return options.New(func(c *config) error {
		if label == "" {
			return fmt.Errorf("%w: empty bias label", errs.ErrInvalidConfig)
		}
		c.biasLabel = label

		return nil
	})
}

// New parses a spectroscopic index table.
//
// Parameters:
//   - labels: one name per table row
//   - indices: [rows x columns] integer indices
//   - values: [rows x columns] physical values (bias voltages, field, ...)
//
// Returns:
//   - *Model: parsed model
//   - error: errs.ErrNoBiasAxis when no row carries the bias label, errs.ErrAxisMismatch when the
//     table is ragged, the cardinalities do not multiply up to the column count, or the
//     outer-cycle axes are not the slowest-varying ones
func New(labels []string, indices [][]int, values [][]float64, opts ...Option) (*Model, error) {
	cfg := &config{biasLabel: DefaultBiasLabel}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	bias := slices.Index(labels, cfg.biasLabel)
	if bias < 0 {
		return nil, fmt.Errorf("%w: %q not in %v", errs.ErrNoBiasAxis, cfg.biasLabel, labels)
	}

	return build(labels, indices, values, bias)
}

func build(labels []string, indices [][]int, values [][]float64, bias int) (*Model, error) {
	if len(labels) == 0 || len(indices) != len(labels) || len(values) != len(labels) {
		return nil, fmt.Errorf("%w: %d labels, %d index rows, %d value rows",
			errs.ErrAxisMismatch, len(labels), len(indices), len(values))
	}
	columns := len(indices[0])
	for r := range labels {
		if len(indices[r]) != columns || len(values[r]) != columns {
			return nil, fmt.Errorf("%w: row %s has %d indices and %d values, want %d",
				errs.ErrAxisMismatch, labels[r], len(indices[r]), len(values[r]), columns)
		}
	}
	if columns == 0 {
		return nil, fmt.Errorf("%w: empty index table", errs.ErrAxisMismatch)
	}

	m := &Model{
		labels:      slices.Clone(labels),
		indices:     cloneRows(indices),
		values:      cloneRows(values),
		columns:     columns,
		bias:        bias,
		outer:       -1,
		repeat:      -1,
		outerCycles: 1,
		repeats:     1,
	}

	product := 1
	for r, name := range labels {
		levels := uniqueSorted(indices[r])
		m.levels = append(m.levels, levels)
		a := Axis{Name: name, Row: r, Size: len(levels), Rate: changes(indices[r])}
		m.axes = append(m.axes, a)
		product *= a.Size
	}
	if product != columns {
		return nil, fmt.Errorf("%w: cardinality product %d != %d columns (%s)",
			errs.ErrAxisMismatch, product, columns, m.describe())
	}

	if r := slices.Index(labels, ForcLabel); r >= 0 {
		m.outer = r
	} else if r := slices.Index(labels, ForcCycleLabel); r >= 0 {
		m.outer = r
	}
	if m.outer >= 0 {
		m.outerCycles = m.axes[m.outer].Size
		if r := slices.Index(labels, ForcRepeatLabel); r >= 0 {
			m.repeat = r
			m.repeats = m.axes[r].Size
		}
	}
	if bias >= 0 && (m.outer == bias || m.repeat == bias) {
		return nil, fmt.Errorf("%w: bias axis %s cannot be an outer-cycle axis", errs.ErrAxisMismatch, labels[bias])
	}

	m.columnsPerCycle = columns / (m.outerCycles * m.repeats)
	for r := range labels {
		if r != m.outer && r != m.repeat {
			m.cycleAxes = append(m.cycleAxes, r)
		}
	}

	m.nesting = slices.Clone(m.cycleAxes)
	// stable sort keeps table order between axes that change equally often
	slices.SortStableFunc(m.nesting, func(a, b int) int {
		return m.axes[a].Rate - m.axes[b].Rate
	})

	if err := m.validateNesting(); err != nil {
		return nil, err
	}

	return m, nil
}

// validateNesting checks that the outer-cycle axes are constant inside every cycle slice and
// that the cycle axes enumerate a regular nested grid, slow to fast.
func (m *Model) validateNesting() error {
	for c := 0; c < m.Cycles(); c++ {
		start, end := m.CycleSlice(c)
		for _, r := range []int{m.outer, m.repeat} {
			if r < 0 {
				continue
			}
			for j := start; j < end; j++ {
				if m.indices[r][j] != m.indices[r][start] {
					return fmt.Errorf("%w: outer axis %s changes inside cycle %d (columns [%d:%d))",
						errs.ErrAxisMismatch, m.labels[r], c, start, end)
				}
			}
		}
	}

	strides := m.strides()
	for j := 0; j < m.columns; j++ {
		local := j % m.columnsPerCycle
		for k, r := range m.nesting {
			want := (local / strides[k]) % m.axes[r].Size
			if m.rank(r, m.indices[r][j]) != want {
				return fmt.Errorf("%w: axis %s at column %d breaks the %s nesting",
					errs.ErrAxisMismatch, m.labels[r], j, m.describe())
			}
		}
	}

	return nil
}

// strides returns the column stride of every nesting entry inside a cycle slice.
func (m *Model) strides() []int {
	strides := make([]int, len(m.nesting))
	step := 1
	for k := len(m.nesting) - 1; k >= 0; k-- {
		strides[k] = step
		step *= m.axes[m.nesting[k]].Size
	}

	return strides
}

// rank maps an index value of row r onto 0..Size-1 in ascending order of the distinct values.
func (m *Model) rank(r, v int) int {
	i, _ := slices.BinarySearch(m.levels[r], v)

	return i
}

func (m *Model) describe() string {
	parts := make([]string, len(m.axes))
	for i, a := range m.axes {
		parts[i] = fmt.Sprintf("%s=%d", a.Name, a.Size)
	}

	return strings.Join(parts, ",")
}

func uniqueSorted(row []int) []int {
	u := slices.Clone(row)
	slices.Sort(u)

	return slices.Compact(u)
}

func cloneRows[T any](rows [][]T) [][]T {
	out := make([][]T, len(rows))
	for i, row := range rows {
		out[i] = slices.Clone(row)
	}

	return out
}

func changes(row []int) int {
	n := 0
	for i := 1; i < len(row); i++ {
		if row[i] != row[i-1] {
			n++
		}
	}

	return n
}

// Labels returns the axis labels in table order.
func (m *Model) Labels() []string {
	return slices.Clone(m.labels)
}

// Axes returns all axes in table order.
func (m *Model) Axes() []Axis {
	return slices.Clone(m.axes)
}

// Columns returns the number of spectroscopic columns.
func (m *Model) Columns() int {
	return m.columns
}

// OuterCycles returns the cardinality of the outer-cycle axis, 1 when absent.
func (m *Model) OuterCycles() int {
	return m.outerCycles
}

// Repeats returns the cardinality of the repeat axis, 1 when absent.
func (m *Model) Repeats() int {
	return m.repeats
}

// Cycles returns the number of independent cycle slices, OuterCycles()*Repeats().
func (m *Model) Cycles() int {
	return m.outerCycles * m.repeats
}

// ColumnsPerCycle returns the number of columns of one cycle slice.
func (m *Model) ColumnsPerCycle() int {
	return m.columnsPerCycle
}

// CycleSlice returns the column range [start, end) of cycle c.
func (m *Model) CycleSlice(c int) (int, int) {
	return c * m.columnsPerCycle, (c + 1) * m.columnsPerCycle
}

// HasBias reports whether the model has a bias axis. Reduced models do not.
func (m *Model) HasBias() bool {
	return m.bias >= 0
}

// BiasAxis returns the bias axis. It panics on a reduced model.
func (m *Model) BiasAxis() Axis {
	return m.axes[m.bias]
}

// BiasSteps returns the number of bias steps of one loop, 1 for a reduced model.
func (m *Model) BiasSteps() int {
	if m.bias < 0 {
		return 1
	}

	return m.axes[m.bias].Size
}

// LoopsPerCycle returns the number of loops in one cycle slice of one pixel.
func (m *Model) LoopsPerCycle() int {
	return m.columnsPerCycle / m.BiasSteps()
}

// CycleAxes returns the axes of a cycle slice (all but the outer-cycle and repeat axes) in
// table order.
func (m *Model) CycleAxes() []Axis {
	out := make([]Axis, len(m.cycleAxes))
	for i, r := range m.cycleAxes {
		out[i] = m.axes[r]
	}

	return out
}

// Nesting returns the cycle axes ordered by rate of change, slowest first. Reading a cycle
// slice as an N-D array of these sizes in row-major order reproduces the acquisition order.
func (m *Model) Nesting() []Axis {
	out := make([]Axis, len(m.nesting))
	for i, r := range m.nesting {
		out[i] = m.axes[r]
	}

	return out
}

// BiasVector returns the ordered bias sweep of cycle c: the values of the bias axis over the
// columns of the slice in which every other cycle axis keeps its value at the first column.
func (m *Model) BiasVector(c int) ([]float64, error) {
	if m.bias < 0 {
		return nil, errs.ErrNoBiasAxis
	}
	if c < 0 || c >= m.Cycles() {
		return nil, fmt.Errorf("%w: cycle %d of %d", errs.ErrOutOfBounds, c, m.Cycles())
	}

	start, end := m.CycleSlice(c)
	vec := make([]float64, 0, m.BiasSteps())
	for j := start; j < end; j++ {
		fixed := true
		for _, r := range m.cycleAxes {
			if r != m.bias && m.indices[r][j] != m.indices[r][start] {
				fixed = false
				break
			}
		}
		if fixed {
			vec = append(vec, m.values[m.bias][j])
		}
	}

	return vec, nil
}

// Indices returns a copy of the index table.
func (m *Model) Indices() [][]int {
	return cloneRows(m.indices)
}

// Values returns a copy of the value table.
func (m *Model) Values() [][]float64 {
	return cloneRows(m.values)
}

// Reduce derives the axis model of per-loop results: the bias row is dropped and only the
// columns at the first bias step are kept, so every remaining column addresses one loop.
// When the bias is the only axis, the reduced model has a single Single_Step axis of size 1.
func (m *Model) Reduce() (*Model, error) {
	if m.bias < 0 {
		return nil, errs.ErrNoBiasAxis
	}

	first := m.indices[m.bias][0]
	var keep []int
	for j := 0; j < m.columns; j++ {
		if m.indices[m.bias][j] == first {
			keep = append(keep, j)
		}
	}

	var (
		labels  []string
		indices [][]int
		values  [][]float64
	)
	for r, name := range m.labels {
		if r == m.bias {
			continue
		}
		idx := make([]int, len(keep))
		val := make([]float64, len(keep))
		for i, j := range keep {
			idx[i] = m.indices[r][j]
			val[i] = m.values[r][j]
		}
		labels = append(labels, name)
		indices = append(indices, idx)
		values = append(values, val)
	}

	if len(labels) == 0 {
		labels = []string{SingleStepLabel}
		indices = [][]int{make([]int, len(keep))}
		values = [][]float64{make([]float64, len(keep))}
	}

	return build(labels, indices, values, -1)
}
