package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/cascade"
	"github.com/arloliu/loopfit/chunk"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/internal/options"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/projection"
	"github.com/arloliu/loopfit/reshape"
	"github.com/arloliu/loopfit/solver"
	"github.com/arloliu/loopfit/store"
)

const (
	loopFitGroupSuffix = "-Loop_Fit_"
	projectionMethod   = "principal axis rotation"
	guessMethod        = "k-means cluster cascade"
)

// LoopModel runs the loop guess and fit pipeline over one response dataset.
//
// A LoopModel is not safe for concurrent use.
type LoopModel struct {
	store   Storage
	dataset string
	cfg     config
	metrics *metrics
	solver  *solver.Solver

	axes       *axis.Model
	metricAxes *axis.Model
	pixels     int
	layout     chunk.Layout
	aux        auxTables

	group     string
	guessPath string
	fitPath   string
}

// auxTables are the position and spectroscopic tables linked from the dataset.
type auxTables struct {
	posIndices, posValues   string
	specIndices, specValues string
}

// New prepares a LoopModel for the response dataset at path dataset. The dataset must have a
// format.SHOLayout-compatible layout (amplitude and phase fields) and Spectroscopic_Indices and
// Spectroscopic_Values links.
func New(s Storage, dataset string, opts ...Option) (*LoopModel, error) {
	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	slv, err := solver.New(cfg.solverOpts...)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	layout, err := s.Layout(dataset)
	if err != nil {
		return nil, err
	}
	for _, f := range []string{format.FieldAmplitude, format.FieldPhase} {
		if layout.Index(f) < 0 {
			return nil, fmt.Errorf("%w: dataset %s layout %q has no %q field", errs.ErrLayoutMismatch, dataset, layout.Name, f)
		}
	}
	pixels, cols, err := s.Shape(dataset)
	if err != nil {
		return nil, err
	}

	aux, err := resolveAux(s, dataset)
	if err != nil {
		return nil, err
	}
	labels, indices, values, err := readAxisTables(s, aux.specIndices, aux.specValues)
	if err != nil {
		return nil, err
	}
	axes, err := axis.New(labels, indices, values, axis.WithBiasLabel(cfg.biasLabel))
	if err != nil {
		return nil, fmt.Errorf("spectroscopic axes of %s: %w", dataset, err)
	}
	if axes.Columns() != cols {
		return nil, fmt.Errorf("%w: dataset %s has %d columns, spectroscopic table %d", errs.ErrAxisMismatch, dataset, cols, axes.Columns())
	}
	metricAxes, err := axes.Reduce()
	if err != nil {
		return nil, err
	}

	plan, err := chunk.Plan(chunk.Budget{
		MemoryBytes:         cfg.maxMemMB << 20,
		RecordBytesPerCycle: int64(axes.ColumnsPerCycle() * layout.Width() * 4),
		Pixels:              pixels,
		OuterCycles:         axes.OuterCycles(),
		Repeats:             axes.Repeats(),
		ResponseColumns:     cols,
		MetricColumns:       metricAxes.Columns(),
		Overhead:            cfg.overhead,
	})
	if err != nil {
		return nil, fmt.Errorf("planning chunks of %s: %w", dataset, err)
	}

	cfg.log.Info("loop model ready", "dataset", dataset, "pixels", pixels, "columns", cols,
		"axes", labels, "cycles", axes.Cycles(), "biasSteps", axes.BiasSteps(),
		"maxPixelsPerChunk", plan.MaxPixels, "workers", cfg.workers)

	return &LoopModel{
		store:      s,
		dataset:    dataset,
		cfg:        cfg,
		metrics:    m,
		solver:     slv,
		axes:       axes,
		metricAxes: metricAxes,
		pixels:     pixels,
		layout:     plan,
		aux:        aux,
	}, nil
}

func resolveAux(s Storage, dataset string) (auxTables, error) {
	var aux auxTables
	var err error
	if aux.specIndices, err = s.Resolve(dataset, format.SpectroscopicIndices); err != nil {
		return aux, err
	}
	if aux.specValues, err = s.Resolve(dataset, format.SpectroscopicValues); err != nil {
		return aux, err
	}
	// position tables are optional
	if aux.posIndices, err = s.Resolve(dataset, format.PositionIndices); err != nil && !errors.Is(err, errs.ErrLinkNotFound) {
		return aux, err
	}
	if aux.posValues, err = s.Resolve(dataset, format.PositionValues); err != nil && !errors.Is(err, errs.ErrLinkNotFound) {
		return aux, err
	}

	return aux, nil
}

// readAxisTables reads an index table and its value table, [axes x columns] each.
func readAxisTables(s Storage, indicesPath, valuesPath string) ([]string, [][]int, [][]float64, error) {
	labels, err := s.Labels(indicesPath)
	if err != nil {
		return nil, nil, nil, err
	}

	rows, cols, err := s.Shape(indicesPath)
	if err != nil {
		return nil, nil, nil, err
	}
	vrows, vcols, err := s.Shape(valuesPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if rows != vrows || cols != vcols || rows != len(labels) {
		return nil, nil, nil, fmt.Errorf("%w: indices %dx%d, values %dx%d, %d labels",
			errs.ErrAxisMismatch, rows, cols, vrows, vcols, len(labels))
	}

	ib, err := s.ReadTable(indicesPath, store.All(rows), store.All(cols))
	if err != nil {
		return nil, nil, nil, err
	}
	vb, err := s.ReadTable(valuesPath, store.All(rows), store.All(cols))
	if err != nil {
		return nil, nil, nil, err
	}

	indices := make([][]int, rows)
	values := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		indices[r] = make([]int, cols)
		values[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			indices[r][c] = int(math.Round(float64(ib.At(r, c, 0))))
			values[r][c] = float64(vb.At(r, c, 0))
		}
	}

	return labels, indices, values, nil
}

// Axes returns the spectroscopic axis model of the dataset.
func (lm *LoopModel) Axes() *axis.Model {
	return lm.axes
}

// MetricAxes returns the per-loop axis model of the result tables.
func (lm *LoopModel) MetricAxes() *axis.Model {
	return lm.metricAxes
}

// ChunkLayout returns the chunk layout derived from the memory budget.
func (lm *LoopModel) ChunkLayout() chunk.Layout {
	return lm.layout
}

// Group returns the current result group, empty before the first guess.
func (lm *LoopModel) Group() string {
	return lm.group
}

// GuessPath returns the guess table used by DoFit, empty before a guess.
func (lm *LoopModel) GuessPath() string {
	return lm.guessPath
}

// FitPath returns the fit table of the last DoFit, empty before a fit.
func (lm *LoopModel) FitPath() string {
	return lm.fitPath
}

// DoGuess projects every loop of the dataset and computes the cluster-cascade guesses. Results
// go to a new group next to the dataset named "<dataset>-Loop_Fit_NNN". It returns the path of
// the Guess table.
func (lm *LoopModel) DoGuess(ctx context.Context) (string, error) {
	group, err := lm.createGroup()
	if err != nil {
		return "", err
	}

	projected := path.Join(group, format.ProjectedLoops)
	loopMetrics := path.Join(group, format.LoopMetrics)
	guess := path.Join(group, format.Guess)

	if err := lm.createTable(projected, format.ProjectedLayout, lm.axes.Columns(), lm.aux); err != nil {
		return "", err
	}
	metricAux, err := lm.writeMetricAxes(group)
	if err != nil {
		return "", err
	}
	if err := lm.createTable(loopMetrics, format.LoopMetricsLayout, lm.metricAxes.Columns(), metricAux); err != nil {
		return "", err
	}
	if err := lm.createTable(guess, format.LoopFitLayout, lm.metricAxes.Columns(), metricAux); err != nil {
		return "", err
	}

	it := chunk.NewIterator(lm.layout, lm.pixels)
	for c, ok := it.Next(); ok; c, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := lm.guessChunk(ctx, c, projected, loopMetrics, guess); err != nil {
			return "", fmt.Errorf("guess %s of %s: %w", c, lm.dataset, err)
		}
	}

	if err := lm.store.SetAttr(group, format.AttrGuessMethod, guessMethod); err != nil {
		return "", err
	}
	lm.group = group
	lm.guessPath = guess
	lm.fitPath = ""
	lm.cfg.log.Info("guess complete", "group", group, "table", guess)

	if lm.cfg.loopParameters {
		if _, err := ExtractLoopParameters(lm.store, guess, lm.cfg.nucThreshold); err != nil {
			return "", err
		}
	}

	return guess, nil
}

func (lm *LoopModel) guessChunk(ctx context.Context, c chunk.Chunk, projectedPath, metricsPath, guessPath string) error {
	start := time.Now()

	bias, err := lm.axes.BiasVector(c.Cycle)
	if err != nil {
		return err
	}
	rows := store.Span(c.Start, c.End)
	cols := store.Span(lm.axes.CycleSlice(c.Cycle))
	metricCols := store.Span(lm.metricAxes.CycleSlice(c.Cycle))

	raw, err := lm.store.ReadTable(lm.dataset, rows, cols)
	if err != nil {
		return err
	}
	amp, err := fieldTensor(raw, format.FieldAmplitude)
	if err != nil {
		return err
	}
	phase, err := fieldTensor(raw, format.FieldPhase)
	if err != nil {
		return err
	}

	ampLoops, plan, err := reshape.FlattenToLoops(amp, lm.axes)
	if err != nil {
		return err
	}
	phaseLoops, _, err := reshape.FlattenToLoops(phase, lm.axes)
	if err != nil {
		return err
	}
	if err := lm.checkPlan(plan, len(bias), metricCols); err != nil {
		return err
	}
	lm.cfg.log.V(1).Info("guessing chunk", "chunk", c.String(), "plan", plan.String(), "loops", plan.Loops())

	loops := plan.Loops()
	ampCols := make([][]float64, loops)
	phaseCols := make([][]float64, loops)
	for l := range loops {
		ampCols[l] = ampLoops.Column(l)
		phaseCols[l] = phaseLoops.Column(l)
	}
	projections, err := projection.Batch(ctx, bias, ampCols, phaseCols, lm.cfg.workers)
	if err != nil {
		return err
	}

	projectedLoops := reshape.Zeros[float64](plan.Steps(), loops)
	curves := make([][]float64, loops)
	loopMetrics := make([]projection.Metrics, loops)
	for l, p := range projections {
		projectedLoops.SetColumn(l, p.Projected)
		curves[l] = p.Projected
		loopMetrics[l] = p.Metrics
	}

	guesses, err := cascade.Guess(ctx, bias, curves,
		cascade.WithSeed(lm.cfg.seed),
		cascade.WithWorkers(lm.cfg.workers),
		cascade.WithFitter(lm.solver),
		cascade.WithLogger(lm.cfg.log),
	)
	if err != nil {
		return err
	}

	projectedRaw, err := reshape.UnflattenFromLoops(projectedLoops, plan)
	if err != nil {
		return err
	}
	metricGrid, err := reshape.UnflattenResults(loopMetrics, plan)
	if err != nil {
		return err
	}
	guessGrid, err := reshape.UnflattenResults(guesses, plan)
	if err != nil {
		return err
	}

	// commit the chunk only once every loop has been processed
	if err := lm.store.WriteTable(projectedPath, rows, cols, scalarBlock(format.ProjectedLayout, projectedRaw)); err != nil {
		return err
	}
	if err := lm.store.WriteTable(metricsPath, rows, metricCols, recordBlock(format.LoopMetricsLayout, metricGrid, projection.Metrics.Record)); err != nil {
		return err
	}
	if err := lm.store.WriteTable(guessPath, rows, metricCols, recordBlock(format.LoopFitLayout, guessGrid, recordValues)); err != nil {
		return err
	}

	lm.metrics.chunks.WithLabelValues(PhaseGuess).Inc()
	lm.metrics.duration.WithLabelValues(PhaseGuess).Observe(time.Since(start).Seconds())

	return nil
}

// DoFit refines every guess with the configured solver and writes the Fit table next to the
// guess. It returns errs.ErrGuessRequired, without touching the store, when no guess exists.
func (lm *LoopModel) DoFit(ctx context.Context) (string, error) {
	if lm.guessPath == "" {
		return "", errs.ErrGuessRequired
	}

	projected := path.Join(lm.group, format.ProjectedLoops)
	fit := path.Join(lm.group, format.Fit)

	if _, _, err := lm.store.Shape(fit); errors.Is(err, errs.ErrTableNotFound) {
		metricAux, err := lm.metricAux()
		if err != nil {
			return "", err
		}
		if err := lm.createTable(fit, format.LoopFitLayout, lm.metricAxes.Columns(), metricAux); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	it := chunk.NewIterator(lm.layout, lm.pixels)
	for c, ok := it.Next(); ok; c, ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := lm.fitChunk(ctx, c, projected, fit); err != nil {
			return "", fmt.Errorf("fit %s of %s: %w", c, lm.dataset, err)
		}
	}

	if err := lm.store.SetAttr(lm.group, format.AttrFitMethod, lm.solver.Strategy().String()); err != nil {
		return "", err
	}
	lm.fitPath = fit
	lm.cfg.log.Info("fit complete", "group", lm.group, "table", fit)

	if lm.cfg.loopParameters {
		if _, err := ExtractLoopParameters(lm.store, fit, lm.cfg.nucThreshold); err != nil {
			return "", err
		}
	}

	return fit, nil
}

func (lm *LoopModel) fitChunk(ctx context.Context, c chunk.Chunk, projectedPath, fitPath string) error {
	start := time.Now()

	bias, err := lm.axes.BiasVector(c.Cycle)
	if err != nil {
		return err
	}
	shift := model.QuarterShift(len(bias))
	v := model.Roll(bias, shift)

	rows := store.Span(c.Start, c.End)
	cols := store.Span(lm.axes.CycleSlice(c.Cycle))
	metricCols := store.Span(lm.metricAxes.CycleSlice(c.Cycle))

	pb, err := lm.store.ReadTable(projectedPath, rows, cols)
	if err != nil {
		return err
	}
	projected, err := fieldTensor(pb, format.ProjectedLayout.Fields[0])
	if err != nil {
		return err
	}
	loops, plan, err := reshape.FlattenToLoops(projected, lm.axes)
	if err != nil {
		return err
	}
	if err := lm.checkPlan(plan, len(bias), metricCols); err != nil {
		return err
	}

	gb, err := lm.store.ReadTable(lm.guessPath, rows, metricCols)
	if err != nil {
		return err
	}
	guessGrid, err := fitRecords(gb)
	if err != nil {
		return err
	}
	guesses, err := reshape.FlattenResults(guessGrid, plan)
	if err != nil {
		return err
	}
	lm.cfg.log.V(1).Info("fitting chunk", "chunk", c.String(), "plan", plan.String(), "loops", plan.Loops())

	fits := make([]model.Record, plan.Loops())
	outcomes := make([]string, plan.Loops())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lm.cfg.workers)
	for l := range fits {
		g.Go(func() error {
			y := model.Roll(loops.Column(l), shift)
			res, err := lm.solver.Fit(gctx, v, y, guesses[l].Coef)
			switch {
			case err == nil:
				fits[l] = model.Record{Coef: res.Coef, R2: res.Cost}
				outcomes[l] = OutcomeConverged
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, errs.ErrNotConverged):
				fits[l] = model.Record{Coef: res.Coef, R2: res.Cost}
				outcomes[l] = OutcomeNotConverged
			default:
				fits[l] = model.Record{Coef: guesses[l].Coef, R2: model.LowConfidence}
				outcomes[l] = OutcomeFailed
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fitGrid, err := reshape.UnflattenResults(fits, plan)
	if err != nil {
		return err
	}
	if err := lm.store.WriteTable(fitPath, rows, metricCols, recordBlock(format.LoopFitLayout, fitGrid, recordValues)); err != nil {
		return err
	}

	counts := map[string]int{}
	for _, o := range outcomes {
		counts[o]++
		lm.metrics.loops.WithLabelValues(o).Inc()
	}
	if counts[OutcomeFailed] > 0 || counts[OutcomeNotConverged] > 0 {
		lm.cfg.log.V(1).Info("chunk fits with low confidence", "chunk", c.String(),
			"notConverged", counts[OutcomeNotConverged], "failed", counts[OutcomeFailed])
	}
	lm.metrics.chunks.WithLabelValues(PhaseFit).Inc()
	lm.metrics.duration.WithLabelValues(PhaseFit).Observe(time.Since(start).Seconds())

	return nil
}

// SetGuess makes DoFit start from an existing guess table. The table must be a loop-fit table
// of this dataset's shape inside a group that also holds the projected loops.
func (lm *LoopModel) SetGuess(guessPath string) error {
	layout, err := lm.store.Layout(guessPath)
	if err != nil {
		return err
	}
	if !layout.Equal(format.LoopFitLayout) {
		return fmt.Errorf("%w: %s has layout %q, want %q", errs.ErrLayoutMismatch, guessPath, layout.Name, format.LoopFitLayout.Name)
	}
	if err := lm.checkShape(guessPath, lm.pixels, lm.metricAxes.Columns()); err != nil {
		return err
	}

	group := path.Dir(guessPath)
	if err := lm.checkShape(path.Join(group, format.ProjectedLoops), lm.pixels, lm.axes.Columns()); err != nil {
		return err
	}

	lm.group = group
	lm.guessPath = guessPath
	lm.fitPath = ""

	return nil
}

// ExtractLoopParameters writes the switching parameters of a guess or fit table with the
// configured nucleation threshold.
func (lm *LoopModel) ExtractLoopParameters(table string) (string, error) {
	return ExtractLoopParameters(lm.store, table, lm.cfg.nucThreshold)
}

func (lm *LoopModel) checkShape(p string, rows, cols int) error {
	r, c, err := lm.store.Shape(p)
	if err != nil {
		return err
	}
	if r != rows || c != cols {
		return fmt.Errorf("%w: %s is %dx%d, want %dx%d", errs.ErrAxisMismatch, p, r, c, rows, cols)
	}

	return nil
}

func (lm *LoopModel) checkPlan(plan reshape.Plan, biasSteps int, metricCols store.Range) error {
	if plan.Steps() != biasSteps {
		return fmt.Errorf("%w: %d bias steps in plan %s, bias vector has %d", errs.ErrAxisMismatch, plan.Steps(), plan, biasSteps)
	}
	if plan.LoopsPerPixel() != metricCols.Len() {
		return fmt.Errorf("%w: %d loops per pixel in plan %s, metric slice %s", errs.ErrAxisMismatch, plan.LoopsPerPixel(), plan, metricCols)
	}

	return nil
}

// createGroup creates the next free "<dataset>-Loop_Fit_NNN" group.
func (lm *LoopModel) createGroup() (string, error) {
	dir, base := path.Dir(lm.dataset), path.Base(lm.dataset)
	for i := 0; i < 1000; i++ {
		group := path.Join(dir, fmt.Sprintf("%s%s%03d", base, loopFitGroupSuffix, i))
		if lm.store.HasGroup(group) {
			continue
		}
		if err := lm.store.CreateGroup(group); err != nil {
			return "", err
		}
		if err := lm.store.SetAttr(group, format.AttrProjectionMethod, projectionMethod); err != nil {
			return "", err
		}
		if err := lm.store.SetAttr(group, format.AttrSource, lm.dataset); err != nil {
			return "", err
		}

		return group, nil
	}

	return "", fmt.Errorf("%w: no free loop fit group next to %s", errs.ErrTableExists, lm.dataset)
}

// createTable creates a [pixels x cols] result table and links its auxiliary tables.
func (lm *LoopModel) createTable(p string, layout format.Layout, cols int, aux auxTables) error {
	if err := lm.store.CreateTable(p, layout, lm.pixels, cols); err != nil {
		return err
	}

	links := []struct{ alias, target string }{
		{format.PositionIndices, aux.posIndices},
		{format.PositionValues, aux.posValues},
		{format.SpectroscopicIndices, aux.specIndices},
		{format.SpectroscopicValues, aux.specValues},
	}
	for _, l := range links {
		if l.target == "" {
			continue
		}
		if err := lm.store.Link(p, l.alias, l.target); err != nil {
			return err
		}
	}

	return nil
}

// writeMetricAxes writes Loop_Metrics_Indices and Loop_Metrics_Values into group and returns the
// auxiliary tables of per-loop results.
func (lm *LoopModel) writeMetricAxes(group string) (auxTables, error) {
	idxPath := path.Join(group, format.LoopMetricsIndices)
	valPath := path.Join(group, format.LoopMetricsValues)

	labels := lm.metricAxes.Labels()
	indices := lm.metricAxes.Indices()
	values := lm.metricAxes.Values()
	rows, cols := len(labels), lm.metricAxes.Columns()

	ib := store.NewBlock(format.IndexLayout, rows, cols)
	vb := store.NewBlock(format.ValueLayout, rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			ib.Set(r, c, 0, float32(indices[r][c]))
			vb.Set(r, c, 0, float32(values[r][c]))
		}
	}

	for _, t := range []struct {
		p string
		b *store.Block
	}{{idxPath, ib}, {valPath, vb}} {
		if err := lm.store.CreateTable(t.p, t.b.Layout, rows, cols); err != nil {
			return auxTables{}, err
		}
		if err := lm.store.WriteTable(t.p, store.All(rows), store.All(cols), t.b); err != nil {
			return auxTables{}, err
		}
		if err := lm.store.SetLabels(t.p, labels); err != nil {
			return auxTables{}, err
		}
	}

	return auxTables{
		posIndices:  lm.aux.posIndices,
		posValues:   lm.aux.posValues,
		specIndices: idxPath,
		specValues:  valPath,
	}, nil
}

// metricAux returns the auxiliary tables of per-loop results in the current group, writing
// them when a group set with SetGuess lacks them.
func (lm *LoopModel) metricAux() (auxTables, error) {
	aux := auxTables{posIndices: lm.aux.posIndices, posValues: lm.aux.posValues}
	aux.specIndices = path.Join(lm.group, format.LoopMetricsIndices)
	aux.specValues = path.Join(lm.group, format.LoopMetricsValues)
	for _, p := range []string{aux.specIndices, aux.specValues} {
		err := lm.checkShape(p, len(lm.metricAxes.Labels()), lm.metricAxes.Columns())
		if errors.Is(err, errs.ErrTableNotFound) {
			return lm.writeMetricAxes(lm.group)
		}
		if err != nil {
			return auxTables{}, err
		}
	}

	return aux, nil
}
