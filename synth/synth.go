// Package synth builds band-excitation response datasets from known loop coefficients.
//
// Every pixel's loop is evaluated from the loop model on a triangular bias sweep
// (0 -> +V -> -V -> 0), rotated into the complex plane by a per-pixel angle and offset, and
// stored as amplitude and phase in a format.SHOLayout table with its spectroscopic and
// position tables. Running the analysis pipeline on the result should recover the
// coefficients.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/internal/options"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/store"
)

// Default locations of the generated tables.
const (
	MeasurementGroup = "/Measurement_000/Channel_000"
	SourceGroup      = MeasurementGroup + "/Raw_Data-SHO_Fit_000"
	DatasetPath      = SourceGroup + "/Fit"
)

// Frequency and quality factor written for every cell; the pipeline ignores them.
const (
	resonanceHz   = 350e3
	qualityFactor = 200
)

// BaseCoefficients is the loop of pixel 0: coercive biases -3 and 3, unit-ish widths.
var BaseCoefficients = model.Coefficients{0.2, 1.8, -3, 3, 0.01, 1.5, 1.5, 1.5, 1.5}

// CoefficientFunc returns the true coefficients of a pixel in a cycle.
type CoefficientFunc func(pixel, cycle int) model.Coefficients

// Varied shifts the coercive biases and amplitude of BaseCoefficients a little per pixel.
func Varied(pixel, _ int) model.Coefficients {
	c := BaseCoefficients
	c[model.A1] *= 1 + 0.05*float64(pixel%4)
	c[model.A2] -= 0.1 * float64(pixel%3)
	c[model.A3] += 0.1 * float64(pixel%2)

	return c
}

type config struct {
	pixels    int
	steps     int
	cycles    int
	maxBias   float64
	noise     float64
	seed      uint64
	coef      CoefficientFunc
	storeOpts []store.Option
}

// Option configures Build.
type Option = options.Option[*config]

// WithPixels sets the number of pixels.
func WithPixels(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: pixels must be positive, got %d", errs.ErrInvalidConfig, n)
		}
		c.pixels = n

		return nil
	})
}

// WithSteps sets the number of bias steps of one sweep. It must be a multiple of 4.
func WithSteps(n int) Option {
	return options.New(func(c *config) error {
		if n < 8 || n%4 != 0 {
			return fmt.Errorf("%w: steps must be a multiple of 4 and at least 8, got %d", errs.ErrInvalidConfig, n)
		}
		c.steps = n

		return nil
	})
}

// WithCycles adds a FORC outer-cycle axis of n cycles. One cycle omits the axis.
func WithCycles(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: cycles must be positive, got %d", errs.ErrInvalidConfig, n)
		}
		c.cycles = n

		return nil
	})
}

// WithMaxBias sets the sweep amplitude in volts.
func WithMaxBias(v float64) Option {
	return options.New(func(c *config) error {
		if !(v > 0) {
			return fmt.Errorf("%w: max bias must be positive, got %g", errs.ErrInvalidConfig, v)
		}
		c.maxBias = v

		return nil
	})
}

// WithNoise adds Gaussian noise of the given standard deviation to the loop response.
func WithNoise(sigma float64, seed uint64) Option {
	return options.New(func(c *config) error {
		if sigma < 0 {
			return fmt.Errorf("%w: noise must not be negative, got %g", errs.ErrInvalidConfig, sigma)
		}
		c.noise = sigma
		c.seed = seed

		return nil
	})
}

// WithCoefficients sets the true coefficients per pixel and cycle.
func WithCoefficients(fn CoefficientFunc) Option {
	return options.NoError(func(c *config) {
		c.coef = fn
	})
}

// WithStoreOptions passes options to the created store.
func WithStoreOptions(opts ...store.Option) Option {
	return options.NoError(func(c *config) {
		c.storeOpts = append(c.storeOpts, opts...)
	})
}

// Dataset is a generated dataset.
type Dataset struct {
	Store *store.Store
	// Path is the response table.
	Path string
	// Bias is the sweep of one cycle in acquisition order.
	Bias []float64
	// Truth holds the coefficients of every pixel, [pixel][cycle].
	Truth [][]model.Coefficients
}

// Build generates a dataset. The defaults are 4 pixels, 64 steps, one cycle, 10 V and
// Varied coefficients without noise.
func Build(opts ...Option) (*Dataset, error) {
	cfg := config{pixels: 4, steps: 64, cycles: 1, maxBias: 10, coef: Varied}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	st, err := store.New(cfg.storeOpts...)
	if err != nil {
		return nil, err
	}

	bias := Triangle(cfg.steps, cfg.maxBias)
	cols := cfg.steps * cfg.cycles
	if err := st.CreateTable(DatasetPath, format.SHOLayout, cfg.pixels, cols); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed+1))
	block := store.NewBlock(format.SHOLayout, cfg.pixels, cols)
	amp, phase := format.SHOLayout.Index(format.FieldAmplitude), format.SHOLayout.Index(format.FieldPhase)
	freq, quality := format.SHOLayout.Index(format.FieldFrequency), format.SHOLayout.Index(format.FieldQuality)

	truth := make([][]model.Coefficients, cfg.pixels)
	for p := 0; p < cfg.pixels; p++ {
		truth[p] = make([]model.Coefficients, cfg.cycles)
		angle := 0.3 + 0.4*float64(p)
		offset := 0.05 * float64(p%3)
		for cy := 0; cy < cfg.cycles; cy++ {
			coef := cfg.coef(p, cy)
			truth[p][cy] = coef
			response := Loop(bias, coef)
			for i, y := range response {
				if cfg.noise > 0 {
					y += rng.NormFloat64() * cfg.noise
				}
				s, c := math.Sincos(angle)
				re := y*c - offset*s
				im := y*s + offset*c

				col := cy*cfg.steps + i
				block.Set(p, col, amp, float32(math.Hypot(re, im)))
				block.Set(p, col, phase, float32(math.Atan2(im, re)))
				block.Set(p, col, freq, resonanceHz)
				block.Set(p, col, quality, qualityFactor)
			}
		}
	}
	if err := st.WriteTable(DatasetPath, store.All(cfg.pixels), store.All(cols), block); err != nil {
		return nil, err
	}

	if err := writeSpectroscopic(st, bias, cfg.cycles); err != nil {
		return nil, err
	}
	if err := writePositions(st, cfg.pixels); err != nil {
		return nil, err
	}
	if err := st.SetAttr(DatasetPath, "units", "V"); err != nil {
		return nil, err
	}

	return &Dataset{Store: st, Path: DatasetPath, Bias: bias, Truth: truth}, nil
}

// Triangle returns the bias sweep 0 -> +vmax -> -vmax -> 0 of n steps.
func Triangle(n int, vmax float64) []float64 {
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

// Loop evaluates coef on the quarter-cycle shifted sweep and returns the response in
// acquisition order.
func Loop(bias []float64, coef model.Coefficients) []float64 {
	shift := model.QuarterShift(len(bias))
	v := model.Roll(bias, shift)
	y := make([]float64, len(v))
	model.BELoop.Evaluate(coef[:], v, y)

	return model.Roll(y, -shift)
}

func writeSpectroscopic(st *store.Store, bias []float64, cycles int) error {
	steps := len(bias)
	labels := []string{axis.DefaultBiasLabel}
	if cycles > 1 {
		labels = append(labels, axis.ForcLabel)
	}
	cols := steps * cycles

	idx := store.NewBlock(format.IndexLayout, len(labels), cols)
	val := store.NewBlock(format.ValueLayout, len(labels), cols)
	for j := 0; j < cols; j++ {
		idx.Set(0, j, 0, float32(j%steps))
		val.Set(0, j, 0, float32(bias[j%steps]))
		if cycles > 1 {
			idx.Set(1, j, 0, float32(j/steps))
			val.Set(1, j, 0, float32(j/steps))
		}
	}

	return writeAux(st, DatasetPath, SourceGroup, format.SpectroscopicIndices, format.SpectroscopicValues, labels, idx, val)
}

func writePositions(st *store.Store, pixels int) error {
	width := int(math.Ceil(math.Sqrt(float64(pixels))))
	labels := []string{"X", "Y"}

	idx := store.NewBlock(format.IndexLayout, pixels, len(labels))
	val := store.NewBlock(format.ValueLayout, pixels, len(labels))
	for p := 0; p < pixels; p++ {
		x, y := p%width, p/width
		idx.Set(p, 0, 0, float32(x))
		idx.Set(p, 1, 0, float32(y))
		val.Set(p, 0, 0, float32(x)*1e-7)
		val.Set(p, 1, 0, float32(y)*1e-7)
	}

	return writeAux(st, DatasetPath, MeasurementGroup, format.PositionIndices, format.PositionValues, labels, idx, val)
}

func writeAux(st *store.Store, dataset, group, idxName, valName string, labels []string, idx, val *store.Block) error {
	for _, t := range []struct {
		name string
		b    *store.Block
	}{{idxName, idx}, {valName, val}} {
		p := store.Join(group, t.name)
		if err := st.CreateTable(p, t.b.Layout, t.b.Rows, t.b.Cols); err != nil {
			return err
		}
		if err := st.WriteTable(p, store.All(t.b.Rows), store.All(t.b.Cols), t.b); err != nil {
			return err
		}
		if err := st.SetLabels(p, labels); err != nil {
			return err
		}
		if err := st.Link(dataset, t.name, p); err != nil {
			return err
		}
	}

	return nil
}
