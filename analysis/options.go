package analysis

import (
	"fmt"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/chunk"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/internal/options"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/solver"
)

const (
	// DefaultMaxMemMB is the default memory budget of one chunk in megabytes.
	DefaultMaxMemMB = 1024
	// MinMaxMemMB is the smallest accepted memory budget.
	MinMaxMemMB = 1
)

type config struct {
	maxMemMB       int64
	workers        int
	overhead       float64
	seed           uint64
	nucThreshold   float64
	loopParameters bool
	biasLabel      string
	solverOpts     []solver.Option
	log            logr.Logger
	registerer     prometheus.Registerer
}

func defaultConfig() config {
	return config{
		maxMemMB:     DefaultMaxMemMB,
		workers:      max(1, runtime.NumCPU()-2),
		overhead:     chunk.DefaultOverhead,
		nucThreshold: model.DefaultNucThreshold,
		biasLabel:    axis.DefaultBiasLabel,
		log:          logr.Discard(),
	}
}

// Option configures a LoopModel.
type Option = options.Option[*config]

// WithMaxMemMB sets the memory budget of one chunk in megabytes.
func WithMaxMemMB(mb int64) Option {
	return options.New(func(c *config) error {
		if mb < MinMaxMemMB {
			return fmt.Errorf("%w: max memory must be at least %d MB, got %d", errs.ErrInvalidConfig, MinMaxMemMB, mb)
		}
		c.maxMemMB = mb

		return nil
	})
}

// WithWorkers sets the number of concurrent per-loop workers. Values above the CPU count are
// capped.
func WithWorkers(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: workers must be at least 1, got %d", errs.ErrInvalidConfig, n)
		}
		c.workers = min(n, runtime.NumCPU())

		return nil
	})
}

// WithOverhead overrides chunk.DefaultOverhead.
func WithOverhead(overhead float64) Option {
	return options.New(func(c *config) error {
		if !(overhead >= 1) {
			return fmt.Errorf("%w: overhead must be at least 1, got %g", errs.ErrInvalidConfig, overhead)
		}
		c.overhead = overhead

		return nil
	})
}

// WithSeed sets the clustering seed of the guess cascade.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *config) {
		c.seed = seed
	})
}

// WithNucThreshold sets the nucleation threshold used for loop parameters.
func WithNucThreshold(t float64) Option {
	return options.New(func(c *config) error {
		if !(t > 0 && t < 1) {
			return fmt.Errorf("%w: nucleation threshold must be in (0, 1), got %g", errs.ErrInvalidConfig, t)
		}
		c.nucThreshold = t

		return nil
	})
}

// WithLoopParameters extracts switching parameters after every guess and fit.
func WithLoopParameters(enabled bool) Option {
	return options.NoError(func(c *config) {
		c.loopParameters = enabled
	})
}

// WithBiasLabel sets the spectroscopic label of the bias axis.
func WithBiasLabel(label string) Option {
	return options.New(func(c *config) error {
		if label == "" {
			return fmt.Errorf("%w: empty bias label", errs.ErrInvalidConfig)
		}
		c.biasLabel = label

		return nil
	})
}

// WithSolver passes options to the solver used by the guess cascade and the fit.
func WithSolver(opts ...solver.Option) Option {
	return options.NoError(func(c *config) {
		c.solverOpts = append(c.solverOpts, opts...)
	})
}

// WithLogger sets the logger. Chunk progress is logged at V(1).
func WithLogger(log logr.Logger) Option {
	return options.NoError(func(c *config) {
		c.log = log
	})
}

// WithRegisterer registers the pipeline metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return options.NoError(func(c *config) {
		c.registerer = r
	})
}
