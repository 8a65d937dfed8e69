// Package cascade produces per-loop initial guesses by fitting a hierarchy of cluster means from
// coarse to fine.
//
// The loops of a chunk are clustered with k-means, the cluster centroids are merged into a
// weighted-average linkage tree and the loop model is fitted at every node, top-down. The root
// starts from the heuristic model.InitialGuess of its mean curve; every other node starts from
// its parent's fitted coefficients. Each loop receives the coefficients of its leaf cluster.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/arloliu/loopfit/cluster"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/internal/options"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/solver"
)

// Fitter refines loop-model coefficients against one curve. *solver.Solver implements it.
type Fitter interface {
	Fit(ctx context.Context, v, y []float64, x0 model.Coefficients) (solver.Result, error)
}

type config struct {
	seed      uint64
	workers   int
	maxIter   int
	fitter    Fitter
	objective model.Objective
	log       logr.Logger
}

// Option configures Guess.
type Option = options.Option[*config]

// WithSeed sets the k-means random seed.
func WithSeed(seed uint64) Option {
	return options.NoError(func(c *config) {
		c.seed = seed
	})
}

// WithWorkers bounds the number of node fits running at once.
func WithWorkers(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: workers must be at least 1, got %d", errs.ErrInvalidConfig, n)
		}
		c.workers = n

		return nil
	})
}

// WithClusterIterations bounds the k-means iterations.
func WithClusterIterations(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: cluster iterations must be at least 1, got %d", errs.ErrInvalidConfig, n)
		}
		c.maxIter = n

		return nil
	})
}

// WithFitter replaces the default Levenberg-Marquardt solver.
func WithFitter(f Fitter) Option {
	return options.New(func(c *config) error {
		if f == nil {
			return fmt.Errorf("%w: nil fitter", errs.ErrInvalidConfig)
		}
		c.fitter = f

		return nil
	})
}

// WithLogger sets the logger. Node fallbacks are logged at V(1).
func WithLogger(log logr.Logger) Option {
	return options.NoError(func(c *config) {
		c.log = log
	})
}

// Clusters returns the number of k-means clusters used for n loops: max(2, round(sqrt(n)))
// clamped to n.
func Clusters(n int) int {
	k := max(2, int(math.Round(math.Sqrt(float64(n)))))

	return min(k, n)
}

// Guess returns one guess record per loop. bias is the bias sweep in acquisition order and
// every loop holds the projected response at those bias steps; both are rolled by the
// quarter-cycle shift before fitting. The result depends only on the input and the seed.
func Guess(ctx context.Context, bias []float64, loops [][]float64, opts ...Option) ([]model.Record, error) {
	cfg := config{
		workers:   1,
		maxIter:   cluster.DefaultMaxIterations,
		objective: model.BELoop,
		log:       logr.Discard(),
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.fitter == nil {
		s, err := solver.New()
		if err != nil {
			return nil, err
		}
		cfg.fitter = s
	}

	if len(loops) == 0 {
		return nil, fmt.Errorf("%w: no loops to guess", errs.ErrInvalidConfig)
	}
	steps := len(bias)
	for i, l := range loops {
		if len(l) != steps {
			return nil, fmt.Errorf("%w: loop %d has %d steps, bias has %d", errs.ErrAxisMismatch, i, len(l), steps)
		}
	}

	shift := model.QuarterShift(steps)
	v := model.Roll(bias, shift)
	rolled := make([][]float64, len(loops))
	for i, l := range loops {
		rolled[i] = model.Roll(l, shift)
	}

	k := Clusters(len(loops))
	part, err := cluster.KMeans(rolled, k, cfg.seed, cfg.maxIter)
	if err != nil {
		return nil, fmt.Errorf("clustering %d loops: %w", len(loops), err)
	}
	tree, err := cluster.Linkage(part.Centroids)
	if err != nil {
		return nil, fmt.Errorf("linking %d clusters: %w", k, err)
	}
	cfg.log.V(1).Info("cluster tree built", "loops", len(loops), "clusters", k, "nodes", tree.Len(),
		"kmeansIterations", part.Iterations)

	nodeCoef := make([]model.Coefficients, tree.Len())
	root := tree.Root()
	visit := func(ctx context.Context, node *cluster.Node, parent model.Coefficients) (model.Coefficients, error) {
		x0 := parent
		if node.ID == root {
			x0 = model.InitialGuess(v, node.Centroid)
		}

		res, err := cfg.fitter.Fit(ctx, v, node.Centroid, x0)
		switch {
		case err == nil:
			nodeCoef[node.ID] = res.Coef
		case ctx.Err() != nil:
			return x0, ctx.Err()
		default:
			if !errors.Is(err, errs.ErrNotConverged) {
				cfg.log.V(1).Info("node fit failed, inheriting parent coefficients", "node", node.ID, "error", err.Error())
			} else {
				cfg.log.V(1).Info("node fit did not converge, inheriting parent coefficients", "node", node.ID)
			}
			nodeCoef[node.ID] = x0
		}

		return nodeCoef[node.ID], nil
	}
	if err := cluster.Walk(ctx, tree, model.Coefficients{}, cfg.workers, visit); err != nil {
		return nil, fmt.Errorf("fitting cluster tree: %w", err)
	}

	scores := make([]float64, k)
	scratch := make([]float64, steps)
	for c := 0; c < k; c++ {
		coef := nodeCoef[c]
		scores[c] = 1 - cfg.objective.SumSquares(coef[:], v, part.Centroids[c], scratch)
	}

	records := make([]model.Record, len(loops))
	for i, label := range part.Labels {
		records[i] = model.Record{Coef: nodeCoef[label], R2: scores[label]}
	}

	return records, nil
}
