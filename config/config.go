// Package config holds the application configuration of the loopfit command.
//
// A Config is assembled by Load from, in increasing precedence, Default, a YAML config file,
// LOOPFIT_* environment variables and explicitly set command-line flags. Library callers use the
// functional options of the analysis, solver and store packages directly; Config converts itself
// into those options.
package config

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/loopfit/analysis"
	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/chunk"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/solver"
	"github.com/arloliu/loopfit/store"
)

// EnvPrefix prefixes the environment variables read by Load, e.g. LOOPFIT_MAX_MEM_MB.
const EnvPrefix = "LOOPFIT"

// Config is the configuration of one pipeline run.
type Config struct {
	MaxMemMB       int64   `mapstructure:"max_mem_mb" yaml:"max_mem_mb"`
	Workers        int     `mapstructure:"workers" yaml:"workers"`
	Overhead       float64 `mapstructure:"overhead" yaml:"overhead"`
	Seed           uint64  `mapstructure:"seed" yaml:"seed"`
	Strategy       string  `mapstructure:"strategy" yaml:"strategy"`
	MaxIterations  int     `mapstructure:"max_iterations" yaml:"max_iterations"`
	Tolerance      float64 `mapstructure:"tolerance" yaml:"tolerance"`
	NucThreshold   float64 `mapstructure:"nuc_threshold" yaml:"nuc_threshold"`
	LoopParameters bool    `mapstructure:"loop_parameters" yaml:"loop_parameters"`
	Compression    string  `mapstructure:"compression" yaml:"compression"`
	BiasLabel      string  `mapstructure:"bias_label" yaml:"bias_label"`
	LogLevel       string  `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MaxMemMB:      analysis.DefaultMaxMemMB,
		Workers:       max(1, runtime.NumCPU()-2),
		Overhead:      chunk.DefaultOverhead,
		Strategy:      solver.LevenbergMarquardt.String(),
		MaxIterations: solver.DefaultMaxIterations,
		Tolerance:     solver.DefaultTolerance,
		NucThreshold:  model.DefaultNucThreshold,
		Compression:   "zstd",
		BiasLabel:     axis.DefaultBiasLabel,
		LogLevel:      "info",
	}
}

// Validate reports the first invalid setting, wrapped in errs.ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxMemMB < analysis.MinMaxMemMB:
		return fmt.Errorf("%w: max_mem_mb must be at least %d, got %d", errs.ErrInvalidConfig, analysis.MinMaxMemMB, c.MaxMemMB)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", errs.ErrInvalidConfig, c.Workers)
	case !(c.Overhead >= 1):
		return fmt.Errorf("%w: overhead must be at least 1, got %g", errs.ErrInvalidConfig, c.Overhead)
	case c.MaxIterations < 1:
		return fmt.Errorf("%w: max_iterations must be positive, got %d", errs.ErrInvalidConfig, c.MaxIterations)
	case !(c.Tolerance > 0):
		return fmt.Errorf("%w: tolerance must be positive, got %g", errs.ErrInvalidConfig, c.Tolerance)
	case !(c.NucThreshold > 0 && c.NucThreshold < 1):
		return fmt.Errorf("%w: nuc_threshold must be in (0, 1), got %g", errs.ErrInvalidConfig, c.NucThreshold)
	case c.BiasLabel == "":
		return fmt.Errorf("%w: empty bias_label", errs.ErrInvalidConfig)
	}

	if _, err := solver.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if _, ok := format.ParseCompression(c.Compression); !ok {
		return fmt.Errorf("%w: unknown compression %q", errs.ErrInvalidConfig, c.Compression)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// keys returns the settings keys and their defaults.
func (c Config) keys() map[string]any {
	return map[string]any{
		"max_mem_mb":      c.MaxMemMB,
		"workers":         c.Workers,
		"overhead":        c.Overhead,
		"seed":            c.Seed,
		"strategy":        c.Strategy,
		"max_iterations":  c.MaxIterations,
		"tolerance":       c.Tolerance,
		"nuc_threshold":   c.NucThreshold,
		"loop_parameters": c.LoopParameters,
		"compression":     c.Compression,
		"bias_label":      c.BiasLabel,
		"log_level":       c.LogLevel,
	}
}

// FlagName returns the command-line flag bound to a settings key: "max_mem_mb" is --max-mem-mb.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load reads the configuration. file may be empty. Flags of the set named after a settings key
// (see FlagName) override the other sources when they were set on the command line.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	def := Default()
	for key, value := range def.keys() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	if flags != nil {
		for key := range def.keys() {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", errs.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// WriteYAML writes the configuration as a YAML document that Load accepts.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}

	return enc.Close()
}

// SolverOptions returns the solver options of the configuration.
func (c Config) SolverOptions() ([]solver.Option, error) {
	strategy, err := solver.ParseStrategy(c.Strategy)
	if err != nil {
		return nil, err
	}

	return []solver.Option{
		solver.WithStrategy(strategy),
		solver.WithMaxIterations(c.MaxIterations),
		solver.WithTolerance(c.Tolerance),
	}, nil
}

// AnalysisOptions returns the loop model options of the configuration.
func (c Config) AnalysisOptions(log logr.Logger, reg prometheus.Registerer) ([]analysis.Option, error) {
	solverOpts, err := c.SolverOptions()
	if err != nil {
		return nil, err
	}

	return []analysis.Option{
		analysis.WithMaxMemMB(c.MaxMemMB),
		analysis.WithWorkers(c.Workers),
		analysis.WithOverhead(c.Overhead),
		analysis.WithSeed(c.Seed),
		analysis.WithNucThreshold(c.NucThreshold),
		analysis.WithLoopParameters(c.LoopParameters),
		analysis.WithBiasLabel(c.BiasLabel),
		analysis.WithSolver(solverOpts...),
		analysis.WithLogger(log),
		analysis.WithRegisterer(reg),
	}, nil
}

// StoreOptions returns the options of a store written with this configuration.
func (c Config) StoreOptions() ([]store.Option, error) {
	ct, ok := format.ParseCompression(c.Compression)
	if !ok {
		return nil, fmt.Errorf("%w: unknown compression %q", errs.ErrInvalidConfig, c.Compression)
	}

	return []store.Option{store.WithCompression(ct)}, nil
}
