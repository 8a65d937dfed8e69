package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/solver"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "loopfit.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.GreaterOrEqual(t, cfg.Workers, 1)
	require.Equal(t, "levenberg-marquardt", cfg.Strategy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.MaxMemMB = 0 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"overhead", func(c *Config) { c.Overhead = 0.5 }},
		{"iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"tolerance", func(c *Config) { c.Tolerance = 0 }},
		{"threshold", func(c *Config) { c.NucThreshold = 1 }},
		{"bias label", func(c *Config) { c.BiasLabel = "" }},
		{"strategy", func(c *Config) { c.Strategy = "newton" }},
		{"compression", func(c *Config) { c.Compression = "gzip" }},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	file := writeFile(t, "max_mem_mb: 256\nworkers: 1\nstrategy: bfgs\nseed: 9\ncompression: lz4\n")
	t.Setenv("LOOPFIT_MAX_MEM_MB", "128")
	t.Setenv("LOOPFIT_NUC_THRESHOLD", "0.1")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(FlagName("strategy"), "", "")
	flags.Int64(FlagName("max_mem_mb"), 0, "")
	require.NoError(t, flags.Parse([]string{"--strategy=nelder-mead"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)
	require.Equal(t, int64(128), cfg.MaxMemMB, "environment overrides file")
	require.Equal(t, "nelder-mead", cfg.Strategy, "flag overrides file")
	require.Equal(t, uint64(9), cfg.Seed)
	require.Equal(t, 1, cfg.Workers)
	require.Equal(t, "lz4", cfg.Compression)
	require.InDelta(t, 0.1, cfg.NucThreshold, 1e-12)
	require.Equal(t, Default().BiasLabel, cfg.BiasLabel)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)

	file := writeFile(t, "workers: 0\n")
	_, err = Load(file, nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Seed = 42
	cfg.LoopParameters = true
	cfg.Strategy = "bfgs"

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	require.Contains(t, buf.String(), "loop_parameters: true")

	loaded, err := Load(writeFile(t, buf.String()), nil)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "simplex"

	solverOpts, err := cfg.SolverOptions()
	require.NoError(t, err)
	s, err := solver.New(solverOpts...)
	require.NoError(t, err)
	require.Equal(t, solver.NelderMead, s.Strategy())

	analysisOpts, err := cfg.AnalysisOptions(logr.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.Len(t, analysisOpts, 10)

	storeOpts, err := cfg.StoreOptions()
	require.NoError(t, err)
	require.Len(t, storeOpts, 1)

	cfg.Compression = "gzip"
	_, err = cfg.StoreOptions()
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, flush, err := NewLogger("info", &buf)
	require.NoError(t, err)

	log.Info("visible", "pixels", 4)
	log.V(1).Info("hidden")
	flush()
	require.Contains(t, buf.String(), "visible")
	require.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	log, flush, err = NewLogger("debug", &buf)
	require.NoError(t, err)
	log.V(1).Info("chunk detail")
	flush()
	require.Contains(t, buf.String(), "chunk detail")

	_, _, err = NewLogger("chatty", &buf)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, lvl)
}
