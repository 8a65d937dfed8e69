package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arloliu/loopfit/config"
)

// app is the state shared by all subcommands.
type app struct {
	configFile  string
	dumpMetrics bool

	cfg   config.Config
	log   logr.Logger
	flush func()
	reg   *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{log: logr.Discard(), flush: func() {}}

	root := &cobra.Command{
		Use:           "loopfit",
		Short:         "Fit band-excitation hysteresis loops",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			a.flush()
			if a.dumpMetrics {
				return writeMetrics(cmd.ErrOrStderr(), a.reg)
			}

			return nil
		},
	}

	def := config.Default()
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML configuration file")
	pf.String(config.FlagName("log_level"), def.LogLevel, "log level: debug, info, warn or error")
	pf.BoolVar(&a.dumpMetrics, "metrics", false, "write the collected metrics to stderr on exit")
	pf.String(config.FlagName("compression"), def.Compression, "page compression of written stores: none, zstd, s2 or lz4")

	root.AddCommand(
		newSynthCmd(a),
		newGuessCmd(a),
		newFitCmd(a),
		newParamsCmd(a),
		newInspectCmd(a),
		newConfigCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	log, flush, err := config.NewLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log.WithName("loopfit")
	a.flush = flush
	a.reg = prometheus.NewRegistry()

	return nil
}

// addPipelineFlags registers the flags of the analysis settings on fs.
func addPipelineFlags(fs *pflag.FlagSet) {
	def := config.Default()
	fs.Int64(config.FlagName("max_mem_mb"), def.MaxMemMB, "memory budget of one chunk in MB")
	fs.Int(config.FlagName("workers"), def.Workers, "concurrent per-loop workers")
	fs.Float64(config.FlagName("overhead"), def.Overhead, "chunk copies assumed alive at once")
	fs.Uint64(config.FlagName("seed"), def.Seed, "clustering seed of the guess cascade")
	fs.String(config.FlagName("strategy"), def.Strategy, "solver: levenberg-marquardt, bfgs or nelder-mead")
	fs.Int(config.FlagName("max_iterations"), def.MaxIterations, "solver iteration limit per loop")
	fs.Float64(config.FlagName("tolerance"), def.Tolerance, "solver convergence tolerance")
	fs.Float64(config.FlagName("nuc_threshold"), def.NucThreshold, "nucleation threshold of loop parameters")
	fs.Bool(config.FlagName("loop_parameters"), def.LoopParameters, "extract loop parameters after guess and fit")
	fs.String(config.FlagName("bias_label"), def.BiasLabel, "spectroscopic label of the bias axis")
}

// writeMetrics writes the gathered metric families in the Prometheus text format, skipping
// families without samples.
func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	if reg == nil {
		return nil
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !hasSamples(mf) {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}

	return nil
}

func hasSamples(mf *dto.MetricFamily) bool {
	return len(mf.GetMetric()) > 0 && strings.HasPrefix(mf.GetName(), "loopfit_")
}
