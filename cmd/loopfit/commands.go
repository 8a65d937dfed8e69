package main

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arloliu/loopfit/analysis"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/store"
	"github.com/arloliu/loopfit/synth"
)

// ioFlags are the file and dataset flags of the pipeline commands.
type ioFlags struct {
	in      string
	out     string
	dataset string
}

func (f *ioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.in, "in", "", "store file to read")
	cmd.Flags().StringVar(&f.out, "out", "", "store file to write, defaults to --in")
	cmd.Flags().StringVar(&f.dataset, "dataset", synth.DatasetPath, "response table")
	_ = cmd.MarkFlagRequired("in")
}

func (f *ioFlags) output() string {
	if f.out != "" {
		return f.out
	}

	return f.in
}

func (a *app) open(name string) (*store.Store, error) {
	opts, err := a.cfg.StoreOptions()
	if err != nil {
		return nil, err
	}

	return store.Open(name, opts...)
}

func (a *app) save(st *store.Store, name string) error {
	if err := st.SaveFile(name); err != nil {
		return err
	}
	a.log.Info("store written", "file", name, "compression", st.Compression().String())

	return nil
}

func (a *app) loopModel(st *store.Store, dataset string) (*analysis.LoopModel, error) {
	opts, err := a.cfg.AnalysisOptions(a.log, a.reg)
	if err != nil {
		return nil, err
	}

	return analysis.New(st, dataset, opts...)
}

// latestResult returns the table name in the newest "<dataset>-Loop_Fit_NNN" group holding it.
func latestResult(st *store.Store, dataset, name string) (string, error) {
	prefix := dataset + "-Loop_Fit_"
	groups := st.Groups()
	slices.Reverse(groups)
	for _, g := range groups {
		if strings.HasPrefix(g, prefix) && st.HasTable(path.Join(g, name)) {
			return path.Join(g, name), nil
		}
	}

	return "", fmt.Errorf("%w: no %s table for %s", errs.ErrTableNotFound, name, dataset)
}

func newSynthCmd(a *app) *cobra.Command {
	var (
		out       string
		pixels    int
		steps     int
		cycles    int
		maxBias   float64
		noise     float64
		noiseSeed uint64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic band-excitation dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeOpts, err := a.cfg.StoreOptions()
			if err != nil {
				return err
			}
			ds, err := synth.Build(
				synth.WithPixels(pixels),
				synth.WithSteps(steps),
				synth.WithCycles(cycles),
				synth.WithMaxBias(maxBias),
				synth.WithNoise(noise, noiseSeed),
				synth.WithStoreOptions(storeOpts...),
			)
			if err != nil {
				return err
			}
			if err := a.save(ds.Store, out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ds.Path)

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "store file to write")
	cmd.Flags().IntVar(&pixels, "pixels", 16, "number of pixels")
	cmd.Flags().IntVar(&steps, "steps", 64, "bias steps per sweep, a multiple of 4")
	cmd.Flags().IntVar(&cycles, "cycles", 1, "number of FORC cycles")
	cmd.Flags().Float64Var(&maxBias, "max-bias", 10, "sweep amplitude in volts")
	cmd.Flags().Float64Var(&noise, "noise", 0, "standard deviation of the added noise")
	cmd.Flags().Uint64Var(&noiseSeed, "noise-seed", 0, "seed of the added noise")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func newGuessCmd(a *app) *cobra.Command {
	var f ioFlags

	cmd := &cobra.Command{
		Use:   "guess",
		Short: "Project the loops of a dataset and compute initial coefficients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.open(f.in)
			if err != nil {
				return err
			}
			lm, err := a.loopModel(st, f.dataset)
			if err != nil {
				return err
			}
			guess, err := lm.DoGuess(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.save(st, f.output()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), guess)

			return nil
		},
	}
	f.register(cmd)
	addPipelineFlags(cmd.Flags())

	return cmd
}

func newFitCmd(a *app) *cobra.Command {
	var (
		f     ioFlags
		guess string
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Refine the latest guess of a dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.open(f.in)
			if err != nil {
				return err
			}
			lm, err := a.loopModel(st, f.dataset)
			if err != nil {
				return err
			}
			if guess == "" {
				if guess, err = latestResult(st, f.dataset, format.Guess); err != nil {
					return fmt.Errorf("%w: %w", errs.ErrGuessRequired, err)
				}
			}
			if err := lm.SetGuess(guess); err != nil {
				return err
			}
			fit, err := lm.DoFit(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.save(st, f.output()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fit)

			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&guess, "guess", "", "guess table, defaults to the newest guess of the dataset")
	addPipelineFlags(cmd.Flags())

	return cmd
}

func newParamsCmd(a *app) *cobra.Command {
	var (
		f     ioFlags
		table string
	)

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Extract switching parameters of a guess or fit table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.open(f.in)
			if err != nil {
				return err
			}
			if table == "" {
				if table, err = latestResult(st, f.dataset, format.Fit); err != nil {
					if table, err = latestResult(st, f.dataset, format.Guess); err != nil {
						return err
					}
				}
			}
			out, err := analysis.ExtractLoopParameters(st, table, a.cfg.NucThreshold)
			if err != nil {
				return err
			}
			if err := a.save(st, f.output()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)

			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&table, "table", "", "loop fit table, defaults to the newest fit or guess")
	addPipelineFlags(cmd.Flags())

	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the tables of a store file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.open(in)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tSHAPE\tLAYOUT\tATTRIBUTES\tLINKS")
			for _, t := range st.Tables() {
				rows, cols, err := st.Shape(t)
				if err != nil {
					return err
				}
				layout, err := st.Layout(t)
				if err != nil {
					return err
				}
				keys, err := st.AttrKeys(t)
				if err != nil {
					return err
				}
				links, err := st.Links(t)
				if err != nil {
					return err
				}
				aliases := make([]string, 0, len(links))
				for alias := range links {
					aliases = append(aliases, alias)
				}
				slices.Sort(aliases)

				fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\t%s\n", t, rows, cols, layout.Name,
					strings.Join(keys, ","), strings.Join(aliases, ","))
			}

			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "store file to read")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
	addPipelineFlags(cmd.Flags())

	return cmd
}
