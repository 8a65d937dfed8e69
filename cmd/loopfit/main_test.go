package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/store"
	"github.com/arloliu/loopfit/synth"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())

	return strings.TrimSpace(stdout.String()), stderr.String(), err
}

func TestPipelineCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.lfs")

	out, _, err := run(t, "synth", "--out", file, "--pixels", "4", "--steps", "32", "--compression", "lz4")
	require.NoError(t, err)
	require.Equal(t, synth.DatasetPath, out)

	guess, _, err := run(t, "guess", "--in", file, "--workers", "2")
	require.NoError(t, err)
	require.Equal(t, synth.DatasetPath+"-Loop_Fit_000/"+format.Guess, guess)

	fit, stderr, err := run(t, "fit", "--in", file, "--metrics", "--log-level", "debug")
	require.NoError(t, err)
	require.Equal(t, synth.DatasetPath+"-Loop_Fit_000/"+format.Fit, fit)
	require.Contains(t, stderr, "loopfit_loop_fits_total")
	require.Contains(t, stderr, "fit complete")

	params, _, err := run(t, "params", "--in", file, "--nuc-threshold", "0.05")
	require.NoError(t, err)
	require.Equal(t, fit+format.LoopParametersSuffix, params)

	st, err := store.Open(file)
	require.NoError(t, err)
	threshold, err := st.AttrFloat(params, format.AttrNucThreshold)
	require.NoError(t, err)
	require.InDelta(t, 0.05, threshold, 1e-12)

	listing, _, err := run(t, "inspect", "--in", file)
	require.NoError(t, err)
	require.Contains(t, listing, fit)
	require.Contains(t, listing, "loop_fit32")
	require.Contains(t, listing, format.SpectroscopicIndices)
}

func TestFitWithoutGuess(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.lfs")
	_, _, err := run(t, "synth", "--out", file, "--pixels", "2", "--steps", "16")
	require.NoError(t, err)

	_, _, err = run(t, "fit", "--in", file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "guess")
}

func TestConfigCommand(t *testing.T) {
	out, _, err := run(t, "config", "--strategy", "bfgs", "--seed", "3")
	require.NoError(t, err)
	require.Contains(t, out, "strategy: bfgs")
	require.Contains(t, out, "seed: 3")

	_, _, err = run(t, "config", "--strategy", "newton")
	require.Error(t, err)
}
