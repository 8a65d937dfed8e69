// Package analysis runs the band-excitation loop pipeline over a response dataset held in a
// Storage.
//
// A LoopModel reads the spectroscopic axis tables linked from the dataset, plans memory-bounded
// chunks and processes them outer-cycle-major, position-ascending:
//
//   - DoGuess projects every loop (amplitude and phase to a real response), measures its
//     geometry and derives initial coefficients with the cluster cascade. It writes
//     Projected_Loops, Loop_Metrics, Loop_Metrics_Indices, Loop_Metrics_Values and Guess into a
//     new "<dataset>-Loop_Fit_NNN" group.
//   - DoFit refines every guess with a least-squares solver and writes Fit into the same group.
//   - ExtractLoopParameters derives the switching parameters of a Guess or Fit table.
//
// The outputs of a chunk are written only after every loop of the chunk has been processed.
//
// Example:
//
//	lm, err := analysis.New(st, "/Measurement_000/Channel_000/Raw_Data-SHO_Fit_000/Fit",
//	    analysis.WithMaxMemMB(512),
//	    analysis.WithLogger(log),
//	    analysis.WithLoopParameters(true),
//	)
//	if err != nil {
//	    return err
//	}
//	if _, err := lm.DoGuess(ctx); err != nil {
//	    return err
//	}
//	fit, err := lm.DoFit(ctx)
package analysis
