// Command loopfit generates band-excitation datasets and runs the loop guess and fit pipeline on
// store files.
//
//	loopfit synth --out data.lfs --pixels 16 --steps 64
//	loopfit guess --in data.lfs
//	loopfit fit --in data.lfs --strategy bfgs
//	loopfit params --in data.lfs --nuc-threshold 0.05
//	loopfit inspect --in data.lfs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
