// Package chunk partitions a [pixels x columns] dataset into memory-bounded chunks.
//
// A chunk is a contiguous pixel range processed for one outer cycle at a time. Plan computes
// the largest pixel count whose working set fits in a memory budget; Iterator walks the chunks
// outer-cycle-major, then position-ascending.
package chunk

import (
	"fmt"

	"github.com/arloliu/loopfit/errs"
)

// DefaultOverhead is the number of copies of a chunk assumed to be alive at once: the input,
// the copy handed to the parallel workers, the results, plus half a chunk of guesses and
// scratch buffers.
const DefaultOverhead = 3.5

// Budget describes the dataset and the memory available for one chunk.
type Budget struct {
	// MemoryBytes is the memory budget in bytes.
	MemoryBytes int64
	// RecordBytesPerCycle is the size of one pixel's data for one cycle slice, in bytes.
	RecordBytesPerCycle int64
	// Pixels is the total number of pixels.
	Pixels int
	// OuterCycles and Repeats are the cardinalities of the outer-cycle axes (1 when absent).
	OuterCycles int
	Repeats     int
	// ResponseColumns and MetricColumns are the total column counts of the response table and
	// the per-loop metric table.
	ResponseColumns int
	MetricColumns   int
	// Overhead overrides DefaultOverhead when positive.
	Overhead float64
}

// Layout is the result of Plan.
type Layout struct {
	// MaxPixels is the largest number of pixels per chunk, at least 1.
	MaxPixels int
	// ResponseColumnsPerCycle and MetricColumnsPerCycle are the column counts of one cycle slice.
	ResponseColumnsPerCycle int
	MetricColumnsPerCycle   int
	// Cycles is OuterCycles*Repeats.
	Cycles int
}

// Plan computes the chunk layout for a budget.
//
// MaxPixels = floor(MemoryBytes / (RecordBytesPerCycle * overhead)), clamped to Pixels.
//
// Returns:
//   - Layout: the chunk layout
//   - error: errs.ErrBudgetTooSmall when one pixel of one cycle does not fit, errs.ErrInvalidConfig
//     for non-positive dimensions or column counts that do not divide into cycles
func Plan(b Budget) (Layout, error) {
	overhead := b.Overhead
	if overhead <= 0 {
		overhead = DefaultOverhead
	}
	outer, repeats := max(b.OuterCycles, 1), max(b.Repeats, 1)
	cycles := outer * repeats

	if b.Pixels < 1 || b.RecordBytesPerCycle < 1 || b.ResponseColumns < 1 {
		return Layout{}, fmt.Errorf("%w: pixels=%d record bytes=%d columns=%d",
			errs.ErrInvalidConfig, b.Pixels, b.RecordBytesPerCycle, b.ResponseColumns)
	}
	if b.ResponseColumns%cycles != 0 || b.MetricColumns%cycles != 0 {
		return Layout{}, fmt.Errorf("%w: %d response and %d metric columns do not split into %d cycles",
			errs.ErrInvalidConfig, b.ResponseColumns, b.MetricColumns, cycles)
	}

	maxPixels := int64(float64(b.MemoryBytes) / (float64(b.RecordBytesPerCycle) * overhead))
	if maxPixels < 1 {
		return Layout{}, fmt.Errorf("%w: %d bytes per pixel and cycle x %.2f overhead exceeds %d bytes",
			errs.ErrBudgetTooSmall, b.RecordBytesPerCycle, overhead, b.MemoryBytes)
	}

	return Layout{
		MaxPixels:               int(min(maxPixels, int64(b.Pixels))),
		ResponseColumnsPerCycle: b.ResponseColumns / cycles,
		MetricColumnsPerCycle:   b.MetricColumns / cycles,
		Cycles:                  cycles,
	}, nil
}
