package store

import (
	"fmt"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
)

// Range is a half-open index interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Span returns the range [start, end).
func Span(start, end int) Range {
	return Range{Start: start, End: end}
}

// All returns the range [0, n).
func All(n int) Range {
	return Range{Start: 0, End: n}
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d:%d)", r.Start, r.End)
}

func (r Range) within(n int) bool {
	return r.Start >= 0 && r.End <= n && r.Start <= r.End
}

// Block is a rectangular [Rows x Cols] slice of a table. Data holds Rows*Cols cells of
// Layout.Width() float32 fields each, row-major: cell (r, c) starts at (r*Cols+c)*Width.
type Block struct {
	Layout format.Layout
	Rows   int
	Cols   int
	Data   []float32
}

// NewBlock allocates a zeroed block.
func NewBlock(layout format.Layout, rows, cols int) *Block {
	return &Block{
		Layout: layout,
		Rows:   rows,
		Cols:   cols,
		Data:   make([]float32, rows*cols*layout.Width()),
	}
}

// Cell returns the fields of cell (r, c). The slice aliases Data.
func (b *Block) Cell(r, c int) []float32 {
	w := b.Layout.Width()
	off := (r*b.Cols + c) * w

	return b.Data[off : off+w : off+w]
}

// At returns field f of cell (r, c).
func (b *Block) At(r, c, f int) float32 {
	return b.Data[(r*b.Cols+c)*b.Layout.Width()+f]
}

// Set stores v in field f of cell (r, c).
func (b *Block) Set(r, c, f int, v float32) {
	b.Data[(r*b.Cols+c)*b.Layout.Width()+f] = v
}

// Field extracts one named field as a row-major [Rows x Cols] float64 matrix.
func (b *Block) Field(name string) ([][]float64, error) {
	f := b.Layout.Index(name)
	if f < 0 {
		return nil, fmt.Errorf("%w: field %q not in layout %s", errs.ErrLayoutMismatch, name, b.Layout.Name)
	}

	out := make([][]float64, b.Rows)
	for r := range out {
		row := make([]float64, b.Cols)
		for c := range row {
			row[c] = float64(b.At(r, c, f))
		}
		out[r] = row
	}

	return out, nil
}

// Records returns the cells of row r as float64 records of Layout.Width() fields.
func (b *Block) Records(r int) [][]float64 {
	out := make([][]float64, b.Cols)
	for c := range out {
		cell := b.Cell(r, c)
		rec := make([]float64, len(cell))
		for i, v := range cell {
			rec[i] = float64(v)
		}
		out[c] = rec
	}

	return out
}

// SetRecord stores a float64 record in cell (r, c). rec must have Layout.Width() values.
func (b *Block) SetRecord(r, c int, rec []float64) {
	cell := b.Cell(r, c)
	for i := range cell {
		cell[i] = float32(rec[i])
	}
}
