package chunk

import "fmt"

// Chunk is the pixel range [Start, End) of one cycle slice.
type Chunk struct {
	Start int
	End   int
	Cycle int
}

// Len returns the number of pixels in the chunk.
func (c Chunk) Len() int {
	return c.End - c.Start
}

func (c Chunk) String() string {
	return fmt.Sprintf("cycle %d pixels [%d:%d)", c.Cycle, c.Start, c.End)
}

// Iterator yields the chunks of a layout in processing order: every pixel range of cycle 0,
// then cycle 1, and so on. It is a value object; copies iterate independently.
type Iterator struct {
	layout Layout
	pixels int
	next   Chunk
}

// NewIterator creates an iterator over pixels pixels.
func NewIterator(layout Layout, pixels int) *Iterator {
	return &Iterator{
		layout: layout,
		pixels: pixels,
		next:   Chunk{Start: 0, End: min(layout.MaxPixels, pixels), Cycle: 0},
	}
}

// Next returns the next chunk and true, or false once every cycle is exhausted.
func (it *Iterator) Next() (Chunk, bool) {
	if it.layout.MaxPixels < 1 || it.pixels < 1 || it.next.Cycle >= max(it.layout.Cycles, 1) {
		return Chunk{}, false
	}

	cur := it.next
	if cur.End < it.pixels {
		it.next = Chunk{Start: cur.End, End: min(cur.End+it.layout.MaxPixels, it.pixels), Cycle: cur.Cycle}
	} else {
		it.next = Chunk{Start: 0, End: min(it.layout.MaxPixels, it.pixels), Cycle: cur.Cycle + 1}
	}

	return cur, true
}

// All returns every remaining chunk.
func (it *Iterator) All() []Chunk {
	var out []Chunk
	for c, ok := it.Next(); ok; c, ok = it.Next() {
		out = append(out, c)
	}

	return out
}
