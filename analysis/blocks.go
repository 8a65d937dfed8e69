package analysis

import (
	"fmt"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/reshape"
	"github.com/arloliu/loopfit/store"
)

// fieldTensor extracts one field of a block as a [rows x cols] tensor.
func fieldTensor(b *store.Block, field string) (*reshape.Tensor[float64], error) {
	f := b.Layout.Index(field)
	if f < 0 {
		return nil, fmt.Errorf("%w: field %q not in layout %s", errs.ErrLayoutMismatch, field, b.Layout.Name)
	}

	w := b.Layout.Width()
	data := make([]float64, b.Rows*b.Cols)
	for i := range data {
		data[i] = float64(b.Data[i*w+f])
	}

	return reshape.NewTensor(data, b.Rows, b.Cols)
}

// scalarBlock converts a [rows x cols] tensor into a single-field block.
func scalarBlock(layout format.Layout, t *reshape.Tensor[float64]) *store.Block {
	b := store.NewBlock(layout, t.Shape[0], t.Shape[1])
	for i, v := range t.Data {
		b.Data[i] = float32(v)
	}

	return b
}

// recordBlock converts a [rows x cols] tensor of records into a compound block.
func recordBlock[T any](layout format.Layout, t *reshape.Tensor[T], record func(T) []float64) *store.Block {
	b := store.NewBlock(layout, t.Shape[0], t.Shape[1])
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			b.SetRecord(r, c, record(t.At(r, c)))
		}
	}

	return b
}

// fitRecords parses a LoopFitLayout block into a [rows x cols] tensor of records.
func fitRecords(b *store.Block) (*reshape.Tensor[model.Record], error) {
	if !b.Layout.Equal(format.LoopFitLayout) {
		return nil, fmt.Errorf("%w: %q is not %q", errs.ErrLayoutMismatch, b.Layout.Name, format.LoopFitLayout.Name)
	}

	out := make([]model.Record, 0, b.Rows*b.Cols)
	for r := 0; r < b.Rows; r++ {
		for _, cell := range b.Records(r) {
			rec, err := model.RecordFrom(cell)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}

	return reshape.NewTensor(out, b.Rows, b.Cols)
}

func recordValues(r model.Record) []float64 {
	return r.Values()
}

func switchingValues(s model.Switching) []float64 {
	return s.Record()
}
