// Package reshape converts between the storage layout of a chunk, [pixels x spectroscopic
// columns], and the loop layout used by the fitting code, [bias steps x loops].
//
// The conversion reinterprets the flat columns as an N-D array whose axes follow the acquisition
// nesting, moves the bias axis to the front and collapses everything else. Every step is a pure
// copy, so the round trip is exact for any element type.
package reshape

import (
	"fmt"
	"slices"

	"github.com/arloliu/loopfit/errs"
)

// Tensor is a dense row-major N-D array.
type Tensor[T any] struct {
	Shape []int
	Data  []T
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}

	return n
}

// NewTensor wraps data with a shape. The product of the shape must equal len(data).
func NewTensor[T any](data []T, shape ...int) (*Tensor[T], error) {
	if numel(shape) != len(data) {
		return nil, fmt.Errorf("%w: %d elements into shape %v", errs.ErrReshape, len(data), shape)
	}

	return &Tensor[T]{Shape: slices.Clone(shape), Data: data}, nil
}

// Zeros allocates a zero-valued tensor.
func Zeros[T any](shape ...int) *Tensor[T] {
	return &Tensor[T]{Shape: slices.Clone(shape), Data: make([]T, numel(shape))}
}

// Reshape returns a view of the same data with a new shape.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	return NewTensor(t.Data, shape...)
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	step := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = step
		step *= shape[i]
	}

	return st
}

// Permute returns a copy whose axis i is axis perm[i] of t.
func (t *Tensor[T]) Permute(perm ...int) (*Tensor[T], error) {
	if len(perm) != len(t.Shape) || !isPermutation(perm) {
		return nil, fmt.Errorf("%w: permutation %v of shape %v", errs.ErrReshape, perm, t.Shape)
	}

	src := strides(t.Shape)
	shape := make([]int, len(perm))
	moved := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = t.Shape[p]
		moved[i] = src[p]
	}

	out := Zeros[T](shape...)
	idx := make([]int, len(shape))
	off := 0
	for i := range out.Data {
		out.Data[i] = t.Data[off]
		// odometer increment over the destination index
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			off += moved[d]
			if idx[d] < shape[d] {
				break
			}
			off -= moved[d] * shape[d]
			idx[d] = 0
		}
	}

	return out, nil
}

// At returns the element at the given index.
func (t *Tensor[T]) At(idx ...int) T {
	st := strides(t.Shape)
	off := 0
	for i, v := range idx {
		off += v * st[i]
	}

	return t.Data[off]
}

// Column returns column j of a 2-D tensor as a new slice.
func (t *Tensor[T]) Column(j int) []T {
	rows, cols := t.Shape[0], t.Shape[1]
	out := make([]T, rows)
	for i := range out {
		out[i] = t.Data[i*cols+j]
	}

	return out
}

// SetColumn stores v into column j of a 2-D tensor.
func (t *Tensor[T]) SetColumn(j int, v []T) {
	cols := t.Shape[1]
	for i, x := range v {
		t.Data[i*cols+j] = x
	}
}

// Row returns row i of a 2-D tensor. The slice aliases Data.
func (t *Tensor[T]) Row(i int) []T {
	cols := t.Shape[1]

	return t.Data[i*cols : (i+1)*cols]
}

func isPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}

	return true
}

// Inverse returns the permutation that undoes perm.
func Inverse(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}

	return inv
}
