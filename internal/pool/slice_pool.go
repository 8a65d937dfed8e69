// Package pool provides pooled scratch slices for per-pixel workers.
package pool

import "sync"

var float64SlicePool = sync.Pool{
	New: func() any { return &[]float64{} },
}

// GetFloat64Slice returns a float64 slice of length size and a cleanup function that returns it
// to the pool. The contents are not zeroed.
//
// Example:
//
//	residuals, release := pool.GetFloat64Slice(len(bias))
//	defer release()
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := *ptr
	if cap(slice) < size {
		slice = make([]float64, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() { float64SlicePool.Put(ptr) }
}

// GetZeroedFloat64Slice is GetFloat64Slice with the contents cleared.
func GetZeroedFloat64Slice(size int) ([]float64, func()) {
	slice, release := GetFloat64Slice(size)
	clear(slice)

	return slice, release
}
