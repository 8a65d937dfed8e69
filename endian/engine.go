// Package endian provides the byte-order engine used by the table store to encode float32 pages
// and fixed-size headers.
//
// The store always writes little-endian files; the big-endian engine exists so that files written
// on other hosts with the big-endian flag set can still be decoded.
package endian

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EndianEngine combines binary.ByteOrder and binary.AppendByteOrder. Both binary.LittleEndian and
// binary.BigEndian satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// AppendFloat32s appends the IEEE 754 encoding of values to dst.
func AppendFloat32s(engine EndianEngine, dst []byte, values []float32) []byte {
	dst = growBytes(dst, 4*len(values))
	for _, v := range values {
		dst = engine.AppendUint32(dst, math.Float32bits(v))
	}

	return dst
}

// DecodeFloat32s decodes len(data)/4 float32 values into dst, which must be large enough.
func DecodeFloat32s(engine EndianEngine, dst []float32, data []byte) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("float32 payload length %d is not a multiple of 4", len(data))
	}
	n := len(data) / 4
	if len(dst) < n {
		return fmt.Errorf("destination holds %d values, payload has %d", len(dst), n)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(engine.Uint32(data[4*i:]))
	}

	return nil
}

func growBytes(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b
	}
	grown := make([]byte, len(b), len(b)+n)
	copy(grown, b)

	return grown
}
