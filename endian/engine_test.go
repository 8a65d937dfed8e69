package endian

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat32RoundTrip(t *testing.T) {
	values := []float32{0, -1.5, 3.25, math.MaxFloat32, float32(math.Inf(-1)), math.SmallestNonzeroFloat32}

	for _, engine := range []EndianEngine{GetLittleEndianEngine(), GetBigEndianEngine()} {
		buf := AppendFloat32s(engine, nil, values)
		require.Len(t, buf, 4*len(values))

		out := make([]float32, len(values))
		require.NoError(t, DecodeFloat32s(engine, out, buf))
		require.Equal(t, values, out)
	}
}

func TestDecodeFloat32sErrors(t *testing.T) {
	engine := GetLittleEndianEngine()
	require.Error(t, DecodeFloat32s(engine, make([]float32, 4), []byte{1, 2, 3}))
	require.Error(t, DecodeFloat32s(engine, make([]float32, 1), make([]byte, 8)))
}

func TestAppendFloat32sKeepsPrefix(t *testing.T) {
	engine := GetLittleEndianEngine()
	buf := AppendFloat32s(engine, []byte{0xAA}, []float32{1})
	require.Equal(t, byte(0xAA), buf[0])
	require.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, buf[1:])
}
