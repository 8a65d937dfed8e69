package compress

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/loopfit/endian"
	"github.com/arloliu/loopfit/format"
)

func samplePage(n int) []byte {
	rng := rand.New(rand.NewPCG(1, 2))
	values := make([]float32, n)
	for i := range values {
		// a smooth loop-like signal with a little noise compresses well but not trivially
		values[i] = float32(i%64) + float32(rng.NormFloat64()*0.01)
	}

	return endian.AppendFloat32s(endian.GetLittleEndianEngine(), nil, values)
}

func TestCreateCodec(t *testing.T) {
	types := []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}

	for _, ct := range types {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := CreateCodec(ct, "page")
			require.NoError(t, err)
			require.Equal(t, ct, codec.Type())
		})
	}

	_, err := CreateCodec(format.CompressionType(0xFF), "page")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid page compression")
}

func TestCodecRoundTrip(t *testing.T) {
	codecs := []Codec{
		NewNoOpCompressor(),
		NewZstdCompressor(),
		NewS2Compressor(),
		NewLZ4Compressor(),
	}
	pages := map[string][]byte{
		"small":    samplePage(3),
		"page":     samplePage(4096),
		"repeated": bytes.Repeat([]byte{0x42}, 10000),
	}

	for _, codec := range codecs {
		for name, page := range pages {
			t.Run(codec.Type().String()+"/"+name, func(t *testing.T) {
				compressed, err := codec.Compress(page)
				require.NoError(t, err)

				restored, err := codec.Decompress(compressed)
				require.NoError(t, err)
				require.Equal(t, page, restored)
			})
		}
	}
}

func TestCodecEmptyInput(t *testing.T) {
	for _, codec := range []Codec{NewZstdCompressor(), NewS2Compressor(), NewLZ4Compressor()} {
		out, err := codec.Compress(nil)
		require.NoError(t, err)
		require.Empty(t, out)

		out, err = codec.Decompress(nil)
		require.NoError(t, err)
		require.Empty(t, out)
	}
}

func TestCompressionShrinksRepetitivePages(t *testing.T) {
	page := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)
	for _, codec := range []Codec{NewZstdCompressor(), NewS2Compressor(), NewLZ4Compressor()} {
		compressed, err := codec.Compress(page)
		require.NoError(t, err)
		require.Less(t, Ratio(len(page), len(compressed)), 0.1, codec.Type().String())
	}
}

func TestNoOpReturnsCopy(t *testing.T) {
	page := []byte{1, 2, 3}
	out, err := NewNoOpCompressor().Compress(page)
	require.NoError(t, err)
	out[0] = 9
	require.Equal(t, byte(1), page[0])
}

func TestLZ4CorruptPage(t *testing.T) {
	codec := NewLZ4Compressor()
	_, err := codec.Decompress([]byte{1, 2})
	require.Error(t, err)

	compressed, err := codec.Compress(samplePage(256))
	require.NoError(t, err)
	compressed[0] ^= 0xFF // corrupt declared size
	_, err = codec.Decompress(compressed)
	require.Error(t, err)
}

func TestRatio(t *testing.T) {
	require.Zero(t, Ratio(0, 10))
	require.InDelta(t, 0.25, Ratio(100, 25), 1e-12)
}
