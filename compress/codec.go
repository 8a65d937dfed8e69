package compress

import (
	"fmt"

	"github.com/arloliu/loopfit/format"
)

// Compressor compresses one page payload. The returned slice is owned by the caller and the
// input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a page payload produced by the matching Compressor.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions and reports its compression type.
//
// Implementations are safe for concurrent use.
type Codec interface {
	Compressor
	Decompressor
	Type() format.CompressionType
}

// CreateCodec returns the codec for the given compression type.
//
// Parameters:
//   - compressionType: one of the format.Compression* constants
//   - target: description of what the codec is used for, only used in error messages
//
// Returns:
//   - Codec: codec instance
//   - error: invalid compression type error
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

// Ratio returns compressed/original size, or 0 for an empty original.
func Ratio(original, compressed int) float64 {
	if original == 0 {
		return 0
	}

	return float64(compressed) / float64(original)
}
