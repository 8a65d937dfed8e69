package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/arloliu/loopfit/format"
)

// lz4SizePrefix is the number of bytes used to store the uncompressed page length in front of
// each LZ4 block, so decompression allocates exactly once.
const lz4SizePrefix = 4

// maxLZ4PageSize bounds the decoded size accepted from a size prefix.
const maxLZ4PageSize = 1 << 30

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Compressor compresses pages as raw LZ4 blocks prefixed with the uncompressed length
// (uint32, little-endian).
type LZ4Compressor struct{}

var _ Codec = (*LZ4Compressor)(nil)

func NewLZ4Compressor() LZ4Compressor {
	return LZ4Compressor{}
}

func (c LZ4Compressor) Type() format.CompressionType {
	return format.CompressionLZ4
}

// Compress compresses data into a size-prefixed LZ4 block.
func (c LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) > maxLZ4PageSize {
		return nil, fmt.Errorf("lz4 page of %d bytes exceeds limit %d", len(data), maxLZ4PageSize)
	}

	dst := make([]byte, lz4SizePrefix+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst, uint32(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst[lz4SizePrefix:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("lz4: block compressor produced no output")
	}

	return dst[:lz4SizePrefix+n], nil
}

// Decompress restores a size-prefixed LZ4 block.
func (c LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < lz4SizePrefix {
		return nil, fmt.Errorf("lz4 page too short: %d bytes", len(data))
	}

	size := binary.LittleEndian.Uint32(data)
	if size > maxLZ4PageSize {
		return nil, fmt.Errorf("lz4 page declares %d bytes, limit is %d", size, maxLZ4PageSize)
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[lz4SizePrefix:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompression failed: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 page decoded to %d bytes, expected %d", n, size)
	}

	return out, nil
}
