package store

import (
	"fmt"

	"github.com/arloliu/loopfit/endian"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
)

const (
	// HeaderSize is the fixed size of the file header in bytes.
	HeaderSize = 32

	// Bit masks of Header.Options
	EndiannessMask  = 0x0002 // 0=little, 1=big
	MagicNumberMask = 0xFFF0 // bits 4-15

	MagicStoreV1Opt = 0xEC10 // MagicStoreV1Opt identifies version 1 table store files.

	// Version is the manifest version written by this package.
	Version = 1
)

// Header is the fixed-size section at the start of a store file.
type Header struct {
	// Options packs the magic number (bits 4-15) and the endianness flag (bit 1). It is always
	// stored little-endian so the byte order of the rest of the file can be read from it.
	Options uint16 // byte offset 0-1
	// Version is the manifest version.
	Version uint8 // byte offset 2
	// Compression is the codec used for every page.
	Compression uint8 // byte offset 3
	// TableCount is the number of tables in the manifest.
	TableCount uint32 // byte offset 4-7
	// ManifestOffset is the byte offset of the YAML manifest, after the last page.
	ManifestOffset uint64 // byte offset 8-15
	// ManifestLength is the manifest size in bytes.
	ManifestLength uint64 // byte offset 16-23
	// ManifestChecksum is the xxHash64 digest of the manifest.
	ManifestChecksum uint64 // byte offset 24-31
}

// NewHeader creates a little-endian header for the given compression.
func NewHeader(compression format.CompressionType) Header {
	return Header{
		Options:     MagicStoreV1Opt,
		Version:     Version,
		Compression: uint8(compression),
	}
}

// IsBigEndian reports whether pages and offsets are big-endian.
func (h Header) IsBigEndian() bool {
	return h.Options&EndiannessMask != 0
}

// SetBigEndian switches the byte order of the file.
func (h *Header) SetBigEndian(big bool) {
	if big {
		h.Options |= EndiannessMask
	} else {
		h.Options &^= EndiannessMask
	}
}

// Engine returns the byte-order engine selected by the endianness flag.
func (h Header) Engine() endian.EndianEngine {
	if h.IsBigEndian() {
		return endian.GetBigEndianEngine()
	}

	return endian.GetLittleEndianEngine()
}

// CompressionType returns the page codec type.
func (h Header) CompressionType() format.CompressionType {
	return format.CompressionType(h.Compression)
}

// Bytes serializes the header.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	engine := h.Engine()

	b[0] = byte(h.Options)
	b[1] = byte(h.Options >> 8)
	b[2] = h.Version
	b[3] = h.Compression
	engine.PutUint32(b[4:8], h.TableCount)
	engine.PutUint64(b[8:16], h.ManifestOffset)
	engine.PutUint64(b[16:24], h.ManifestLength)
	engine.PutUint64(b[24:32], h.ManifestChecksum)

	return b
}

// ParseHeader parses a header from the first HeaderSize bytes of data.
//
// Returns:
//   - Header: parsed header
//   - error: errs.ErrInvalidHeader wrapped with the reason
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, need %d", errs.ErrInvalidHeader, len(data), HeaderSize)
	}

	h := Header{Options: uint16(data[0]) | uint16(data[1])<<8}
	if h.Options&MagicNumberMask != MagicStoreV1Opt {
		return Header{}, fmt.Errorf("%w: bad magic 0x%04x", errs.ErrInvalidHeader, h.Options&MagicNumberMask)
	}

	engine := h.Engine()
	h.Version = data[2]
	h.Compression = data[3]
	h.TableCount = engine.Uint32(data[4:8])
	h.ManifestOffset = engine.Uint64(data[8:16])
	h.ManifestLength = engine.Uint64(data[16:24])
	h.ManifestChecksum = engine.Uint64(data[24:32])

	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", errs.ErrInvalidHeader, h.Version)
	}
	switch h.CompressionType() {
	case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
	default:
		return Header{}, fmt.Errorf("%w: unknown compression %d", errs.ErrInvalidHeader, h.Compression)
	}

	return h, nil
}
