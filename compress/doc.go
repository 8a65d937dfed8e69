// Package compress provides the page codecs of the loopfit table store.
//
// Every table page (a run of rows encoded as little-endian float32) is passed through one Codec
// before it is written. The codec is chosen per store with format.CompressionType:
//
//   - CompressionNone: pages are stored as-is (fastest, largest files)
//   - CompressionZstd: best ratio, the default for archived analysis results
//   - CompressionS2:   fast Snappy-compatible compression
//   - CompressionLZ4:  fast block compression with a size prefix
//
// Build with the gozstd tag (and cgo enabled) to use the cgo zstd binding instead of the pure Go
// implementation; both produce standard zstd frames and can read each other's pages.
package compress
