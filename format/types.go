// Package format defines the identifiers shared between the analysis pipeline and the table store:
// page compression types, compound field layouts and the names of the tables the pipeline produces.
package format

import "slices"

type CompressionType uint8

const (
	CompressionNone CompressionType = 0x1 // CompressionNone stores pages as-is.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 block compression.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompression maps a case-sensitive lower-case name ("none", "zstd", "s2", "lz4") to a CompressionType.
func ParseCompression(name string) (CompressionType, bool) {
	switch name {
	case "none", "":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "s2":
		return CompressionS2, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}

// Layout describes a compound record: an ordered list of float32 fields stored per table cell.
//
// A scalar table uses a Layout with a single field.
type Layout struct {
	Name   string
	Fields []string
}

// Width returns the number of fields per cell.
func (l Layout) Width() int {
	return len(l.Fields)
}

// Index returns the position of the named field, or -1.
func (l Layout) Index(field string) int {
	return slices.Index(l.Fields, field)
}

// Equal reports whether two layouts have the same fields in the same order.
func (l Layout) Equal(other Layout) bool {
	return slices.Equal(l.Fields, other.Fields)
}

// Scalar returns a single-field layout.
func Scalar(name string) Layout {
	return Layout{Name: name, Fields: []string{name}}
}
