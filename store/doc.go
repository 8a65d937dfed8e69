// Package store implements the hierarchical table store the analysis pipeline reads from and
// writes to.
//
// A Store is a tree of groups and tables addressed by slash-separated paths such as
// "/Measurement_000/Channel_000/Raw_Data-SHO_Fit_000/Fit". Every table has a compound
// format.Layout (named float32 fields per cell), a two-dimensional shape [rows x cols], attributes
// and named links to other tables (for example "Spectroscopic_Indices").
//
// Rectangular slices are read and written with ReadTable and WriteTable using row and column
// Ranges. A Store lives in memory; Save and Load persist it as a single file:
//
//	+-----------------+  32-byte header: magic, byte order, version, compression, manifest offset
//	| Header          |
//	+-----------------+
//	| Page 0          |  row pages: float32 cells in the header's byte order, compressed with the
//	| Page 1          |  store codec, one xxHash64 checksum per page
//	| ...             |
//	+-----------------+
//	| Manifest (YAML) |  groups, tables, layouts, shapes, attributes, links and page index
//	+-----------------+
package store
