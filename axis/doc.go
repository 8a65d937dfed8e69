// Package axis interprets the spectroscopic index table of a band-excitation dataset.
//
// The index table has one row per named axis (DC_Offset, Field, FORC, ...) and one column per
// spectroscopic step. A Model locates the bias axis, the optional outer-cycle (FORC) and repeat
// (FORC_repeat) axes, computes every axis cardinality and sorts the axes by how often their index
// changes between consecutive columns, which recovers the nesting order in which the data was
// acquired.
package axis
