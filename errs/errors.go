// Package errs defines the sentinel errors shared by the loopfit packages.
//
// Callers test for them with errors.Is; every layer wraps them with context
// (table path, chunk bounds, axis names) using fmt.Errorf and %w.
package errs

import "errors"

// Configuration errors. They are reported before any work is performed.
var (
	// ErrBudgetTooSmall is returned when a single pixel of a single outer cycle does not fit in the memory budget.
	ErrBudgetTooSmall = errors.New("memory budget too small for one pixel of one cycle")
	// ErrNoBiasAxis is returned when the spectroscopic labels have no bias (DC offset) axis.
	ErrNoBiasAxis = errors.New("bias axis not found in spectroscopic labels")
	// ErrAxisMismatch is returned when the spectroscopic index table disagrees with the data layout.
	ErrAxisMismatch = errors.New("spectroscopic axes do not match data layout")
	// ErrInvalidConfig is returned when an option or configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Shape errors. They abort the chunk being processed.
var (
	// ErrReshape is returned when an element count does not factor into the expected N-D shape.
	ErrReshape = errors.New("element count does not match expected shape")
)

// Fit errors.
var (
	// ErrNotConverged is returned by a solver that stopped before reaching a minimum.
	ErrNotConverged = errors.New("fit did not converge")
	// ErrGuessRequired is returned when a fit is requested before any guess exists.
	ErrGuessRequired = errors.New("must guess before fit")
	// ErrInvalidCoefficients is returned when a coefficient vector has the wrong length.
	ErrInvalidCoefficients = errors.New("invalid number of model coefficients")
)

// Storage errors.
var (
	ErrTableNotFound    = errors.New("table not found")
	ErrTableExists      = errors.New("table already exists")
	ErrOutOfBounds      = errors.New("selection out of table bounds")
	ErrLayoutMismatch   = errors.New("block layout does not match table layout")
	ErrInvalidHeader    = errors.New("invalid store header")
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	ErrLinkNotFound     = errors.New("link not found")
	ErrAttrNotFound     = errors.New("attribute not found")
)
