package vectorindex

import "errors"

var (
	// ErrDimensionMismatch is returned when an input vector's length does not
	// match the index dimension. Always the caller's fault, never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCorruptIndex is returned when a snapshot pair cannot be loaded or the
	// companion metadata disagrees with the vector blob. The caller must fall
	// back to an empty index rather than run with mixed-dimension state.
	ErrCorruptIndex = errors.New("corrupt index snapshot")
)
