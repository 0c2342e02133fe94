package memory

import "errors"

var (
	// ErrCapacityExceeded is returned when a buffer, view or accessor cannot
	// satisfy a byte request from its remaining space.
	ErrCapacityExceeded = errors.New("memory: capacity exceeded")
	// ErrInvalidRange signals an explicit byte range that falls outside its
	// parent region.
	ErrInvalidRange = errors.New("memory: byte range out of bounds")
	// ErrNotContiguous is returned when a contiguous view is requested over
	// interleaved (AoS) data.
	ErrNotContiguous = errors.New("memory: accessor data is not contiguous")
	// ErrElementType signals a typed view requested over the wrong element type.
	ErrElementType = errors.New("memory: element type mismatch")
	// ErrInvalidConfig is returned for non power-of-two arena edges.
	ErrInvalidConfig = errors.New("memory: invalid configuration")
)
