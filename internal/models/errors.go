package models

import "errors"

var (
	// ErrInputShape is returned for volumes that are not 3-D or voxel sizes
	// that are not three positive numbers.
	ErrInputShape = errors.New("invalid input shape")

	// ErrDegenerateDistance is returned when the distance threshold is not a
	// positive finite number.
	ErrDegenerateDistance = errors.New("max distance must be positive")

	// ErrUnknownCell is returned when a cell has no entry in a box mapping.
	ErrUnknownCell = errors.New("unknown cell")
)
