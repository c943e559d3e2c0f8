package optimization

import "errors"

var (
	// ErrInsufficientData is returned when fewer than two aligned return rows
	// survive the removal of non-finite observations.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedInput is returned for inputs rejected before any
	// optimization is attempted: wrong asset count, mismatched series
	// lengths, non-positive or infinite prices, alpha outside [0, 1].
	ErrMalformedInput = errors.New("malformed input")
)
