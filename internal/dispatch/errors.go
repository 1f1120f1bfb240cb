package dispatch

import "errors"

var (
	// ErrNotFound means the record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidState means the record is not in a retryable state.
	ErrInvalidState = errors.New("record is not in error state")

	// ErrMalformedSnapshot means the record's payload snapshot cannot be
	// reconstructed into a recipient. Fatal for that retry only.
	ErrMalformedSnapshot = errors.New("malformed payload snapshot")
)
