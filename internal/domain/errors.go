package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrDecode marks image bytes that cannot be parsed. Not retryable.
	ErrDecode = errors.New("image decode failed")

	// ErrProviderUnavailable marks a provider that was not available at startup.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrTransientProvider marks a provider call that failed in flight.
	ErrTransientProvider = errors.New("provider call failed")

	// ErrIndexUnavailable marks a vector index that was never initialized.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrEmbedding marks any failure to produce an embedding vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch marks a vector whose length differs from the index schema.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidRequest marks caller input that fails validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrap annotates err with msg, keeping it matchable with errors.Is.
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
