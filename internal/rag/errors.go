package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

var (
	// ErrTransient marks failures of an external service that may succeed
	// on retry: network errors, rate limits, 5xx answers and timeouts.
	ErrTransient = errors.New("transient failure")
	// ErrConfiguration marks unusable settings such as a missing credential
	// or an index whose dimension disagrees with the embedder.
	ErrConfiguration = errors.New("configuration error")
	// ErrMalformedInput marks empty or undecodable input.
	ErrMalformedInput = errors.New("malformed input")
	// ErrGeneration marks a failed call to the generation model. It is
	// distinct from retrieving no context, which is not an error.
	ErrGeneration = errors.New("generation failed")
)

// classify adds ErrTransient or ErrConfiguration to err's chain when a
// lower layer reported a condition of that kind.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTransient), errors.Is(err, ErrConfiguration):
		return err
	case llm.IsTransient(err),
		errors.Is(err, vectorstore.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	case errors.Is(err, vectorstore.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return err
}
