package domain

import (
	"errors"
	"fmt"
)

var (
	ErrContentNotFound    = errors.New("content not found")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")

	// ErrStageNotReady marks a pipeline task that observed an unmet
	// precondition. The dispatcher re-enqueues it with a fixed delay
	// instead of failing.
	ErrStageNotReady = errors.New("stage precondition not met")

	// ErrExternalService marks a failed model or embedding call. The
	// pipeline degrades to the heuristic result and continues.
	ErrExternalService = errors.New("external service failure")

	// ErrMalformedResponse marks a model reply that could not be parsed
	// or named an out-of-taxonomy label.
	ErrMalformedResponse = errors.New("malformed model response")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
