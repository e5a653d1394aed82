package batch

import "errors"

var (
	// ErrSubmitFailed is returned when a chunk cannot be handed to the pool.
	ErrSubmitFailed = errors.New("failed to submit chunk")

	// ErrChunkPanicked is returned when a chunk function panics.
	ErrChunkPanicked = errors.New("chunk function panicked")
)
