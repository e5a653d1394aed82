package loader

import "errors"

var (
	// ErrAdderRequired is returned when no ingestion target is provided.
	ErrAdderRequired = errors.New("document adder required")

	// ErrInvalidConfig is returned for non-positive batch sizes, report
	// intervals or retry counts.
	ErrInvalidConfig = errors.New("invalid loader config")
)
