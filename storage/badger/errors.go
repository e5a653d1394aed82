package badger

import "errors"

// ErrBackendRequired indicates a store constructed without a backend.
var ErrBackendRequired = errors.New("badger backend is required")
