// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "errors"

// ErrValidation marks client-caused failures: oversized input, malformed
// requests, invalid identifiers. The HTTP layer maps it to 400.
var ErrValidation = errors.New("validation failed")

// Identifier validation errors
var (
	// ErrEmptyDatasetID indicates a missing dataset identifier.
	ErrEmptyDatasetID = errors.New("dataset id cannot be empty")

	// ErrIdentifierTooLong indicates a dataset or tenant id over MaxIdentifierLength bytes.
	ErrIdentifierTooLong = errors.New("identifier too long")

	// ErrInvalidIdentifier indicates a dataset or tenant id containing a NUL byte.
	ErrInvalidIdentifier = errors.New("identifier contains invalid characters")
)
