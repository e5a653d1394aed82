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

import (
	"fmt"
	"strings"
)

// MaxIdentifierLength bounds dataset and tenant identifiers in bytes.
const MaxIdentifierLength = 256

// ValidateDatasetID validates a dataset identifier.
//
// Validation rules:
//   - must not be empty
//   - must not exceed MaxIdentifierLength bytes
//   - must not contain NUL bytes (stores use NUL as a key separator)
func ValidateDatasetID(datasetID string) error {
	if datasetID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyDatasetID)
	}
	return validateIdentifier(datasetID)
}

// ValidateTenantID validates a tenant identifier. Empty is valid and
// means the global scope.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return nil
	}
	return validateIdentifier(tenantID)
}

func validateIdentifier(id string) error {
	if len(id) > MaxIdentifierLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrIdentifierTooLong)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidIdentifier)
	}
	return nil
}
