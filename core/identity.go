package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ContentHash returns the hex-encoded BLAKE2b-256 digest of data.
// Byte-identical inputs always produce the same digest.
func ContentHash(data string) string {
	h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// NewDocumentID generates a fresh document ID.
// IDs are time-ordered UUIDs: a millisecond timestamp followed by random bits.
func NewDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
