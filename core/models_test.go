package core

import (
	"strings"
	"testing"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "simple content",
			content: "The lion is the king of the jungle",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "unicode content",
			content: "le lion est le roi de la jungle 🦁",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.content)
			h2 := ContentHash(tt.content)

			if h1 != h2 {
				t.Errorf("ContentHash() produced different digests for same content: %s vs %s", h1, h2)
			}
			if len(h1) != 64 {
				t.Errorf("ContentHash() length = %d, want 64", len(h1))
			}
			if strings.ToLower(h1) != h1 {
				t.Errorf("ContentHash() should be lowercase hex, got %s", h1)
			}
		})
	}
}

func TestContentHash_Different(t *testing.T) {
	if ContentHash("content1") == ContentHash("content2") {
		t.Errorf("ContentHash() produced same digest for different content")
	}
	// Whitespace is significant
	if ContentHash("lion") == ContentHash("lion ") {
		t.Errorf("ContentHash() ignored trailing whitespace")
	}
}

func TestNewDocumentID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewDocumentID()
		if id == "" {
			t.Fatal("NewDocumentID() returned empty id")
		}
		if seen[id] {
			t.Fatalf("NewDocumentID() returned duplicate id %s", id)
		}
		seen[id] = true
	}
}
