package core

import (
	"testing"
)

func TestContentChecksum(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "same content produces same checksum", content: "test content"},
		{name: "empty content", content: ""},
		{name: "long content", content: "a much longer piece of content that should still hash consistently across calls"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c1 := ContentChecksum([]byte(tt.content))
			c2 := ContentChecksum([]byte(tt.content))

			if c1 != c2 {
				t.Errorf("ContentChecksum() produced different values for same content: %s vs %s", c1, c2)
			}
			if len(c1) != 32 {
				t.Errorf("ContentChecksum() length = %d, want 32 hex chars", len(c1))
			}
		})
	}
}

func TestContentChecksum_Different(t *testing.T) {
	c1 := ContentChecksum([]byte("content1"))
	c2 := ContentChecksum([]byte("content2"))

	if c1 == c2 {
		t.Errorf("ContentChecksum() produced same value for different content")
	}
}

func TestErrorContent(t *testing.T) {
	content := ErrorContent("unsupported type: image/png")

	if content.Kind != ContentKindError {
		t.Errorf("ErrorContent() Kind = %v, want ContentKindError", content.Kind)
	}
	if content.ErrorDetail != "unsupported type: image/png" {
		t.Errorf("ErrorContent() ErrorDetail = %q", content.ErrorDetail)
	}
	if content.Body != "" {
		t.Errorf("ErrorContent() Body should be empty, got %q", content.Body)
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{Tokens: 100, Cost: 0.001}
	u.Add(Usage{Tokens: 50, Cost: 0.0005})

	if u.Tokens != 150 {
		t.Errorf("Usage.Add() Tokens = %d, want 150", u.Tokens)
	}
	if u.Cost != 0.0015 {
		t.Errorf("Usage.Add() Cost = %v, want 0.0015", u.Cost)
	}
}
