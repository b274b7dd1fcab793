package repository

import (
	"strings"
	"testing"
)

// TestNewID tests the entity ID shape
func TestNewID(t *testing.T) {
	id := NewID()
	if len(id) != 32 {
		t.Fatalf("expected 32-char id, got %d: %q", len(id), id)
	}
	if strings.Contains(id, "-") {
		t.Fatalf("expected dash-free id, got %q", id)
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("expected hex id, got %q", id)
		}
	}
	if id == NewID() {
		t.Fatal("expected unique ids")
	}
}
