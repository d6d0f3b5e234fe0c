package device

import (
	"strings"
	"testing"
)

func TestNewIDShape(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "dev_") {
		t.Fatalf("expected dev_ prefix, got %s", id)
	}
	if len(id) != len("dev_")+36 {
		t.Fatalf("expected uuid body, got %s", id)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestOrNew(t *testing.T) {
	existing := "dev_abc"
	if got := OrNew(&existing); got != existing {
		t.Fatalf("existing id must never be regenerated, got %s", got)
	}
	blank := "   "
	if got := OrNew(&blank); !strings.HasPrefix(got, "dev_") {
		t.Fatalf("blank id must mint a fresh one, got %s", got)
	}
	if got := OrNew(nil); !strings.HasPrefix(got, "dev_") {
		t.Fatalf("nil id must mint a fresh one, got %s", got)
	}
}
