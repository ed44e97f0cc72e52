package common

import (
	"sort"
	"testing"
)

func TestNewULID_MonotonicWithinProcess(t *testing.T) {
	ids := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		id, err := NewULID()
		if err != nil {
			t.Fatalf("new ulid: %v", err)
		}
		ids = append(ids, id)
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("expected ulids to sort in creation order")
	}
}

func TestNewUUID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewUUID()
		if len(id) != 36 {
			t.Fatalf("unexpected uuid %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate uuid %q", id)
		}
		seen[id] = true
	}
}
