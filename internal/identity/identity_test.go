package identity

import (
	"strings"
	"testing"
)

func TestNextTaskIDCarriesPrefix(t *testing.T) {
	g := NewULIDGenerator("task")
	id := g.NextTaskID()
	if !strings.HasPrefix(id, "task-") {
		t.Errorf("expected task- prefix, got %s", id)
	}
}

func TestEmptyPrefixDefaults(t *testing.T) {
	g := NewULIDGenerator("")
	if !strings.HasPrefix(g.NextTaskID(), "task-") {
		t.Error("empty prefix should fall back to task-")
	}
}

func TestIDsAreUnique(t *testing.T) {
	g := NewULIDGenerator("task")
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.NextTaskID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
