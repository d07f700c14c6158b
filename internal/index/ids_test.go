package index

import (
	"testing"

	"github.com/contentpipe/search-projector/internal/content"
)

func TestDocIDDeterministic(t *testing.T) {
	src := NewUUIDSource()
	key := content.Key("app-1", "item-1")
	a := src.DocID(key, StageCurrent, 0)
	b := src.DocID(key, StageCurrent, 0)
	if a != b {
		t.Errorf("same inputs must yield the same id: %s vs %s", a, b)
	}
}

func TestDocIDDistinctAcrossStagesAndRevisions(t *testing.T) {
	src := NewUUIDSource()
	key := content.Key("app-1", "item-1")
	ids := []string{
		src.DocID(key, StageCurrent, 0),
		src.DocID(key, StageDraft, 1),
		src.DocID(key, StageDraft, 2),
		src.DocID(content.Key("app-1", "item-2"), StageCurrent, 0),
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
