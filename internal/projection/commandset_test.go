package projection

import (
	"reflect"
	"testing"

	"github.com/contentpipe/search-projector/internal/index"
)

func TestPutFoldsVisibilityIntoPendingUpsert(t *testing.T) {
	s := NewCommandSet()
	s.Put(index.Upsert{Doc: "d1", Text: "body", ServeAll: true, ServePublished: false, IsNew: true})
	s.Put(index.SetVisibility{Doc: "d1", ServeAll: false, ServePublished: true})

	if s.Len() != 1 {
		t.Fatalf("expected 1 surviving command, got %d", s.Len())
	}
	if s.Merged() != 1 {
		t.Errorf("expected 1 merge, got %d", s.Merged())
	}
	upsert := s.Ordered()[0].(index.Upsert)
	if upsert.ServeAll || !upsert.ServePublished {
		t.Errorf("flags not folded into upsert: %+v", upsert)
	}
	if upsert.Text != "body" || !upsert.IsNew {
		t.Errorf("fold must not touch content: %+v", upsert)
	}
}

func TestPutLatestCommandWins(t *testing.T) {
	s := NewCommandSet()
	s.Put(index.Upsert{Doc: "d1", Text: "old"})
	s.Put(index.Upsert{Doc: "d1", Text: "new"})
	s.Put(index.SetVisibility{Doc: "d2", ServeAll: true})
	s.Put(index.Remove{Doc: "d2"})

	got := s.Ordered()
	want := []index.Command{
		index.Upsert{Doc: "d1", Text: "new"},
		index.Remove{Doc: "d2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestVisibilityAfterRemoveStandsAlone(t *testing.T) {
	s := NewCommandSet()
	s.Put(index.Upsert{Doc: "d1"})
	s.Put(index.Remove{Doc: "d1"})
	s.Put(index.SetVisibility{Doc: "d1", ServeAll: true})

	got := s.Ordered()
	if len(got) != 1 {
		t.Fatalf("expected 1 command, got %d", len(got))
	}
	if _, ok := got[0].(index.SetVisibility); !ok {
		t.Errorf("visibility after remove must replace, got %T", got[0])
	}
}

func TestOrderedPreservesFirstInsertionOrder(t *testing.T) {
	s := NewCommandSet()
	s.Put(index.Upsert{Doc: "b"})
	s.Put(index.Upsert{Doc: "a"})
	s.Put(index.Upsert{Doc: "c"})
	s.Put(index.Upsert{Doc: "a", Text: "replaced"})

	var order []string
	for _, cmd := range s.Ordered() {
		order = append(order, cmd.DocID())
	}
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order mismatch: got %v want %v", order, want)
	}
}
