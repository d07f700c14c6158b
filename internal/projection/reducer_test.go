package projection

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/internal/index"
)

// seqIDs derives document ids from their inputs so tests can predict them
// and replays regenerate identical ids.
type seqIDs struct{}

func (seqIDs) DocID(key content.ItemKey, stage index.Stage, revision uint64) string {
	return fmt.Sprintf("%s/%s/%d", key, stage, revision)
}

const (
	testApp    = content.AppID("app-1")
	testStream = "content-item-1"
)

func event(kind content.EventKind, id content.ContentID, text string) content.Event {
	e := content.Event{
		Stream:    testStream,
		Kind:      kind,
		AppID:     testApp,
		ContentID: id,
		SchemaID:  "article",
	}
	if text != "" {
		e.Payload = &content.Payload{Text: text}
	}
	return e
}

func existingRecord(id content.ContentID) *Record {
	key := content.Key(testApp, id)
	return &Record{
		Key:        key,
		AppID:      testApp,
		ContentID:  id,
		DocCurrent: "doc-A",
	}
}

func records(recs ...*Record) map[content.ItemKey]*Record {
	m := make(map[content.ItemKey]*Record, len(recs))
	for _, rec := range recs {
		m[rec.Key] = rec
	}
	return m
}

func TestCreateEmitsNewUpsert(t *testing.T) {
	result := Reduce(nil, []content.Event{
		event(content.KindCreated, "item-1", "hello world"),
	}, seqIDs{})

	commands := result.Commands.Ordered()
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	upsert, ok := commands[0].(index.Upsert)
	if !ok {
		t.Fatalf("expected Upsert, got %T", commands[0])
	}
	if !upsert.IsNew || !upsert.ServeAll || upsert.ServePublished {
		t.Errorf("unexpected flags: %+v", upsert)
	}
	if upsert.Text != "hello world" {
		t.Errorf("expected payload text, got %q", upsert.Text)
	}

	rec := result.Dirty[content.Key(testApp, "item-1")]
	if rec == nil {
		t.Fatal("expected a dirty record")
	}
	if rec.DocCurrent != upsert.Doc {
		t.Errorf("record DocCurrent %q does not match upsert doc %q", rec.DocCurrent, upsert.Doc)
	}
	if rec.DocDraft != "" || rec.DocPublished != "" || rec.Deleted {
		t.Errorf("fresh record has unexpected state: %+v", rec)
	}
}

func TestCreateThenUpdateCoalescesToOneUpsert(t *testing.T) {
	result := Reduce(nil, []content.Event{
		event(content.KindCreated, "item-1", "first"),
		event(content.KindUpdated, "item-1", "second"),
	}, seqIDs{})

	commands := result.Commands.Ordered()
	if len(commands) != 1 {
		t.Fatalf("expected exactly 1 command, got %d", len(commands))
	}
	upsert := commands[0].(index.Upsert)
	if upsert.Text != "second" {
		t.Errorf("expected the later update's content, got %q", upsert.Text)
	}
	if !upsert.IsNew {
		t.Error("the surviving upsert should still create the document")
	}
}

func TestOneCommandPerDocument(t *testing.T) {
	loaded := records(existingRecord("item-1"))
	result := Reduce(loaded, []content.Event{
		event(content.KindUpdated, "item-1", "v1"),
		event(content.KindUpdated, "item-1", "v2"),
		event(content.KindPublished, "item-1", ""),
		event(content.KindUnpublished, "item-1", ""),
	}, seqIDs{})

	seen := make(map[string]int)
	for _, cmd := range result.Commands.Ordered() {
		seen[cmd.DocID()]++
	}
	for docID, n := range seen {
		if n != 1 {
			t.Errorf("document %s has %d final commands, want 1", docID, n)
		}
	}
}

func TestPublishAfterDraftPromotesDraft(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocDraft = "doc-B"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindPublished, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.SetVisibility{Doc: "doc-B", AppID: string(testApp), ServeAll: true, ServePublished: true},
		index.Remove{Doc: "doc-A", AppID: string(testApp)},
	}
	got := result.Commands.Ordered()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}

	updated := result.Dirty[rec.Key]
	if updated.DocCurrent != "doc-B" || updated.DocPublished != "doc-B" || updated.DocDraft != "" {
		t.Errorf("unexpected record after publish: %+v", updated)
	}
}

func TestPublishWithoutDraftFlagsCurrent(t *testing.T) {
	loaded := records(existingRecord("item-1"))

	result := Reduce(loaded, []content.Event{
		event(content.KindPublished, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.SetVisibility{Doc: "doc-A", AppID: string(testApp), ServeAll: true, ServePublished: true},
	}
	if got := result.Commands.Ordered(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
	updated := result.Dirty[content.Key(testApp, "item-1")]
	if updated.DocPublished != "doc-A" {
		t.Errorf("expected DocPublished doc-A, got %q", updated.DocPublished)
	}
}

func TestUnpublishClearsPublishedDoc(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocPublished = "doc-A"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindUnpublished, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.SetVisibility{Doc: "doc-A", AppID: string(testApp), ServeAll: true, ServePublished: false},
	}
	if got := result.Commands.Ordered(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
	if result.Dirty[rec.Key].DocPublished != "" {
		t.Error("expected DocPublished cleared")
	}
}

func TestUnpublishWithoutPublishedDocIsNoop(t *testing.T) {
	loaded := records(existingRecord("item-1"))
	result := Reduce(loaded, []content.Event{
		event(content.KindUnpublished, "item-1", ""),
	}, seqIDs{})
	if result.Commands.Len() != 0 || len(result.Dirty) != 0 {
		t.Errorf("expected no effect, got %d commands, %d dirty", result.Commands.Len(), len(result.Dirty))
	}
}

func TestUpdateWithDraftRoutesContentToDraft(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocDraft = "doc-B"
	rec.DocPublished = "doc-A"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindUpdated, "item-1", "draft text"),
	}, seqIDs{})

	commands := result.Commands.Ordered()
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	upsert := commands[0].(index.Upsert)
	if upsert.Doc != "doc-B" || upsert.Text != "draft text" || !upsert.ServeAll || upsert.ServePublished {
		t.Errorf("unexpected draft upsert: %+v", upsert)
	}
	vis := commands[1].(index.SetVisibility)
	if vis.Doc != "doc-A" || vis.ServeAll || !vis.ServePublished {
		t.Errorf("current doc should serve the published view only: %+v", vis)
	}
	if len(result.Dirty) != 0 {
		t.Error("update should not mutate the record")
	}
}

func TestUpdateWithoutDraftKeepsPublishedFlag(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocPublished = "doc-A"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindUpdated, "item-1", "new text"),
	}, seqIDs{})

	upsert := result.Commands.Ordered()[0].(index.Upsert)
	if !upsert.ServeAll || !upsert.ServePublished {
		t.Errorf("published current doc should keep both flags: %+v", upsert)
	}
}

func TestDraftDeleteRestoresCurrent(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocDraft = "doc-B"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindDraftDeleted, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.SetVisibility{Doc: "doc-A", AppID: string(testApp), ServeAll: true, ServePublished: true},
		index.Remove{Doc: "doc-B", AppID: string(testApp)},
	}
	if got := result.Commands.Ordered(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
	if result.Dirty[rec.Key].DocDraft != "" {
		t.Error("expected draft cleared")
	}
}

func TestDeleteWithoutDraftRemovesSentinel(t *testing.T) {
	loaded := records(existingRecord("item-1"))

	result := Reduce(loaded, []content.Event{
		event(content.KindDeleted, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.Remove{Doc: "doc-A", AppID: string(testApp)},
		index.Remove{Doc: index.NotFoundDoc, AppID: string(testApp)},
	}
	if got := result.Commands.Ordered(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !result.Dirty[content.Key(testApp, "item-1")].Deleted {
		t.Error("expected tombstone")
	}
}

func TestDeleteWithDraftRemovesBothDocuments(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocDraft = "doc-B"
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindDeleted, "item-1", ""),
	}, seqIDs{})

	want := []index.Command{
		index.Remove{Doc: "doc-A", AppID: string(testApp)},
		index.Remove{Doc: "doc-B", AppID: string(testApp)},
	}
	if got := result.Commands.Ordered(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestTombstoneIgnoresFurtherEvents(t *testing.T) {
	rec := existingRecord("item-1")
	rec.Deleted = true
	loaded := records(rec)

	result := Reduce(loaded, []content.Event{
		event(content.KindUpdated, "item-1", "text"),
		event(content.KindPublished, "item-1", ""),
		event(content.KindDeleted, "item-1", ""),
	}, seqIDs{})

	if result.Commands.Len() != 0 || len(result.Dirty) != 0 {
		t.Errorf("tombstone must be inert, got %d commands, %d dirty", result.Commands.Len(), len(result.Dirty))
	}
}

func TestMissingRecordSkipsEverythingButCreate(t *testing.T) {
	kinds := []content.EventKind{
		content.KindUpdated,
		content.KindPublished,
		content.KindUnpublished,
		content.KindDraftCreated,
		content.KindDraftDeleted,
		content.KindDeleted,
	}
	for _, kind := range kinds {
		result := Reduce(nil, []content.Event{
			event(kind, "item-1", "text"),
		}, seqIDs{})
		if result.Commands.Len() != 0 || len(result.Dirty) != 0 {
			t.Errorf("%s without a record should be a no-op", kind)
		}
	}
}

func TestReplayedCreateIsNoop(t *testing.T) {
	loaded := records(existingRecord("item-1"))
	result := Reduce(loaded, []content.Event{
		event(content.KindCreated, "item-1", "again"),
	}, seqIDs{})
	if result.Commands.Len() != 0 || len(result.Dirty) != 0 {
		t.Error("replaying a create for an existing record must change nothing")
	}
}

func TestDraftCreateWithMigratedPayload(t *testing.T) {
	loaded := records(existingRecord("item-1"))
	result := Reduce(loaded, []content.Event{
		event(content.KindDraftCreated, "item-1", "migrated"),
	}, seqIDs{})

	rec := result.Dirty[content.Key(testApp, "item-1")]
	if rec == nil || !rec.HasDraft() {
		t.Fatal("expected a draft document on the record")
	}
	commands := result.Commands.Ordered()
	if len(commands) != 2 {
		t.Fatalf("expected draft upsert plus current visibility change, got %d", len(commands))
	}
	upsert := commands[0].(index.Upsert)
	if upsert.Doc != rec.DocDraft || upsert.Text != "migrated" {
		t.Errorf("migrated data should land on the new draft: %+v", upsert)
	}
}

func TestUnrelatedIdentityIsolation(t *testing.T) {
	recY := existingRecord("item-Y")
	loaded := records(recY)
	before := *recY

	result := Reduce(loaded, []content.Event{
		event(content.KindCreated, "item-X", "text"),
		event(content.KindUpdated, "item-X", "more"),
		event(content.KindDeleted, "item-X", ""),
	}, seqIDs{})

	if _, dirty := result.Dirty[recY.Key]; dirty {
		t.Error("events for item-X must not dirty item-Y")
	}
	for _, cmd := range result.Commands.Ordered() {
		if cmd.DocID() == recY.DocCurrent {
			t.Errorf("command emitted against unrelated document %s", cmd.DocID())
		}
	}
	if !reflect.DeepEqual(*recY, before) {
		t.Error("loaded snapshot was mutated")
	}
}

func TestLoadedSnapshotNeverMutated(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocDraft = "doc-B"
	loaded := records(rec)
	before := *rec

	Reduce(loaded, []content.Event{
		event(content.KindPublished, "item-1", ""),
		event(content.KindDeleted, "item-1", ""),
	}, seqIDs{})

	if !reflect.DeepEqual(*rec, before) {
		t.Errorf("loaded record mutated: %+v", rec)
	}
}

func TestReplayIdempotence(t *testing.T) {
	rec := existingRecord("item-1")
	rec.DocPublished = "doc-A"
	loaded := records(rec)
	batch := []content.Event{
		event(content.KindDraftCreated, "item-1", ""),
		event(content.KindUpdated, "item-1", "draft body"),
		event(content.KindPublished, "item-1", ""),
		event(content.KindCreated, "item-2", "fresh"),
	}

	first := Reduce(loaded, batch, seqIDs{})
	second := Reduce(loaded, batch, seqIDs{})

	if !reflect.DeepEqual(first.Commands.Ordered(), second.Commands.Ordered()) {
		t.Error("replay produced a different command set")
	}
	if !reflect.DeepEqual(first.Dirty, second.Dirty) {
		t.Error("replay produced different records")
	}
}

func TestEndToEndLifecycleBatch(t *testing.T) {
	batch := []content.Event{
		event(content.KindCreated, "item-1", "a"),
		event(content.KindDraftCreated, "item-1", ""),
		event(content.KindUpdated, "item-1", "b"),
		event(content.KindPublished, "item-1", ""),
	}
	result := Reduce(nil, batch, seqIDs{})

	key := content.Key(testApp, "item-1")
	currentDoc := seqIDs{}.DocID(key, index.StageCurrent, 0)
	draftDoc := seqIDs{}.DocID(key, index.StageDraft, 1)

	rec := result.Dirty[key]
	if rec == nil {
		t.Fatal("expected a dirty record")
	}
	if rec.DocCurrent != draftDoc || rec.DocPublished != draftDoc || rec.DocDraft != "" {
		t.Errorf("expected promoted draft as current and published: %+v", rec)
	}

	byDoc := make(map[string]index.Command)
	for _, cmd := range result.Commands.Ordered() {
		if _, dup := byDoc[cmd.DocID()]; dup {
			t.Errorf("document %s has more than one final command", cmd.DocID())
		}
		byDoc[cmd.DocID()] = cmd
	}

	// The original create got superseded: the old current doc ends the
	// batch removed, the draft doc carries the final content and flags.
	if _, ok := byDoc[currentDoc].(index.Remove); !ok {
		t.Errorf("expected Remove for the retired current doc, got %T", byDoc[currentDoc])
	}
	upsert, ok := byDoc[draftDoc].(index.Upsert)
	if !ok {
		t.Fatalf("expected Upsert for the draft doc, got %T", byDoc[draftDoc])
	}
	if upsert.Text != "b" || !upsert.ServeAll || !upsert.ServePublished {
		t.Errorf("draft doc should carry final content and full visibility: %+v", upsert)
	}
}
