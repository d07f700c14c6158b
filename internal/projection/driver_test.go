package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/internal/index"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/kafka"
)

type fakeStore struct {
	records map[content.ItemKey]*Record
	saved   [][]*Record
	cleared bool
	loadErr error
	saveErr error
	calls   *[]string
}

func newFakeStore(calls *[]string, recs ...*Record) *fakeStore {
	s := &fakeStore{records: make(map[content.ItemKey]*Record), calls: calls}
	for _, rec := range recs {
		s.records[rec.Key] = rec
	}
	return s
}

func (s *fakeStore) Load(ctx context.Context, keys []content.ItemKey) (map[content.ItemKey]*Record, error) {
	*s.calls = append(*s.calls, "load")
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	result := make(map[content.ItemKey]*Record)
	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			result[key] = rec
		}
	}
	return result, nil
}

func (s *fakeStore) Save(ctx context.Context, records []*Record) error {
	*s.calls = append(*s.calls, "save")
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, records)
	return nil
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.cleared = true
	return nil
}

type fakeExecutor struct {
	executed [][]index.Command
	cleared  bool
	err      error
	calls    *[]string
}

func (e *fakeExecutor) Execute(ctx context.Context, commands []index.Command) error {
	*e.calls = append(*e.calls, "execute")
	if e.err != nil {
		return e.err
	}
	e.executed = append(e.executed, commands)
	return nil
}

func (e *fakeExecutor) Clear(ctx context.Context) error {
	e.cleared = true
	return nil
}

func testDriver(store RecordStore, executor index.Executor) *Driver {
	cfg := config.ProjectorConfig{StreamPrefix: "content-"}
	return NewDriver(store, executor, seqIDs{}, cfg, nil)
}

func TestOnBatchExecutesBeforeSaving(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	err := driver.OnBatch(context.Background(), []content.Event{
		event(content.KindCreated, "item-1", "text"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"load", "execute", "save"}
	if len(calls) != len(want) {
		t.Fatalf("calls %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls %v, want %v", calls, want)
		}
	}
	if len(executor.executed) != 1 || len(store.saved) != 1 {
		t.Errorf("expected one execute and one save")
	}
}

func TestOnBatchFailedExecuteAbortsSave(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls, err: errors.New("index down")}
	driver := testDriver(store, executor)

	err := driver.OnBatch(context.Background(), []content.Event{
		event(content.KindCreated, "item-1", "text"),
	})
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if len(store.saved) != 0 {
		t.Error("no records may be persisted after a failed execute")
	}
	for _, call := range calls {
		if call == "save" {
			t.Error("save must not run after a failed execute")
		}
	}
}

func TestOnBatchFailedLoadAbortsEverything(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	store.loadErr = errors.New("store down")
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	err := driver.OnBatch(context.Background(), []content.Event{
		event(content.KindUpdated, "item-1", "text"),
	})
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if len(executor.executed) != 0 {
		t.Error("commands must not execute after a failed load")
	}
}

func TestOnBatchIgnoresForeignStreams(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	foreign := event(content.KindCreated, "item-1", "text")
	foreign.Stream = "billing-invoice-9"
	if err := driver.OnBatch(context.Background(), []content.Event{foreign}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("foreign-stream events must not touch any collaborator, calls: %v", calls)
	}
}

func TestOnBatchIgnoresUnknownKinds(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	unknown := event("content.archived", "item-1", "text")
	if err := driver.OnBatch(context.Background(), []content.Event{unknown}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executor.executed) != 0 || len(store.saved) != 0 {
		t.Error("unknown kinds must not emit commands or records")
	}
}

func TestOnBatchNoCommandsSkipsExecutor(t *testing.T) {
	var calls []string
	// An update for a missing identity loads but produces nothing.
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	if err := driver.OnBatch(context.Background(), []content.Event{
		event(content.KindUpdated, "item-1", "text"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, call := range calls {
		if call == "execute" || call == "save" {
			t.Errorf("unexpected %s for an empty reduction", call)
		}
	}
}

func TestClearAllClearsIndexAndStore(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	if err := driver.ClearAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.cleared || !executor.cleared {
		t.Errorf("expected both clears, store=%v index=%v", store.cleared, executor.cleared)
	}
}

func TestHandleBatchSkipsUndecodableMessages(t *testing.T) {
	var calls []string
	store := newFakeStore(&calls)
	executor := &fakeExecutor{calls: &calls}
	driver := testDriver(store, executor)

	good, err := json.Marshal(event(content.KindCreated, "item-1", "text"))
	if err != nil {
		t.Fatal(err)
	}
	msgs := []kafka.Message{
		{Key: []byte("content-item-0"), Value: []byte("{not json")},
		{Key: []byte(testStream), Value: good},
	}
	if err := driver.HandleBatch()(context.Background(), msgs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executor.executed) != 1 {
		t.Fatalf("expected the decodable event to be processed")
	}
}
