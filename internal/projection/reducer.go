package projection

import (
	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/internal/index"
)

// Result is the outcome of reducing one batch: the coalesced command set
// and the records mutated along the way. Dirty records are clones of the
// loaded snapshot, so a failed batch discards them without side effects.
type Result struct {
	Commands *CommandSet
	Dirty    map[content.ItemKey]*Record
}

// reduction carries the batch-scoped working state through each event.
type reduction struct {
	loaded  map[content.ItemKey]*Record
	working map[content.ItemKey]*Record
	result  *Result
	ids     index.IDSource
}

// Reduce folds an ordered batch of events into index commands and updated
// projection records. The loaded snapshot is never mutated; all changes
// land on clones collected in the result's dirty set.
//
// Events referencing an identity with no record are silently skipped for
// every kind except a create; tombstoned records ignore everything. Both
// policies keep replays of already-applied batches idempotent.
func Reduce(loaded map[content.ItemKey]*Record, events []content.Event, ids index.IDSource) *Result {
	r := &reduction{
		loaded:  loaded,
		working: make(map[content.ItemKey]*Record),
		result: &Result{
			Commands: NewCommandSet(),
			Dirty:    make(map[content.ItemKey]*Record),
		},
		ids: ids,
	}
	for _, event := range events {
		r.apply(event)
	}
	return r.result
}

func (r *reduction) apply(event content.Event) {
	switch event.Kind {
	case content.KindCreated:
		r.applyCreated(event)
	case content.KindDraftCreated:
		r.applyDraftCreated(event)
	case content.KindUpdated:
		r.applyUpdated(event)
	case content.KindPublished:
		r.applyPublished(event)
	case content.KindUnpublished:
		r.applyUnpublished(event)
	case content.KindDraftDeleted:
		r.applyDraftDeleted(event)
	case content.KindDeleted:
		r.applyDeleted(event)
	default:
		// Unknown kinds are ignored per the malformed-event policy.
	}
}

// record returns the live working copy for the event's identity, cloning
// from the loaded snapshot on first touch. Tombstones resolve to nil.
func (r *reduction) record(key content.ItemKey) *Record {
	if rec, ok := r.working[key]; ok {
		if rec.Deleted {
			return nil
		}
		return rec
	}
	if rec, ok := r.loaded[key]; ok {
		if rec.Deleted {
			return nil
		}
		clone := rec.Clone()
		r.working[key] = clone
		return clone
	}
	return nil
}

func (r *reduction) markDirty(rec *Record) {
	r.working[rec.Key] = rec
	r.result.Dirty[rec.Key] = rec
}

func (r *reduction) applyCreated(event content.Event) {
	key := event.Key()
	if _, loaded := r.loaded[key]; loaded {
		// Replayed create; the record already exists.
		return
	}
	if _, inBatch := r.working[key]; inBatch {
		return
	}
	rec := &Record{
		Key:        key,
		AppID:      event.AppID,
		ContentID:  event.ContentID,
		DocCurrent: r.ids.DocID(key, index.StageCurrent, 0),
	}
	r.markDirty(rec)
	r.result.Commands.Put(index.Upsert{
		Doc:            rec.DocCurrent,
		AppID:          string(event.AppID),
		ContentID:      string(event.ContentID),
		SchemaID:       event.SchemaID,
		Text:           payloadText(event),
		Shapes:         payloadShapes(event),
		ServeAll:       true,
		ServePublished: false,
		IsNew:          true,
	})
}

func (r *reduction) applyDraftCreated(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil {
		return
	}
	rec.Revision++
	rec.DocDraft = r.ids.DocID(rec.Key, index.StageDraft, rec.Revision)
	r.markDirty(rec)
	if event.Payload != nil {
		// Migrated content data rides along with the draft creation and
		// is applied as an immediate update against the new draft.
		r.applyUpdated(event)
	}
}

func (r *reduction) applyUpdated(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil {
		return
	}
	if rec.HasDraft() {
		r.result.Commands.Put(index.Upsert{
			Doc:            rec.DocDraft,
			AppID:          string(event.AppID),
			ContentID:      string(event.ContentID),
			SchemaID:       event.SchemaID,
			Text:           payloadText(event),
			Shapes:         payloadShapes(event),
			ServeAll:       true,
			ServePublished: false,
		})
		// While the draft is being edited it serves the all-versions
		// view; the current document keeps the published view only.
		r.result.Commands.Put(index.SetVisibility{
			Doc:            rec.DocCurrent,
			AppID:          string(event.AppID),
			ServeAll:       false,
			ServePublished: true,
		})
		return
	}
	r.result.Commands.Put(index.Upsert{
		Doc:            rec.DocCurrent,
		AppID:          string(event.AppID),
		ContentID:      string(event.ContentID),
		SchemaID:       event.SchemaID,
		Text:           payloadText(event),
		Shapes:         payloadShapes(event),
		ServeAll:       true,
		ServePublished: rec.CurrentIsPublished(),
	})
}

func (r *reduction) applyPublished(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil {
		return
	}
	if rec.HasDraft() {
		r.result.Commands.Put(index.SetVisibility{
			Doc:            rec.DocDraft,
			AppID:          string(event.AppID),
			ServeAll:       true,
			ServePublished: true,
		})
		r.result.Commands.Put(index.Remove{
			Doc:   rec.DocCurrent,
			AppID: string(event.AppID),
		})
		rec.DocPublished = rec.DocDraft
		rec.DocCurrent = rec.DocDraft
	} else {
		r.result.Commands.Put(index.SetVisibility{
			Doc:            rec.DocCurrent,
			AppID:          string(event.AppID),
			ServeAll:       true,
			ServePublished: true,
		})
		rec.DocPublished = rec.DocCurrent
	}
	rec.DocDraft = ""
	r.markDirty(rec)
}

func (r *reduction) applyUnpublished(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil || rec.DocPublished == "" {
		return
	}
	r.result.Commands.Put(index.SetVisibility{
		Doc:            rec.DocPublished,
		AppID:          string(event.AppID),
		ServeAll:       true,
		ServePublished: false,
	})
	rec.DocPublished = ""
	r.markDirty(rec)
}

func (r *reduction) applyDraftDeleted(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil || !rec.HasDraft() {
		return
	}
	// The current document resumes full serving once the draft is gone.
	r.result.Commands.Put(index.SetVisibility{
		Doc:            rec.DocCurrent,
		AppID:          string(event.AppID),
		ServeAll:       true,
		ServePublished: true,
	})
	r.result.Commands.Put(index.Remove{
		Doc:   rec.DocDraft,
		AppID: string(event.AppID),
	})
	rec.DocDraft = ""
	r.markDirty(rec)
}

func (r *reduction) applyDeleted(event content.Event) {
	rec := r.record(event.Key())
	if rec == nil {
		return
	}
	r.result.Commands.Put(index.Remove{
		Doc:   rec.DocCurrent,
		AppID: string(event.AppID),
	})
	draft := rec.DocDraft
	if draft == "" {
		draft = index.NotFoundDoc
	}
	r.result.Commands.Put(index.Remove{
		Doc:   draft,
		AppID: string(event.AppID),
	})
	rec.Deleted = true
	r.markDirty(rec)
}

func payloadText(event content.Event) string {
	if event.Payload == nil {
		return ""
	}
	return event.Payload.Text
}

func payloadShapes(event content.Event) []content.GeoShape {
	if event.Payload == nil {
		return nil
	}
	return event.Payload.Shapes
}
