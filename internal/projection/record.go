// Package projection maintains the per-content-item projection records and
// turns ordered batches of content lifecycle events into coalesced search
// index commands.
package projection

import "github.com/contentpipe/search-projector/internal/content"

// Record is the durable projection state of one content item. It tracks
// which index documents currently represent the "all versions", published,
// and draft views.
//
// Invariants:
//   - DocCurrent is never empty once the record exists.
//   - DocPublished is empty, equal to DocCurrent, or equal to a promoted
//     former draft document.
//   - A deleted record is a tombstone and receives no further mutation.
type Record struct {
	Key          content.ItemKey   `json:"key"`
	AppID        content.AppID     `json:"app_id"`
	ContentID    content.ContentID `json:"content_id"`
	DocCurrent   string            `json:"doc_current"`
	DocDraft     string            `json:"doc_draft,omitempty"`
	DocPublished string            `json:"doc_published,omitempty"`
	Revision     uint64            `json:"revision"`
	Deleted      bool              `json:"deleted,omitempty"`
}

// HasDraft reports whether an in-progress draft document exists.
func (r *Record) HasDraft() bool {
	return r.DocDraft != ""
}

// CurrentIsPublished reports whether the current document is also the
// published one.
func (r *Record) CurrentIsPublished() bool {
	return r.DocPublished != "" && r.DocPublished == r.DocCurrent
}

// Clone returns a copy of the record. The reducer works on clones so a
// failed batch leaves the loaded snapshot untouched.
func (r *Record) Clone() *Record {
	clone := *r
	return &clone
}
