// Package content defines the content-domain identity types and the closed
// set of lifecycle events the projector consumes. Events arrive as JSON on
// the content event topic, one stream per content item, keyed so that all
// events of a stream land on the same partition in order.
package content

import (
	"strings"
	"time"
)

// AppID identifies the owning tenant application.
type AppID string

// ContentID identifies a content item within an app.
type ContentID string

// ItemKey is the composite identity of a content item. It is stable and
// deterministic, and serves as the projection record's primary key.
type ItemKey string

// Key combines an app and content id into an ItemKey.
func Key(app AppID, id ContentID) ItemKey {
	return ItemKey(string(app) + "--" + string(id))
}

// EventKind enumerates the content lifecycle events. The set is closed;
// the reducer switches over it exhaustively and treats anything else as a
// malformed event.
type EventKind string

const (
	KindCreated      EventKind = "content.created"
	KindUpdated      EventKind = "content.updated"
	KindPublished    EventKind = "content.published"
	KindUnpublished  EventKind = "content.unpublished"
	KindDraftCreated EventKind = "content.draft.created"
	KindDraftDeleted EventKind = "content.draft.deleted"
	KindDeleted      EventKind = "content.deleted"
)

// Known reports whether k is one of the handled lifecycle kinds.
func (k EventKind) Known() bool {
	switch k {
	case KindCreated, KindUpdated, KindPublished, KindUnpublished,
		KindDraftCreated, KindDraftDeleted, KindDeleted:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoShape is a named polygon extracted from a content field.
type GeoShape struct {
	Field  string     `json:"field"`
	Points []GeoPoint `json:"points"`
}

// Payload carries the searchable projection of a content version: flattened
// text plus any geo shapes. Field extraction happens upstream; the projector
// treats both as opaque.
type Payload struct {
	Text   string     `json:"text"`
	Shapes []GeoShape `json:"shapes,omitempty"`
}

// Event is the envelope delivered for every content lifecycle change.
// Payload is present on created/updated events and optionally on
// draft-created events that carry migrated content data.
type Event struct {
	Stream     string     `json:"stream"`
	Kind       EventKind  `json:"kind"`
	AppID      AppID      `json:"app_id"`
	ContentID  ContentID  `json:"content_id"`
	SchemaID   string     `json:"schema_id,omitempty"`
	Payload    *Payload   `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key returns the item identity the event refers to.
func (e Event) Key() ItemKey {
	return Key(e.AppID, e.ContentID)
}

// FromStream reports whether the event's stream carries the given
// content-domain prefix.
func (e Event) FromStream(prefix string) bool {
	return strings.HasPrefix(e.Stream, prefix)
}
