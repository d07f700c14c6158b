// Package index defines the command language spoken to the search index
// and provides a local in-memory engine that executes it. Real deployments
// can swap the engine for a remote executor; the projector only depends on
// the Executor interface.
package index

import (
	"context"

	"github.com/contentpipe/search-projector/internal/content"
)

// NotFoundDoc is a harmless sentinel document id. Removing it is always a
// no-op; the reducer emits it when a delete has no draft document to retire.
const NotFoundDoc = "__notfound__"

// CommandKind labels a command variant, used for metrics.
type CommandKind string

const (
	KindUpsert        CommandKind = "upsert"
	KindSetVisibility CommandKind = "set_visibility"
	KindRemove        CommandKind = "remove"
)

// Command is one mutation against the search index. The three variants
// form a closed set; executors switch over them exhaustively.
type Command interface {
	// DocID returns the index document the command targets.
	DocID() string
	// Kind returns the command variant label.
	Kind() CommandKind
}

// Upsert creates or fully replaces a document's indexed content and
// visibility flags.
type Upsert struct {
	Doc            string
	AppID          string
	ContentID      string
	SchemaID       string
	Text           string
	Shapes         []content.GeoShape
	ServeAll       bool
	ServePublished bool
	IsNew          bool
}

func (u Upsert) DocID() string     { return u.Doc }
func (u Upsert) Kind() CommandKind { return KindUpsert }

// SetVisibility changes only the serve-all / serve-published flags of an
// existing document; content is untouched.
type SetVisibility struct {
	Doc            string
	AppID          string
	ServeAll       bool
	ServePublished bool
}

func (v SetVisibility) DocID() string     { return v.Doc }
func (v SetVisibility) Kind() CommandKind { return KindSetVisibility }

// Remove deletes a document from the index. Removing an unknown document
// (including NotFoundDoc) is a no-op.
type Remove struct {
	Doc   string
	AppID string
}

func (r Remove) DocID() string     { return r.Doc }
func (r Remove) Kind() CommandKind { return KindRemove }

// Executor applies an ordered list of commands against a search index.
// Execution is all-or-nothing: on error the caller must assume none of the
// commands took effect and retry the whole list.
type Executor interface {
	Execute(ctx context.Context, commands []Command) error
	Clear(ctx context.Context) error
}