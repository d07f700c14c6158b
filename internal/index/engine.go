package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/contentpipe/search-projector/internal/content"
)

// Document is the externally visible snapshot of an indexed document.
type Document struct {
	ID             string
	AppID          string
	ContentID      string
	SchemaID       string
	Text           string
	Shapes         []content.GeoShape
	ServeAll       bool
	ServePublished bool
}

type document struct {
	Document
	terms map[string]int
}

// Engine is an in-memory search index executing the projector's command
// language: an inverted term index plus per-document visibility flags.
// It validates a command list before applying it so a rejected batch
// leaves the index untouched.
type Engine struct {
	mu       sync.RWMutex
	docs     map[string]*document
	inverted map[string]map[string]int
	logger   *slog.Logger
}

// NewEngine creates an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		docs:     make(map[string]*document),
		inverted: make(map[string]map[string]int),
		logger:   slog.Default().With("component", "index-engine"),
	}
}

// Execute applies the commands in order. The list is validated up front;
// if any command is invalid nothing is applied and an error is returned,
// honouring the all-or-nothing executor contract. Visibility changes and
// removes targeting unknown documents are tolerated as no-ops, which keeps
// replayed batches from poisoning the consumer.
func (e *Engine) Execute(ctx context.Context, commands []Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validate(commands); err != nil {
		return err
	}
	for _, cmd := range commands {
		switch c := cmd.(type) {
		case Upsert:
			e.upsert(c)
		case SetVisibility:
			if doc, ok := e.docs[c.Doc]; ok {
				doc.ServeAll = c.ServeAll
				doc.ServePublished = c.ServePublished
			}
		case Remove:
			e.remove(c.Doc)
		}
	}
	e.logger.Debug("commands applied",
		"count", len(commands),
		"docs", len(e.docs),
	)
	return nil
}

// validate rejects command lists containing variants outside the closed
// command set.
func validate(commands []Command) error {
	for i, cmd := range commands {
		switch cmd.(type) {
		case Upsert, SetVisibility, Remove:
		default:
			return fmt.Errorf("command %d: unknown command kind %T", i, cmd)
		}
	}
	return nil
}

func (e *Engine) upsert(c Upsert) {
	if old, ok := e.docs[c.Doc]; ok {
		e.unindex(c.Doc, old.terms)
	}
	terms := make(map[string]int)
	for _, term := range tokenize(c.Text) {
		terms[term]++
	}
	doc := &document{
		Document: Document{
			ID:             c.Doc,
			AppID:          c.AppID,
			ContentID:      c.ContentID,
			SchemaID:       c.SchemaID,
			Text:           c.Text,
			Shapes:         c.Shapes,
			ServeAll:       c.ServeAll,
			ServePublished: c.ServePublished,
		},
		terms: terms,
	}
	e.docs[c.Doc] = doc
	for term, freq := range terms {
		postings, ok := e.inverted[term]
		if !ok {
			postings = make(map[string]int)
			e.inverted[term] = postings
		}
		postings[c.Doc] = freq
	}
}

func (e *Engine) remove(docID string) {
	doc, ok := e.docs[docID]
	if !ok {
		// Unknown ids, including the not-found sentinel, are a no-op.
		return
	}
	e.unindex(docID, doc.terms)
	delete(e.docs, docID)
}

func (e *Engine) unindex(docID string, terms map[string]int) {
	for term := range terms {
		postings := e.inverted[term]
		delete(postings, docID)
		if len(postings) == 0 {
			delete(e.inverted, term)
		}
	}
}

// Clear wipes the whole index.
func (e *Engine) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs = make(map[string]*document)
	e.inverted = make(map[string]map[string]int)
	e.logger.Info("index cleared")
	return nil
}

// Search returns the ids of documents matching the given term, filtered by
// visibility: published-only queries see serve-published documents, all
// other queries see serve-all documents. Results are sorted by doc id.
func (e *Engine) Search(term string, publishedOnly bool) []string {
	tokens := tokenize(term)
	if len(tokens) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	postings := e.inverted[tokens[0]]
	result := make([]string, 0, len(postings))
	for docID := range postings {
		doc := e.docs[docID]
		if publishedOnly && !doc.ServePublished {
			continue
		}
		if !publishedOnly && !doc.ServeAll {
			continue
		}
		result = append(result, docID)
	}
	sort.Strings(result)
	return result
}

// Doc returns a snapshot of the document with the given id.
func (e *Engine) Doc(docID string) (Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[docID]
	if !ok {
		return Document{}, false
	}
	return doc.Document, true
}

// DocCount returns the number of live documents.
func (e *Engine) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}
