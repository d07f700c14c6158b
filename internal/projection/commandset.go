package projection

import "github.com/contentpipe/search-projector/internal/index"

// CommandSet coalesces index commands within one batch, keyed by document
// id and preserving first-insertion order across documents. At most one
// command per document survives a batch.
type CommandSet struct {
	order  []string
	byDoc  map[string]index.Command
	merged int
}

// NewCommandSet creates an empty CommandSet.
func NewCommandSet() *CommandSet {
	return &CommandSet{
		byDoc: make(map[string]index.Command),
	}
}

// Put inserts a command, applying the coalescing rule: a visibility change
// arriving while an upsert for the same document is still pending folds its
// flags into that upsert, so a document created and re-flagged within one
// batch is written exactly once with its final flags. Every other case
// replaces the pending command; the latest one wins.
func (s *CommandSet) Put(cmd index.Command) {
	docID := cmd.DocID()
	if vis, ok := cmd.(index.SetVisibility); ok {
		if pending, ok := s.byDoc[docID].(index.Upsert); ok {
			pending.ServeAll = vis.ServeAll
			pending.ServePublished = vis.ServePublished
			s.byDoc[docID] = pending
			s.merged++
			return
		}
	}
	if _, seen := s.byDoc[docID]; !seen {
		s.order = append(s.order, docID)
	}
	s.byDoc[docID] = cmd
}

// Ordered returns the surviving commands in first-insertion order.
func (s *CommandSet) Ordered() []index.Command {
	commands := make([]index.Command, 0, len(s.order))
	for _, docID := range s.order {
		commands = append(commands, s.byDoc[docID])
	}
	return commands
}

// Len returns the number of surviving commands.
func (s *CommandSet) Len() int {
	return len(s.order)
}

// Merged returns how many visibility changes were folded into pending
// upserts.
func (s *CommandSet) Merged() int {
	return s.merged
}
