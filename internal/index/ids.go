package index

import (
	"fmt"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/google/uuid"
)

// Stage names the lifecycle slot an index document is generated for.
type Stage string

const (
	StageCurrent Stage = "current"
	StageDraft   Stage = "draft"
)

// IDSource produces index document identifiers. Ids must be globally
// unique across all items and stages; generation must be deterministic in
// (key, stage, revision) so that redelivering an already-applied event
// regenerates the same id instead of minting a duplicate document.
type IDSource interface {
	DocID(key content.ItemKey, stage Stage, revision uint64) string
}

// docNamespace scopes generated ids; any fixed namespace works as long as
// every projector instance shares it.
var docNamespace = uuid.MustParse("9f2c1af3-6b84-4a37-9e41-d20c7f0b6c55")

// UUIDSource derives document ids as version-5 UUIDs over the item key,
// stage, and revision counter.
type UUIDSource struct{}

func NewUUIDSource() UUIDSource {
	return UUIDSource{}
}

func (UUIDSource) DocID(key content.ItemKey, stage Stage, revision uint64) string {
	name := fmt.Sprintf("%s|%s|%d", key, stage, revision)
	return uuid.NewSHA1(docNamespace, []byte(name)).String()
}
