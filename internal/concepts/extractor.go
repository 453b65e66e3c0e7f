// Package concepts extracts candidate concepts (noun-like phrases and named
// entities) from free text, plus the small text utilities every synthesis
// stage shares.
package concepts

import "context"

type EntityType string

const (
	EntityOrg     EntityType = "ORG"
	EntityProduct EntityType = "PRODUCT"
	EntityGPE     EntityType = "GPE"
	EntityEvent   EntityType = "EVENT"
	EntityOther   EntityType = "MISC"
)

type Entity struct {
	Text string
	Type EntityType
}

// Extraction is what an Extractor finds in one text. Phrases are lower-cased
// and normalized; entity text keeps its original casing.
type Extraction struct {
	Phrases  []string
	Entities []Entity
}

// Extractor is the concept extraction collaborator. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

// ConceptEntity reports whether an entity type is kept as a concept.
func ConceptEntity(t EntityType) bool {
	switch t {
	case EntityOrg, EntityProduct, EntityGPE, EntityEvent:
		return true
	}
	return false
}
