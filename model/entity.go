package model

import (
	"time"

	"github.com/google/uuid"
)

// Entity represents a resolved real-world person or organization.
// The ID is assigned once and never reused; merges forward old IDs to the
// surviving entity instead of rewriting them.
type Entity struct {
	ID            uuid.UUID     `json:"id"`
	CanonicalName string        `json:"canonical_name"`
	Aliases       []string      `json:"aliases"` // display forms, includes the canonical name
	Sources       []string      `json:"sources"` // provenance tags, e.g. "flight_manifest"
	MergeHistory  []MergeRecord `json:"merge_history,omitempty"`
	Attributes    Metadata      `json:"attributes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// MergeRecord is one append-only entry in an entity's merge history
type MergeRecord struct {
	AbsorbedID   uuid.UUID `json:"absorbed_id"`
	AbsorbedName string    `json:"absorbed_name"`
	MergedAt     time.Time `json:"merged_at"`
}

// NewEntity creates an entity with name as canonical name and sole alias
func NewEntity(name string, source string) *Entity {
	e := &Entity{
		ID:            uuid.New(),
		CanonicalName: name,
		Aliases:       []string{name},
		Attributes:    Metadata{},
		CreatedAt:     time.Now(),
	}
	if source != "" {
		e.Sources = []string{source}
	}
	return e
}

// HasAlias reports whether the entity already carries the exact display alias
func (e *Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// HasSource reports whether the entity already carries the provenance tag
func (e *Entity) HasSource(source string) bool {
	for _, s := range e.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// AddAlias appends the alias if it is not already present
func (e *Entity) AddAlias(alias string) {
	if alias != "" && !e.HasAlias(alias) {
		e.Aliases = append(e.Aliases, alias)
	}
}

// AddSource appends the provenance tag if it is not already present
func (e *Entity) AddSource(source string) {
	if source != "" && !e.HasSource(source) {
		e.Sources = append(e.Sources, source)
	}
}

// Clone returns a deep copy, used for copy-on-write merge staging
func (e *Entity) Clone() *Entity {
	clone := &Entity{
		ID:            e.ID,
		CanonicalName: e.CanonicalName,
		CreatedAt:     e.CreatedAt,
		Aliases:       append([]string(nil), e.Aliases...),
		Sources:       append([]string(nil), e.Sources...),
		MergeHistory:  append([]MergeRecord(nil), e.MergeHistory...),
		Attributes:    Metadata{},
	}
	for k, v := range e.Attributes {
		clone.Attributes[k] = v
	}
	return clone
}
