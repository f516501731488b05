package model

import (
	"time"

	"github.com/google/uuid"
)

// CoocEdge is one undirected co-occurrence edge between two entities.
// A sorts before B by uuid byte order so each pair has exactly one edge.
type CoocEdge struct {
	A               uuid.UUID      `json:"entity_a"`
	B               uuid.UUID      `json:"entity_b"`
	Count           int            `json:"count"`
	FirstDate       time.Time      `json:"first_date"`
	LastDate        time.Time      `json:"last_date"`
	SourceBreakdown map[string]int `json:"source_breakdown,omitempty"` // source type -> count
}

// Other returns the edge endpoint that is not id
func (e *CoocEdge) Other(id uuid.UUID) uuid.UUID {
	if e.A == id {
		return e.B
	}
	return e.A
}

// Clone returns a deep copy of the edge
func (e *CoocEdge) Clone() *CoocEdge {
	clone := &CoocEdge{
		A:               e.A,
		B:               e.B,
		Count:           e.Count,
		FirstDate:       e.FirstDate,
		LastDate:        e.LastDate,
		SourceBreakdown: make(map[string]int, len(e.SourceBreakdown)),
	}
	for k, v := range e.SourceBreakdown {
		clone.SourceBreakdown[k] = v
	}
	return clone
}

// Neighbor is one adjacency entry returned by graph lookups
type Neighbor struct {
	EntityID uuid.UUID `json:"entity_id"`
	Weight   int       `json:"weight"`
	Edge     *CoocEdge `json:"edge"`
}

// EdgeRemoval is an audited edge drop, produced when a merge turns an edge
// between two now-identical entities into a self-loop
type EdgeRemoval struct {
	Edge      *CoocEdge `json:"edge"`
	Reason    string    `json:"reason"`
	RemovedAt time.Time `json:"removed_at"`
}
