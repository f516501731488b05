package model

import (
	"time"

	"github.com/google/uuid"
)

// VectorRecord is one embedded document chunk with its metadata.
// Records are immutable after indexing; re-embedding a chunk means upserting
// a new record under the same ChunkID, which replaces the old one.
type VectorRecord struct {
	ChunkID   uuid.UUID   `json:"chunk_id"`
	Content   string      `json:"content,omitempty"`
	Embedding []float32   `json:"embedding,omitempty"`
	EntityIDs []uuid.UUID `json:"entity_ids,omitempty"` // resolved entities, never raw strings
	Date      *time.Time  `json:"date,omitempty"`
	SourceID  string      `json:"source_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// VectorFilter restricts an ANN query by record metadata
type VectorFilter struct {
	EntityIDs []uuid.UUID `json:"entity_ids,omitempty"` // match records tagged with ANY of these
	DateFrom  *time.Time  `json:"date_from,omitempty"`
	DateTo    *time.Time  `json:"date_to,omitempty"`
	SourceIDs []string    `json:"source_ids,omitempty"`
}

// Empty reports whether the filter restricts nothing
func (f *VectorFilter) Empty() bool {
	return f == nil || (len(f.EntityIDs) == 0 && f.DateFrom == nil && f.DateTo == nil && len(f.SourceIDs) == 0)
}

// Matches reports whether the record passes the filter
func (f *VectorFilter) Matches(r *VectorRecord) bool {
	if f == nil {
		return true
	}
	if len(f.EntityIDs) > 0 {
		found := false
		for _, want := range f.EntityIDs {
			for _, got := range r.EntityIDs {
				if want == got {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && (r.Date == nil || r.Date.Before(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && (r.Date == nil || r.Date.After(*f.DateTo)) {
		return false
	}
	if len(f.SourceIDs) > 0 {
		found := false
		for _, s := range f.SourceIDs {
			if s == r.SourceID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// VectorHit is one ANN query result with its similarity score in [0,1]
type VectorHit struct {
	Record *VectorRecord `json:"record"`
	Score  float64       `json:"score"`
}
