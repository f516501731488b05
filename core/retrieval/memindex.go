package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// MemoryIndex is an in-memory VectorIndex using exact cosine similarity.
// It serves tests and embedded use; production deployments put the pgvector
// handler behind the same interface.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.VectorRecord
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: map[uuid.UUID]*model.VectorRecord{}}
}

// Upsert inserts records, replacing same-ID records. Idempotent for
// identical input.
func (m *MemoryIndex) Upsert(ctx context.Context, records []*model.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		if record.ChunkID == uuid.Nil {
			return helper.NewError("upsert record", fmt.Errorf("record %q has no chunk ID", record.Content))
		}
		m.records[record.ChunkID] = record
	}
	return nil
}

// Search returns the top-k records by cosine similarity, best first.
// Scores are mapped from [-1,1] to [0,1].
func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, limit int) ([]*model.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("vector search", fmt.Errorf("empty query embedding"))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]*model.VectorHit, 0, len(m.records))
	for _, record := range m.records {
		sim, err := cosine(embedding, record.Embedding)
		if err != nil {
			return nil, helper.NewError("vector search", err)
		}
		hits = append(hits, &model.VectorHit{Record: record, Score: (sim + 1) / 2})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.ChunkID.String() < hits[j].Record.ChunkID.String()
	})

	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// ByEntity returns every record tagged with the entity
func (m *MemoryIndex) ByEntity(ctx context.Context, entityID uuid.UUID) ([]*model.VectorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.VectorRecord
	for _, record := range m.records {
		for _, id := range record.EntityIDs {
			if id == entityID {
				out = append(out, record)
				break
			}
		}
	}
	return out, nil
}

// Count returns the number of indexed records
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// cosine computes cosine similarity between two vectors of equal dimension
func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
