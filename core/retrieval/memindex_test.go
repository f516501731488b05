package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivegraph/dossier/model"
)

func record(content string, embedding []float32, entityIDs ...uuid.UUID) *model.VectorRecord {
	return &model.VectorRecord{
		ChunkID:   uuid.New(),
		Content:   content,
		Embedding: embedding,
		EntityIDs: entityIDs,
		SourceID:  "doc-1",
		CreatedAt: time.Now(),
	}
}

func TestMemoryIndexUpsert(t *testing.T) {
	t.Run("Upsert with same chunk ID replaces the record", func(t *testing.T) {
		index := NewMemoryIndex()
		first := record("first", []float32{1, 0, 0})
		require.NoError(t, index.Upsert(context.Background(), []*model.VectorRecord{first}))

		second := &model.VectorRecord{ChunkID: first.ChunkID, Content: "second", Embedding: []float32{0, 1, 0}}
		require.NoError(t, index.Upsert(context.Background(), []*model.VectorRecord{second}))

		count, err := index.Count(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		hits, err := index.Search(context.Background(), []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "second", hits[0].Record.Content)
	})

	t.Run("Record without chunk ID is rejected", func(t *testing.T) {
		index := NewMemoryIndex()
		err := index.Upsert(context.Background(), []*model.VectorRecord{{Content: "orphan"}})
		assert.Error(t, err)
	})
}

func TestMemoryIndexSearch(t *testing.T) {
	index := NewMemoryIndex()
	exact := record("exact", []float32{1, 0, 0})
	near := record("near", []float32{1, 1, 0})
	far := record("far", []float32{0, 0, 1})
	require.NoError(t, index.Upsert(context.Background(), []*model.VectorRecord{exact, near, far}))

	t.Run("Results ordered by similarity", func(t *testing.T) {
		hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "exact", hits[0].Record.Content)
		assert.Equal(t, "near", hits[1].Record.Content)
		assert.Equal(t, "far", hits[2].Record.Content)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	})

	t.Run("Limit caps the result count", func(t *testing.T) {
		hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("Empty embedding is rejected", func(t *testing.T) {
		_, err := index.Search(context.Background(), nil, 3)
		assert.Error(t, err)
	})

	t.Run("Dimension mismatch is rejected", func(t *testing.T) {
		_, err := index.Search(context.Background(), []float32{1, 0}, 3)
		assert.Error(t, err)
	})
}

func TestMemoryIndexByEntity(t *testing.T) {
	index := NewMemoryIndex()
	epstein := uuid.New()
	maxwell := uuid.New()

	tagged := record("tagged", []float32{1, 0, 0}, epstein)
	both := record("both", []float32{0, 1, 0}, epstein, maxwell)
	other := record("other", []float32{0, 0, 1}, maxwell)
	require.NoError(t, index.Upsert(context.Background(), []*model.VectorRecord{tagged, both, other}))

	records, err := index.ByEntity(context.Background(), epstein)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = index.ByEntity(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, records)
}
