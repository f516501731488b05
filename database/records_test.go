package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivegraph/dossier/model"
)

const testEmbeddingDim = 3

func testRecord(content string, embedding []float32, sourceID string, entityIDs ...uuid.UUID) *model.VectorRecord {
	return &model.VectorRecord{
		ChunkID:   uuid.New(),
		Content:   content,
		Embedding: embedding,
		EntityIDs: entityIDs,
		SourceID:  sourceID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRecordsNewRecordsDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewRecordsDBHandler", func(t *testing.T) {
		recordsDbHandler, err := NewRecordsDBHandler(database, testEmbeddingDim, true)
		assert.NoError(t, err, "Expected NewRecordsDBHandler to not return an error")
		require.NotNil(t, recordsDbHandler, "Expected NewRecordsDBHandler to return a non-nil instance")
		require.NotNil(t, recordsDbHandler.db, "Expected NewRecordsDBHandler to have a non-nil database instance")
	})

	t.Run("Invalid call NewRecordsDBHandler with nil database", func(t *testing.T) {
		_, err := NewRecordsDBHandler(nil, testEmbeddingDim, false)
		assert.Error(t, err, "Expected error when creating RecordsDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestRecordsUpsertAndSearch(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	recordsDbHandler, err := NewRecordsDBHandler(database, testEmbeddingDim, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = recordsDbHandler.DeleteBySource("search-doc")
	})

	epstein := uuid.New()
	maxwell := uuid.New()
	date := time.Date(2002, 7, 15, 0, 0, 0, 0, time.UTC)

	exact := testRecord("exact match", []float32{1, 0, 0}, "search-doc", epstein)
	exact.Date = &date
	near := testRecord("near match", []float32{1, 1, 0}, "search-doc", epstein, maxwell)
	far := testRecord("far off", []float32{0, 0, 1}, "search-doc")

	t.Run("Upsert records", func(t *testing.T) {
		err := recordsDbHandler.Upsert(ctx, []*model.VectorRecord{exact, near, far})
		require.NoError(t, err)

		count, err := recordsDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Search orders by cosine similarity", func(t *testing.T) {
		hits, err := recordsDbHandler.Search(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)

		assert.Equal(t, exact.ChunkID, hits[0].Record.ChunkID)
		assert.Equal(t, near.ChunkID, hits[1].Record.ChunkID)
		assert.Equal(t, far.ChunkID, hits[2].Record.ChunkID)

		// Scores are cosine similarity mapped into [0, 1]
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.Greater(t, hits[1].Score, hits[2].Score)
		for _, hit := range hits {
			assert.GreaterOrEqual(t, hit.Score, 0.0)
			assert.LessOrEqual(t, hit.Score, 1.0)
		}

		// Metadata survives the roundtrip
		assert.Equal(t, "exact match", hits[0].Record.Content)
		assert.Equal(t, []uuid.UUID{epstein}, hits[0].Record.EntityIDs)
		require.NotNil(t, hits[0].Record.Date)
		assert.True(t, hits[0].Record.Date.Equal(date))
		assert.Nil(t, hits[1].Record.Date)
	})

	t.Run("Search respects the limit", func(t *testing.T) {
		hits, err := recordsDbHandler.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("Search with empty embedding fails", func(t *testing.T) {
		_, err := recordsDbHandler.Search(ctx, nil, 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "query embedding is empty")
	})

	t.Run("Upsert replaces the row for the same chunk ID", func(t *testing.T) {
		updated := *exact
		updated.Content = "rewritten"
		updated.Embedding = []float32{0, 1, 0}

		err := recordsDbHandler.Upsert(ctx, []*model.VectorRecord{&updated})
		require.NoError(t, err)

		count, err := recordsDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count, "Upsert with an existing chunk ID must not add a row")

		hits, err := recordsDbHandler.Search(ctx, []float32{0, 1, 0}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "rewritten", hits[0].Record.Content)
	})

	t.Run("ByEntity returns only tagged records", func(t *testing.T) {
		records, err := recordsDbHandler.ByEntity(ctx, maxwell)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, near.ChunkID, records[0].ChunkID)
		assert.ElementsMatch(t, []uuid.UUID{epstein, maxwell}, records[0].EntityIDs)
	})

	t.Run("ByEntity with unknown entity is empty", func(t *testing.T) {
		records, err := recordsDbHandler.ByEntity(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Delete record", func(t *testing.T) {
		err := recordsDbHandler.DeleteRecord(far.ChunkID)
		require.NoError(t, err)

		count, err := recordsDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("Delete by source", func(t *testing.T) {
		err := recordsDbHandler.DeleteBySource("search-doc")
		require.NoError(t, err)

		count, err := recordsDbHandler.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
