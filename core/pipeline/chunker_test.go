package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceChunker(t *testing.T) {
	t.Run("Valid chunking with multiple sentences", func(t *testing.T) {
		chunker := SentenceChunker(2)
		text := "This is sentence one. This is sentence two. This is sentence three."

		chunks, err := chunker(text)

		require.NoError(t, err)
		assert.Greater(t, len(chunks), 0, "Expected at least one chunk")

		// Verify chunk structure
		for i, chunk := range chunks {
			assert.NotEmpty(t, chunk.Content)
			assert.Equal(t, i, chunk.ChunkIndex)
			assert.GreaterOrEqual(t, chunk.EndPos, chunk.StartPos)
		}
	})

	t.Run("Single sentence", func(t *testing.T) {
		chunker := SentenceChunker(1)
		text := "This is a single sentence."

		chunks, err := chunker(text)

		require.NoError(t, err)
		assert.Equal(t, 1, len(chunks))
		assert.Contains(t, chunks[0].Content, "single sentence")
	})

	t.Run("Sentences grouped up to the maximum", func(t *testing.T) {
		chunker := SentenceChunker(2)
		text := "One. Two. Three. Four. Five."

		chunks, err := chunker(text)

		require.NoError(t, err)
		assert.Equal(t, 3, len(chunks))
		assert.Contains(t, chunks[0].Content, "One.")
		assert.Contains(t, chunks[0].Content, "Two.")
		assert.Contains(t, chunks[2].Content, "Five.")
	})

	t.Run("Error with zero max sentences", func(t *testing.T) {
		chunker := SentenceChunker(0)

		_, err := chunker("Some text.")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})

	t.Run("Error with negative max sentences", func(t *testing.T) {
		chunker := SentenceChunker(-1)

		_, err := chunker("Some text.")

		assert.Error(t, err)
	})

	t.Run("Empty text yields no chunks", func(t *testing.T) {
		chunker := SentenceChunker(2)

		chunks, err := chunker("   ")

		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Question and exclamation marks end sentences", func(t *testing.T) {
		chunker := SentenceChunker(1)
		text := "Who flew that day? Nobody knows! The log is incomplete."

		chunks, err := chunker(text)

		require.NoError(t, err)
		assert.Equal(t, 3, len(chunks))
	})
}

func TestParagraphChunker(t *testing.T) {
	t.Run("Splits on blank lines", func(t *testing.T) {
		chunker := ParagraphChunker()
		text := "First paragraph here.\n\nSecond paragraph here.\n\nThird."

		chunks, err := chunker(text)

		require.NoError(t, err)
		require.Equal(t, 3, len(chunks))
		assert.Equal(t, "First paragraph here.", chunks[0].Content)
		assert.Equal(t, 2, chunks[2].ChunkIndex)
	})

	t.Run("Skips empty paragraphs", func(t *testing.T) {
		chunker := ParagraphChunker()
		text := "First.\n\n\n\nSecond."

		chunks, err := chunker(text)

		require.NoError(t, err)
		assert.Equal(t, 2, len(chunks))
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("Identical vectors", func(t *testing.T) {
		a := []float32{1, 0, 0}
		assert.InDelta(t, 1.0, cosineSimilarity(a, a), 1e-6)
	})

	t.Run("Orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("Mismatched dimensions", func(t *testing.T) {
		assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 0}, []float32{1}))
	})

	t.Run("Zero vector", func(t *testing.T) {
		assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	})
}
