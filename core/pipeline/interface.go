// Package pipeline turns raw documents into indexed vector records and
// co-occurrence evidence: chunking, embedding, mention resolution.
package pipeline

// ChunkFunc is a function that splits text into chunks
type ChunkFunc func(text string) ([]Chunk, error)

// EmbedFunc is a function that generates an embedding for text
type EmbedFunc func(text string) ([]float32, error)

// Chunk is one piece of a split document
type Chunk struct {
	Content    string
	StartPos   int
	EndPos     int
	ChunkIndex int
}

// EmbeddedChunk is a chunk with its embedding attached
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process splits text into chunks and embeds each one
func (p *Pipeline) Process(text string) ([]EmbeddedChunk, error) {
	chunks, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	embedded := make([]EmbeddedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := p.Embedder(chunk.Content)
		if err != nil {
			return nil, err
		}
		embedded = append(embedded, EmbeddedChunk{Chunk: chunk, Embedding: embedding})
	}

	return embedded, nil
}
