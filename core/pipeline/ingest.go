package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/archivegraph/dossier/core/cooccur"
	"github.com/archivegraph/dossier/core/resolve"
	"github.com/archivegraph/dossier/core/retrieval"
	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// Ingestor drives document ingestion: mentions are resolved to entities,
// text is chunked and embedded on a worker pool, records land in the vector
// index and the co-occurring entities in the graph.
type Ingestor struct {
	pipeline *Pipeline
	index    retrieval.VectorIndex
	resolver *resolve.Resolver
	graph    *cooccur.Graph
	pool     *ants.Pool
	log      *slog.Logger
}

// NewIngestor creates an ingestor with a worker pool sized to half the CPUs
func NewIngestor(pipeline *Pipeline, index retrieval.VectorIndex, resolver *resolve.Resolver, graph *cooccur.Graph, logger *slog.Logger) (*Ingestor, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, helper.NewError("create ingestor", err)
	}

	return &Ingestor{
		pipeline: pipeline,
		index:    index,
		resolver: resolver,
		graph:    graph,
		pool:     pool,
		log:      logger,
	}, nil
}

// Release releases the worker pool. The ingestor must not be used after.
func (in *Ingestor) Release() {
	if in.pool != nil {
		in.pool.Release()
	}
}

// IngestDocument resolves the document's mentions, chunks and embeds its
// text, indexes the records tagged with the resolved entity IDs and records
// the co-occurrence group. Chunk IDs are derived from the source ID and the
// chunk index, so re-ingesting the same document replaces its records
// instead of duplicating them.
func (in *Ingestor) IngestDocument(ctx context.Context, doc model.Document) (*model.IngestResult, error) {
	if doc.SourceID == "" {
		return nil, helper.NewError("ingest document", fmt.Errorf("document has no source ID"))
	}

	resolutions, entityIDs, err := in.resolveMentions(doc)
	if err != nil {
		return nil, err
	}

	result := &model.IngestResult{
		SourceID:    doc.SourceID,
		EntityIDs:   entityIDs,
		Resolutions: resolutions,
	}

	if doc.Text != "" {
		records, err := in.buildRecords(ctx, doc, entityIDs)
		if err != nil {
			return nil, err
		}
		if err := in.index.Upsert(ctx, records); err != nil {
			return nil, helper.NewError("ingest document", err)
		}
		result.Chunks = len(records)
	}

	var date time.Time
	if doc.Date != nil {
		date = *doc.Date
	}
	in.graph.AddGroup(entityIDs, date, doc.SourceType)

	in.log.Info("Ingested document",
		slog.String("source_id", doc.SourceID),
		slog.Int("chunks", result.Chunks),
		slog.Int("entities", len(entityIDs)))
	return result, nil
}

// IngestMentionGroup records co-occurring mentions that carry no text, for
// example one flight-manifest row or one deposition appearance list
func (in *Ingestor) IngestMentionGroup(mentions []model.Mention, date time.Time, sourceType string) ([]model.Resolution, error) {
	resolutions := make([]model.Resolution, 0, len(mentions))
	entityIDs := make([]uuid.UUID, 0, len(mentions))

	for _, m := range mentions {
		resolution, err := in.resolver.ResolveMention(m)
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, resolution)
		entityIDs = append(entityIDs, resolution.EntityID)
	}

	in.graph.AddGroup(entityIDs, date, sourceType)
	return resolutions, nil
}

// resolveMentions resolves the document's raw mentions, deduplicating the
// resulting entity IDs
func (in *Ingestor) resolveMentions(doc model.Document) ([]model.Resolution, []uuid.UUID, error) {
	resolutions := make([]model.Resolution, 0, len(doc.Mentions))
	seen := map[uuid.UUID]bool{}
	var entityIDs []uuid.UUID

	for _, raw := range doc.Mentions {
		resolution, err := in.resolver.ResolveMention(model.Mention{
			RawText:     raw,
			SourceID:    doc.SourceID,
			SourceType:  doc.SourceType,
			ContextDate: doc.Date,
		})
		if err != nil {
			return nil, nil, err
		}
		resolutions = append(resolutions, resolution)
		if !seen[resolution.EntityID] {
			seen[resolution.EntityID] = true
			entityIDs = append(entityIDs, resolution.EntityID)
		}
	}
	return resolutions, entityIDs, nil
}

// buildRecords chunks the text and embeds the chunks on the worker pool
func (in *Ingestor) buildRecords(ctx context.Context, doc model.Document, entityIDs []uuid.UUID) ([]*model.VectorRecord, error) {
	chunks, err := in.pipeline.Chunker(doc.Text)
	if err != nil {
		return nil, helper.NewError("chunk document", err)
	}

	records := make([]*model.VectorRecord, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wg.Add(1)
		i, chunk := i, chunk
		submitErr := in.pool.Submit(func() {
			defer wg.Done()

			embedding, err := in.pipeline.Embedder(chunk.Content)
			if err != nil {
				errs[i] = err
				return
			}
			records[i] = &model.VectorRecord{
				ChunkID:   chunkID(doc.SourceID, chunk.ChunkIndex),
				Content:   chunk.Content,
				Embedding: embedding,
				EntityIDs: entityIDs,
				Date:      doc.Date,
				SourceID:  doc.SourceID,
				CreatedAt: time.Now(),
			}
		})
		if submitErr != nil {
			wg.Done()
			return nil, helper.NewError("embed chunk", submitErr)
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, helper.NewError("embed chunk", err)
		}
	}
	return records, nil
}

// chunkID derives a stable chunk ID from the source document and the chunk
// position, which makes re-ingestion an upsert
func chunkID(sourceID string, index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s#%d", sourceID, index))
}
