package dossier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/core/cooccur"
	"github.com/archivegraph/dossier/core/pipeline"
	"github.com/archivegraph/dossier/core/resolve"
	"github.com/archivegraph/dossier/core/retrieval"
	"github.com/archivegraph/dossier/database"
	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
	loadSql "github.com/archivegraph/dossier/sql"
)

// Dossier ties the resolver, the co-occurrence graph, the vector index and
// the retrieval engine together behind one interface. Resolver and graph
// state live in memory and are persisted as snapshots via Save/Load; vector
// records are written through to the index directly.
type Dossier struct {
	DB       *helper.Database
	Resolver *resolve.Resolver
	Graph    *cooccur.Graph
	Index    retrieval.VectorIndex
	Engine   *retrieval.Engine
	Entities *database.EntitiesDBHandler
	Edges    *database.EdgesDBHandler
	Records  *database.RecordsDBHandler
	Pipeline *pipeline.Pipeline // Optional chunking pipeline
	Ingestor *pipeline.Ingestor
	// Logging
	log *slog.Logger
}

// NewDossier creates a Postgres-backed Dossier with default configurations
func NewDossier(config *helper.DatabaseConfiguration, embeddingDim int) (*Dossier, error) {
	return NewDossierWithConfigs(config, embeddingDim, model.DefaultResolverConfig(), model.DefaultQueryConfig())
}

// NewDossierWithConfigs creates a Postgres-backed Dossier instance with all
// handlers initialized
func NewDossierWithConfigs(config *helper.DatabaseConfiguration, embeddingDim int, resolverConfig model.ResolverConfig, queryConfig model.QueryConfig) (*Dossier, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	// Initialize database
	db := helper.NewDatabase("dossier", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers, force=false to not reload if functions already exist
	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	edges, err := database.NewEdgesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create edges handler", err)
	}

	records, err := database.NewRecordsDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create records handler", err)
	}

	d, err := newDossier(records, resolverConfig, queryConfig, logger)
	if err != nil {
		return nil, err
	}
	d.DB = db
	d.Entities = entities
	d.Edges = edges
	d.Records = records
	return d, nil
}

// NewMemoryDossier creates a Dossier on an in-memory vector index with
// default configurations. Nothing is persisted; Save and Load fail.
func NewMemoryDossier() (*Dossier, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	return newDossier(retrieval.NewMemoryIndex(), model.DefaultResolverConfig(), model.DefaultQueryConfig(), logger)
}

func newDossier(index retrieval.VectorIndex, resolverConfig model.ResolverConfig, queryConfig model.QueryConfig, logger *slog.Logger) (*Dossier, error) {
	resolver := resolve.NewResolver(resolve.NewEntityStore(), resolve.NewAliasIndex(), resolverConfig, logger)
	graph := cooccur.NewGraph()
	resolver.SetGraph(graph)

	d := &Dossier{
		Resolver: resolver,
		Graph:    graph,
		Index:    index,
		Pipeline: &pipeline.Pipeline{},
		log:      logger,
	}

	// The embedder is resolved at query time so the pipeline can be set
	// after construction
	embed := func(ctx context.Context, text string) ([]float32, error) {
		if d.Pipeline.Embedder == nil {
			return nil, helper.NewError("embed query", fmt.Errorf("pipeline not set, use SetPipeline() first"))
		}
		return d.Pipeline.Embedder(text)
	}
	d.Engine = retrieval.NewEngine(index, graph, resolver.Aliases(), embed, queryConfig, logger)

	ingestor, err := pipeline.NewIngestor(d.Pipeline, index, resolver, graph, logger)
	if err != nil {
		return nil, err
	}
	d.Ingestor = ingestor

	return d, nil
}

// Close releases the ingestion worker pool and closes the database connection
func (d *Dossier) Close() error {
	if d.Ingestor != nil {
		d.Ingestor.Release()
	}
	if d.DB != nil && d.DB.Instance != nil {
		return d.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the chunking and embedding pipeline for document processing
func (d *Dossier) SetPipeline(p *pipeline.Pipeline) {
	d.Pipeline.Chunker = p.Chunker
	d.Pipeline.Embedder = p.Embedder
}

// UseDefaultPipeline sets up the default semantic chunking and embedding pipeline.
// This uses SemanticChunker with 500 char max chunks and 0.7 similarity threshold,
// and DefaultEmbedder with the all-MiniLM-L6-v2 model (384 dimensions).
func (d *Dossier) UseDefaultPipeline() error {
	chunker := pipeline.SemanticChunker(500, 0.7)
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	d.SetPipeline(pipeline.NewPipeline(chunker, embedder))
	return nil
}

// ResolveMention resolves one raw mention to an entity ID, creating or
// merging entities as the match rules dictate. The resolution is appended
// to the database audit log when one is configured.
func (d *Dossier) ResolveMention(mention model.Mention) (model.Resolution, error) {
	resolution, err := d.Resolver.ResolveMention(mention)
	if err != nil {
		return model.Resolution{}, err
	}

	err = d.persistResolutions([]model.Resolution{resolution})
	if err != nil {
		return model.Resolution{}, err
	}
	return resolution, nil
}

// Merge merges the loser entity into the winner. Graph edges are repointed
// and any self-loop drops are written to the removal audit log.
func (d *Dossier) Merge(winnerID, loserID uuid.UUID) error {
	before := len(d.Graph.Removals())

	err := d.Resolver.Merge(winnerID, loserID)
	if err != nil {
		return err
	}

	return d.persistNewRemovals(before)
}

// PendingMerges lists merge candidates waiting for manual review
func (d *Dossier) PendingMerges() []*model.MergeCandidate {
	return d.Resolver.PendingMerges()
}

// ResolveCandidate applies a human decision to a queued merge candidate
func (d *Dossier) ResolveCandidate(candidateID uuid.UUID, decision model.MergeDecision) error {
	before := len(d.Graph.Removals())

	err := d.Resolver.ResolveCandidate(candidateID, decision)
	if err != nil {
		return err
	}

	return d.persistNewRemovals(before)
}

// AddGroup records one co-occurrence group of already-resolved entities
func (d *Dossier) AddGroup(entityIDs []uuid.UUID, date time.Time, sourceType string) {
	d.Graph.AddGroup(entityIDs, date, sourceType)
}

// IngestDocument resolves the document's mentions, chunks and embeds its
// text on the ingestion pool and records the co-occurrence group
func (d *Dossier) IngestDocument(ctx context.Context, doc model.Document) (*model.IngestResult, error) {
	if doc.Text != "" && d.Pipeline.Chunker == nil {
		return nil, helper.NewError("ingest document", fmt.Errorf("pipeline not set, use SetPipeline() first"))
	}

	result, err := d.Ingestor.IngestDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	err = d.persistResolutions(result.Resolutions)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IngestMentionGroup records co-occurring mentions that carry no text
func (d *Dossier) IngestMentionGroup(mentions []model.Mention, date time.Time, sourceType string) ([]model.Resolution, error) {
	resolutions, err := d.Ingestor.IngestMentionGroup(mentions, date, sourceType)
	if err != nil {
		return nil, err
	}

	err = d.persistResolutions(resolutions)
	if err != nil {
		return nil, err
	}
	return resolutions, nil
}

// Query runs a hybrid query over the vector index and the co-occurrence graph
func (d *Dossier) Query(ctx context.Context, request model.QueryRequest) (*model.QueryResponse, error) {
	return d.Engine.Query(ctx, request)
}

// Connection finds the shortest co-occurrence path between two entities
// given by alias. A nil path means the entities are not connected within
// maxHops.
func (d *Dossier) Connection(ctx context.Context, fromAlias, toAlias string, maxHops, minWeight int) ([]uuid.UUID, error) {
	from, ok := d.Resolver.Aliases().Resolve(fromAlias)
	if !ok {
		return nil, helper.NewError("find connection", fmt.Errorf("unknown entity %q", fromAlias))
	}
	to, ok := d.Resolver.Aliases().Resolve(toAlias)
	if !ok {
		return nil, helper.NewError("find connection", fmt.Errorf("unknown entity %q", toAlias))
	}

	return d.Graph.ShortestPath(ctx, from, to, maxHops, minWeight)
}

// Save snapshots the resolver and graph state to the database. Vector
// records are already written through and need no snapshot.
func (d *Dossier) Save() error {
	if d.Entities == nil || d.Edges == nil {
		return helper.NewError("save", fmt.Errorf("no database configured"))
	}

	err := d.Entities.ReplaceAllEntities(d.Resolver.Store().All())
	if err != nil {
		return helper.NewError("save entities", err)
	}

	err = d.Entities.ReplaceAllForwards(d.Resolver.Store().Forwards())
	if err != nil {
		return helper.NewError("save forwards", err)
	}

	err = d.Edges.ReplaceAllEdges(d.Graph.Snapshot())
	if err != nil {
		return helper.NewError("save edges", err)
	}

	d.log.Info("Saved snapshot",
		slog.Int("entities", d.Resolver.Store().Len()),
		slog.Int("edges", d.Graph.EdgeCount()))
	return nil
}

// Load restores the resolver and graph state from the database, replacing
// the in-memory state
func (d *Dossier) Load() error {
	if d.Entities == nil || d.Edges == nil {
		return helper.NewError("load", fmt.Errorf("no database configured"))
	}

	entities, err := d.Entities.SelectAllEntities()
	if err != nil {
		return helper.NewError("load entities", err)
	}

	forwards, err := d.Entities.SelectAllForwards()
	if err != nil {
		return helper.NewError("load forwards", err)
	}

	d.Resolver.Store().Restore(entities, forwards)

	err = d.Resolver.Aliases().RebuildFrom(entities)
	if err != nil {
		return helper.NewError("rebuild alias index", err)
	}

	edges, err := d.Edges.SelectAllEdges()
	if err != nil {
		return helper.NewError("load edges", err)
	}
	d.Graph.Restore(edges)

	d.log.Info("Loaded snapshot",
		slog.Int("entities", len(entities)),
		slog.Int("edges", len(edges)))
	return nil
}

// Resolutions returns the most recent entries of the persisted resolution
// audit log, newest first
func (d *Dossier) Resolutions(limit int) ([]model.Resolution, error) {
	if d.Entities == nil {
		return nil, helper.NewError("resolutions", fmt.Errorf("no database configured"))
	}
	return d.Entities.SelectResolutions(limit)
}

// ChangeIndexType changes the vector index type between HNSW and IVFFlat
func (d *Dossier) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	if d.Records == nil {
		return helper.NewError("change index type", fmt.Errorf("no database configured"))
	}
	return d.Records.ChangeIndexType(ctx, indexType, params)
}

func (d *Dossier) persistResolutions(resolutions []model.Resolution) error {
	if d.Entities == nil {
		return nil
	}

	for i := range resolutions {
		err := d.Entities.InsertResolution(&resolutions[i])
		if err != nil {
			return helper.NewError("persist resolution", err)
		}
	}
	return nil
}

func (d *Dossier) persistNewRemovals(before int) error {
	if d.Edges == nil {
		return nil
	}

	removals := d.Graph.Removals()
	for _, removal := range removals[before:] {
		err := d.Edges.InsertEdgeRemoval(removal)
		if err != nil {
			return helper.NewError("persist edge removal", err)
		}
	}
	return nil
}
