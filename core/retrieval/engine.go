package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// EmbedFunc turns query text into an embedding vector
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// AliasResolver maps entity alias strings to entity IDs.
// Implemented by the resolver's alias index.
type AliasResolver interface {
	Resolve(alias string) (uuid.UUID, bool)
}

// Grapher is the co-occurrence adjacency view the engine needs.
// Implemented by the co-occurrence graph.
type Grapher interface {
	Neighbors(entityID uuid.UUID, minWeight int) []model.Neighbor
}

// Engine runs hybrid queries: semantic similarity from the vector index and
// relationship proximity from the co-occurrence graph, fused with an
// alpha-weighted sum. The two signals are gathered concurrently; the graph
// side degrades to boost 0 on timeout, the vector side fails the query.
type Engine struct {
	index   *FilteredIndex
	graph   Grapher
	aliases AliasResolver
	embed   EmbedFunc
	config  model.QueryConfig
	log     *slog.Logger
}

// NewEngine creates a query engine over the given index and graph
func NewEngine(index VectorIndex, graph Grapher, aliases AliasResolver, embed EmbedFunc, config model.QueryConfig, logger *slog.Logger) *Engine {
	return &Engine{
		index:   NewFilteredIndex(index, config.OverfetchFactor),
		graph:   graph,
		aliases: aliases,
		embed:   embed,
		config:  config,
		log:     logger,
	}
}

// Query runs one hybrid query. Results are ranked by
// alpha*semantic + (1-alpha)*graph boost; queries without text rank purely
// by graph boost over the filtered entities' records.
func (e *Engine) Query(ctx context.Context, request model.QueryRequest) (*model.QueryResponse, error) {
	text := strings.TrimSpace(request.Text)
	if text == "" && len(request.Entities) == 0 {
		return nil, helper.NewError("query", ErrEmptyQuery)
	}

	limit := request.Limit
	if limit <= 0 {
		limit = e.config.Limit
	}

	response := &model.QueryResponse{}

	entityIDs := e.resolveEntities(request.Entities, response)
	if text == "" && len(entityIDs) == 0 {
		// Every requested entity was unknown, nothing to rank
		return response, nil
	}

	filter := &model.VectorFilter{
		EntityIDs: entityIDs,
		DateFrom:  request.DateFrom,
		DateTo:    request.DateTo,
		SourceIDs: request.Sources,
	}

	var (
		hits      []*model.VectorHit
		exhausted bool
		proximity map[uuid.UUID]float64
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		vctx, cancel := context.WithTimeout(groupCtx, e.config.VectorTimeout)
		defer cancel()

		var err error
		if text == "" {
			hits, err = e.recordsForEntities(vctx, entityIDs, filter)
		} else {
			hits, exhausted, err = e.searchWithRetry(vctx, text, filter, limit)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil
	})

	if e.graph != nil && len(entityIDs) > 0 {
		group.Go(func() error {
			gctx, cancel := context.WithTimeout(groupCtx, e.config.GraphTimeout)
			defer cancel()

			weights, err := e.proximityWeights(gctx, entityIDs)
			if err != nil {
				// Graph degradation is survivable, the query is not failed
				response.GraphDegraded = true
				response.Warnings = append(response.Warnings, "graph signal timed out, results ranked without graph boost")
				e.log.Warn("Graph signal degraded", slog.Any("error", err))
				return nil
			}
			proximity = weights
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, helper.NewError("query fan-out", err)
	}

	if exhausted && len(hits) < limit {
		response.Warnings = append(response.Warnings,
			fmt.Sprintf("filter left only %d of %d requested results", len(hits), limit))
	}

	response.Results = e.fuse(hits, proximity, text != "", limit)
	return response, nil
}

// resolveEntities maps alias strings to entity IDs, collecting a warning for
// every alias the index does not know
func (e *Engine) resolveEntities(aliases []string, response *model.QueryResponse) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(aliases))
	seen := map[uuid.UUID]bool{}

	for _, alias := range aliases {
		id, ok := e.aliases.Resolve(alias)
		if !ok {
			response.Warnings = append(response.Warnings, fmt.Sprintf("unknown entity %q", alias))
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// searchWithRetry embeds the query text and runs the filtered ANN search,
// retrying transient backend failures. Timeouts are not retried, and filter
// exhaustion is not a failure: the partial hits are kept and the condition
// is reported through the exhausted flag.
func (e *Engine) searchWithRetry(ctx context.Context, text string, filter *model.VectorFilter, limit int) ([]*model.VectorHit, bool, error) {
	var (
		hits      []*model.VectorHit
		exhausted bool
	)

	err := helper.RetryWithBackoff(ctx, e.config.MaxRetries, e.config.RetryBackoff, func(ctx context.Context) error {
		embedding, err := e.embed(ctx, text)
		if err != nil {
			return err
		}
		hits, err = e.index.Search(ctx, embedding, filter, limit)
		if errors.Is(err, ErrFilterExhausted) {
			exhausted = true
			return nil
		}
		return err
	})
	return hits, exhausted, err
}

// recordsForEntities gathers the records tagged with any of the query
// entities for entities-only queries. Scores stay zero; ranking comes from
// the graph boost alone.
func (e *Engine) recordsForEntities(ctx context.Context, entityIDs []uuid.UUID, filter *model.VectorFilter) ([]*model.VectorHit, error) {
	seen := map[uuid.UUID]bool{}
	var hits []*model.VectorHit

	for _, entityID := range entityIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := e.index.index.ByEntity(ctx, entityID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if seen[record.ChunkID] || !filter.Matches(record) {
				continue
			}
			seen[record.ChunkID] = true
			hits = append(hits, &model.VectorHit{Record: record})
		}
	}
	return hits, nil
}

// proximityWeights spreads each query entity's co-occurrence weight over the
// graph up to MaxHops, discounted by hop distance. The map is raw weight per
// entity; normalization happens during fusion over the actual candidate set.
func (e *Engine) proximityWeights(ctx context.Context, entityIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	weights := map[uuid.UUID]float64{}

	for _, root := range entityIDs {
		visited := map[uuid.UUID]bool{root: true}
		frontier := []uuid.UUID{root}

		for hop := 1; hop <= e.config.MaxHops && len(frontier) > 0; hop++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var next []uuid.UUID
			for _, current := range frontier {
				for _, neighbor := range e.graph.Neighbors(current, e.config.MinEdgeWeight) {
					if visited[neighbor.EntityID] {
						continue
					}
					visited[neighbor.EntityID] = true
					weights[neighbor.EntityID] += float64(neighbor.Weight) / float64(hop)
					next = append(next, neighbor.EntityID)
				}
			}
			frontier = next
		}

		// A record tagged with the query entity itself gets the strongest
		// possible graph signal
		weights[root] = weights[root] + selfWeight(weights)
	}

	return weights, nil
}

// selfWeight returns a weight guaranteed to top every accumulated neighbor
// weight so far
func selfWeight(weights map[uuid.UUID]float64) float64 {
	max := 1.0
	for _, w := range weights {
		if w > max {
			max = w
		}
	}
	return max
}

// fuse combines the semantic hits with the graph proximity weights into the
// final ranking. Graph boosts are normalized to [0,1] over the candidate set
// so alpha weighs two like-scaled signals.
func (e *Engine) fuse(hits []*model.VectorHit, proximity map[uuid.UUID]float64, hasText bool, limit int) []*model.RankedResult {
	alpha := e.config.Alpha
	if !hasText {
		// No semantic signal to weigh against
		alpha = 0
	}

	rawBoosts := make([]float64, len(hits))
	maxBoost := 0.0
	for i, hit := range hits {
		for _, entityID := range hit.Record.EntityIDs {
			rawBoosts[i] += proximity[entityID]
		}
		if rawBoosts[i] > maxBoost {
			maxBoost = rawBoosts[i]
		}
	}

	results := make([]*model.RankedResult, 0, len(hits))
	for i, hit := range hits {
		boost := 0.0
		if maxBoost > 0 {
			boost = rawBoosts[i] / maxBoost
		}

		result := &model.RankedResult{
			Record:        hit.Record,
			SemanticScore: hit.Score,
			GraphBoost:    boost,
			FinalScore:    alpha*hit.Score + (1-alpha)*boost,
		}
		if hasText {
			result.Signals = append(result.Signals, model.SignalSemantic)
		}
		if boost > 0 {
			result.Signals = append(result.Signals, model.SignalGraph)
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Record.ChunkID.String() < results[j].Record.ChunkID.String()
	})

	if limit < len(results) {
		results = results[:limit]
	}
	return results
}

// IsUnavailable reports whether the error means the vector backend could not
// serve the query
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
