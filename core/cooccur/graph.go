// Package cooccur maintains the undirected entity co-occurrence graph.
// Nodes are entity IDs, edges carry a co-occurrence count, a date range and
// a per-source breakdown. Writes are serialized, reads run concurrently.
package cooccur

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/model"
)

// Graph is the in-memory co-occurrence graph. Both directions of an edge
// share one *model.CoocEdge, so a count update is visible from either
// endpoint.
type Graph struct {
	mu       sync.RWMutex
	adjacent map[uuid.UUID]map[uuid.UUID]*model.CoocEdge
	removals []model.EdgeRemoval
}

// NewGraph creates an empty co-occurrence graph
func NewGraph() *Graph {
	return &Graph{adjacent: map[uuid.UUID]map[uuid.UUID]*model.CoocEdge{}}
}

// orderPair returns the two IDs in canonical byte order, low first
func orderPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// AddGroup records one co-occurrence event for every unordered pair of the
// given entities. Duplicate IDs in the group are collapsed first so no
// self-pairs arise. A zero date leaves the edge's date range untouched;
// undated evidence still counts.
func (g *Graph) AddGroup(entityIDs []uuid.UUID, date time.Time, sourceType string) {
	unique := make([]uuid.UUID, 0, len(entityIDs))
	seen := map[uuid.UUID]bool{}
	for _, id := range entityIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) < 2 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			g.bumpLocked(unique[i], unique[j], date, sourceType)
		}
	}
}

// bumpLocked increments one pair edge, creating it on first sighting.
// Callers hold the write lock.
func (g *Graph) bumpLocked(x, y uuid.UUID, date time.Time, sourceType string) {
	a, b := orderPair(x, y)

	edge := g.adjacent[a][b]
	if edge == nil {
		edge = &model.CoocEdge{A: a, B: b, SourceBreakdown: map[string]int{}}
		g.linkLocked(edge)
	}

	edge.Count++
	if sourceType != "" {
		edge.SourceBreakdown[sourceType]++
	}
	if !date.IsZero() {
		if edge.FirstDate.IsZero() || date.Before(edge.FirstDate) {
			edge.FirstDate = date
		}
		if date.After(edge.LastDate) {
			edge.LastDate = date
		}
	}
}

// linkLocked inserts the edge into both adjacency rows
func (g *Graph) linkLocked(edge *model.CoocEdge) {
	if g.adjacent[edge.A] == nil {
		g.adjacent[edge.A] = map[uuid.UUID]*model.CoocEdge{}
	}
	if g.adjacent[edge.B] == nil {
		g.adjacent[edge.B] = map[uuid.UUID]*model.CoocEdge{}
	}
	g.adjacent[edge.A][edge.B] = edge
	g.adjacent[edge.B][edge.A] = edge
}

// unlinkLocked removes the edge from both adjacency rows
func (g *Graph) unlinkLocked(edge *model.CoocEdge) {
	delete(g.adjacent[edge.A], edge.B)
	delete(g.adjacent[edge.B], edge.A)
	if len(g.adjacent[edge.A]) == 0 {
		delete(g.adjacent, edge.A)
	}
	if len(g.adjacent[edge.B]) == 0 {
		delete(g.adjacent, edge.B)
	}
}

// Neighbors returns the adjacency list of an entity, strongest edge first.
// Edges below minWeight are filtered out. Unknown entities yield an empty
// list, not an error: an entity with no co-occurrences is a valid state.
func (g *Graph) Neighbors(entityID uuid.UUID, minWeight int) []model.Neighbor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	row := g.adjacent[entityID]
	out := make([]model.Neighbor, 0, len(row))
	for other, edge := range row {
		if edge.Count < minWeight {
			continue
		}
		out = append(out, model.Neighbor{EntityID: other, Weight: edge.Count, Edge: edge.Clone()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return bytes.Compare(out[i].EntityID[:], out[j].EntityID[:]) < 0
	})
	return out
}

// Weight returns the co-occurrence count between two entities, 0 if they
// never co-occurred
func (g *Graph) Weight(a, b uuid.UUID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if edge := g.adjacent[a][b]; edge != nil {
		return edge.Count
	}
	return 0
}

// ShortestPath finds a shortest connection between two entities by BFS,
// following only edges with count >= minWeight and at most maxHops edges.
// The returned path includes both endpoints; a nil path means no connection
// within the hop limit. The context is checked once per BFS layer so long
// traversals over dense graphs stay cancelable.
func (g *Graph) ShortestPath(ctx context.Context, from, to uuid.UUID, maxHops int, minWeight int) ([]uuid.UUID, error) {
	if from == to {
		return []uuid.UUID{from}, nil
	}
	if maxHops < 1 {
		return nil, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[uuid.UUID]bool{from: true}
	parent := map[uuid.UUID]uuid.UUID{}
	frontier := []uuid.UUID{from}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []uuid.UUID
		for _, current := range frontier {
			for neighbor, edge := range g.adjacent[current] {
				if visited[neighbor] || edge.Count < minWeight {
					continue
				}
				visited[neighbor] = true
				parent[neighbor] = current

				if neighbor == to {
					return rebuildPath(parent, from, to), nil
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return nil, nil
}

// rebuildPath walks the BFS parent map back from to and reverses
func rebuildPath(parent map[uuid.UUID]uuid.UUID, from, to uuid.UUID) []uuid.UUID {
	path := []uuid.UUID{to}
	for current := to; current != from; {
		current = parent[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// RepointEntity moves every edge of the losing entity onto the winner after
// a merge. A loser-winner edge becomes a self-loop and is dropped with an
// audit entry; a loser edge parallel to an existing winner edge is combined
// into it (counts add, date ranges union, breakdowns add).
func (g *Graph) RepointEntity(loser, winner uuid.UUID) []model.EdgeRemoval {
	if loser == winner {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []model.EdgeRemoval
	for other, edge := range g.adjacent[loser] {
		g.unlinkLocked(edge)

		if other == winner {
			removal := model.EdgeRemoval{
				Edge:      edge.Clone(),
				Reason:    "merge turned edge into self-loop",
				RemovedAt: time.Now(),
			}
			removed = append(removed, removal)
			g.removals = append(g.removals, removal)
			continue
		}

		a, b := orderPair(winner, other)
		if existing := g.adjacent[winner][other]; existing != nil {
			combineLocked(existing, edge)
			continue
		}

		edge.A, edge.B = a, b
		g.linkLocked(edge)
	}

	return removed
}

// combineLocked folds src into dst: counts add, date ranges union,
// per-source breakdowns add
func combineLocked(dst, src *model.CoocEdge) {
	dst.Count += src.Count
	if !src.FirstDate.IsZero() && (dst.FirstDate.IsZero() || src.FirstDate.Before(dst.FirstDate)) {
		dst.FirstDate = src.FirstDate
	}
	if src.LastDate.After(dst.LastDate) {
		dst.LastDate = src.LastDate
	}
	for source, count := range src.SourceBreakdown {
		dst.SourceBreakdown[source] += count
	}
}

// Removals returns a copy of the audited edge drops
func (g *Graph) Removals() []model.EdgeRemoval {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]model.EdgeRemoval(nil), g.removals...)
}

// EdgeCount returns the number of distinct edges in the graph
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, row := range g.adjacent {
		total += len(row)
	}
	return total / 2
}

// Snapshot returns a deep copy of every edge for persistence
func (g *Graph) Snapshot() []*model.CoocEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*model.CoocEdge, 0, len(g.adjacent))
	for a, row := range g.adjacent {
		for b, edge := range row {
			// Emit each shared edge once, from its low endpoint
			if a == edge.A && b == edge.B {
				out = append(out, edge.Clone())
			}
		}
	}
	return out
}

// Restore replaces the graph contents from persisted edges
func (g *Graph) Restore(edges []*model.CoocEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.adjacent = map[uuid.UUID]map[uuid.UUID]*model.CoocEdge{}
	for _, edge := range edges {
		clone := edge.Clone()
		clone.A, clone.B = orderPair(clone.A, clone.B)
		if clone.SourceBreakdown == nil {
			clone.SourceBreakdown = map[string]int{}
		}
		g.linkLocked(clone)
	}
}
