// Package retrieval fuses semantic similarity and graph proximity into one
// ranked result list over the vector index and the co-occurrence graph.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

var (
	// ErrEmptyQuery indicates a query with neither text nor entities
	ErrEmptyQuery = errors.New("query needs text or entities")
	// ErrBackendUnavailable indicates the vector index could not be reached
	ErrBackendUnavailable = errors.New("vector backend unavailable")
	// ErrFilterExhausted indicates the whole index was scanned and the
	// filter still left fewer hits than requested
	ErrFilterExhausted = errors.New("filter exhausted the index")
)

// VectorIndex is the ANN store behind the query engine. Implementations only
// need unfiltered top-k search; metadata filtering is layered on top by
// FilteredIndex through over-fetching.
type VectorIndex interface {
	// Upsert inserts records, replacing any existing record with the same
	// chunk ID
	Upsert(ctx context.Context, records []*model.VectorRecord) error
	// Search returns the top-k records by similarity, best first, with
	// scores in [0,1]
	Search(ctx context.Context, embedding []float32, limit int) ([]*model.VectorHit, error)
	// ByEntity returns every record tagged with the entity
	ByEntity(ctx context.Context, entityID uuid.UUID) ([]*model.VectorRecord, error)
	// Count returns the number of indexed records
	Count(ctx context.Context) (int, error)
}

// FilteredIndex adds metadata filtering to a VectorIndex that only supports
// unfiltered top-k. It over-fetches by a configurable factor, post-filters,
// and doubles the fetch size until the limit is met or the index is
// exhausted.
type FilteredIndex struct {
	index  VectorIndex
	factor int
}

// NewFilteredIndex wraps the index with over-fetch filtering. A factor
// below 2 is raised to 2.
func NewFilteredIndex(index VectorIndex, factor int) *FilteredIndex {
	if factor < 2 {
		factor = 2
	}
	return &FilteredIndex{index: index, factor: factor}
}

// Search returns up to limit filtered hits, best first. When the whole index
// was scanned and the filter still left fewer than limit hits, the partial
// hits are returned together with a wrapped ErrFilterExhausted; the caller
// decides whether to serve them anyway.
func (f *FilteredIndex) Search(ctx context.Context, embedding []float32, filter *model.VectorFilter, limit int) ([]*model.VectorHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if filter.Empty() {
		return f.index.Search(ctx, embedding, limit)
	}

	total, err := f.index.Count(ctx)
	if err != nil {
		return nil, helper.NewError("filtered search", err)
	}

	fetch := limit * f.factor
	for {
		if fetch > total {
			fetch = total
		}

		raw, err := f.index.Search(ctx, embedding, fetch)
		if err != nil {
			return nil, helper.NewError("filtered search", err)
		}

		filtered := make([]*model.VectorHit, 0, limit)
		for _, hit := range raw {
			if filter.Matches(hit.Record) {
				filtered = append(filtered, hit)
				if len(filtered) == limit {
					return filtered, nil
				}
			}
		}

		if fetch >= total {
			return filtered, fmt.Errorf("%w: %d of %d requested results", ErrFilterExhausted, len(filtered), limit)
		}
		fetch *= 2
	}
}
