package resolve

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// ErrCandidateNotFound indicates a review candidate ID that is not queued
var ErrCandidateNotFound = errors.New("merge candidate not found")

// ReviewQueue holds merge candidates that need a human decision. Nothing in
// the queue is applied until ResolveCandidate is called with a decision.
type ReviewQueue struct {
	mu      sync.RWMutex
	pending map[uuid.UUID]*model.MergeCandidate
}

// NewReviewQueue creates an empty review queue
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{pending: map[uuid.UUID]*model.MergeCandidate{}}
}

// Push queues a candidate
func (q *ReviewQueue) Push(candidate *model.MergeCandidate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[candidate.ID] = candidate
}

// Pending returns the queued candidates, oldest first
func (q *ReviewQueue) Pending() []*model.MergeCandidate {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*model.MergeCandidate, 0, len(q.pending))
	for _, c := range q.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Len returns the number of queued candidates
func (q *ReviewQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Take removes and returns the candidate with the given ID
func (q *ReviewQueue) Take(id uuid.UUID) (*model.MergeCandidate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	candidate, ok := q.pending[id]
	if !ok {
		return nil, helper.NewError("take merge candidate", fmt.Errorf("%w: %s", ErrCandidateNotFound, id))
	}
	delete(q.pending, id)
	return candidate, nil
}
