package resolve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// ErrEntityNotFound indicates an entity ID that was never assigned
var ErrEntityNotFound = errors.New("entity not found")

// EntityStore is the registry of resolved entities. IDs are opaque handles
// assigned once and never reused; when an entity is merged away its ID stays
// resolvable through a forwarding entry to the surviving entity. Reads are
// concurrent, writes are serialized by the store lock.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]*model.Entity
	forwards map[uuid.UUID]uuid.UUID // merged-away ID -> surviving ID

	// append-only audit log of mention resolutions
	resolutions []model.Resolution
}

// NewEntityStore creates an empty entity store
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: map[uuid.UUID]*model.Entity{},
		forwards: map[uuid.UUID]uuid.UUID{},
	}
}

// Put inserts or replaces an entity under its own ID
func (s *EntityStore) Put(entity *model.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = entity
}

// Resolve follows forwarding entries to the surviving ID. A never-assigned
// ID resolves to itself with ok=false.
func (s *EntityStore) Resolve(id uuid.UUID) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

func (s *EntityStore) resolveLocked(id uuid.UUID) (uuid.UUID, bool) {
	seen := map[uuid.UUID]bool{}
	for {
		if _, ok := s.entities[id]; ok {
			return id, true
		}
		next, ok := s.forwards[id]
		if !ok || seen[next] {
			return id, false
		}
		seen[id] = true
		id = next
	}
}

// Get returns the live entity for id, following forwards
func (s *EntityStore) Get(id uuid.UUID) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resolved, ok := s.resolveLocked(id)
	if !ok {
		return nil, helper.NewError("get entity", fmt.Errorf("%w: %s", ErrEntityNotFound, id))
	}
	return s.entities[resolved], nil
}

// Forward records that from was merged into to and drops from's own entry.
// Called by the resolver under its merge serialization.
func (s *EntityStore) Forward(from, to uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, from)
	s.forwards[from] = to
}

// All returns the live entities, in no particular order
func (s *EntityStore) All() []*model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

// Len returns the number of live entities
func (s *EntityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// RecordResolution appends one mention resolution to the audit log
func (s *EntityStore) RecordResolution(r model.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions = append(s.resolutions, r)
}

// Resolutions returns a copy of the mention-resolution audit log
func (s *EntityStore) Resolutions() []model.Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Resolution(nil), s.resolutions...)
}

// History returns the merge history of the live entity owning id
func (s *EntityStore) History(id uuid.UUID) ([]model.MergeRecord, error) {
	entity, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return append([]model.MergeRecord(nil), entity.MergeHistory...), nil
}

// Restore replaces the store contents from persisted state
func (s *EntityStore) Restore(entities []*model.Entity, forwards map[uuid.UUID]uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[uuid.UUID]*model.Entity, len(entities))
	for _, e := range entities {
		s.entities[e.ID] = e
	}
	s.forwards = make(map[uuid.UUID]uuid.UUID, len(forwards))
	for k, v := range forwards {
		s.forwards[k] = v
	}
}

// Forwards returns a copy of the forwarding table for persistence
func (s *EntityStore) Forwards() map[uuid.UUID]uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]uuid.UUID, len(s.forwards))
	for k, v := range s.forwards {
		out[k] = v
	}
	return out
}
