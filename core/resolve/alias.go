package resolve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/archivegraph/dossier/core/canon"
	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

// ErrAliasConflict indicates an alias was registered for a second entity
// outside of a merge. This is a caller bug: the resolver must never let two
// live entities claim the same alias.
var ErrAliasConflict = errors.New("alias already registered to a different entity")

// AliasIndex maps every known surface form to its entity ID. Lookups are
// case-insensitive through the canonicalizer's comparison key; the original
// display alias is kept alongside. The index is derived state and can be
// rebuilt from the authoritative entity set at any time.
type AliasIndex struct {
	mu      sync.RWMutex
	byKey   map[canon.Key]uuid.UUID
	display map[canon.Key]string
}

// NewAliasIndex creates an empty alias index
func NewAliasIndex() *AliasIndex {
	return &AliasIndex{
		byKey:   map[canon.Key]uuid.UUID{},
		display: map[canon.Key]string{},
	}
}

// Resolve looks up the entity owning the alias, if any
func (idx *AliasIndex) Resolve(alias string) (uuid.UUID, bool) {
	key := canon.Canonicalize(alias)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	id, ok := idx.byKey[key]
	return id, ok
}

// Register binds the alias to the entity. Registering an alias that already
// points at a different entity returns ErrAliasConflict; repointing during a
// merge goes through Repoint instead.
func (idx *AliasIndex) Register(alias string, entityID uuid.UUID) error {
	key := canon.Canonicalize(alias)
	if key == "" {
		return helper.NewError("register alias", fmt.Errorf("alias %q canonicalizes to nothing", alias))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.byKey[key]; ok && existing != entityID {
		return helper.NewError("register alias",
			fmt.Errorf("%w: %q held by %s, registered for %s", ErrAliasConflict, alias, existing, entityID))
	}

	idx.byKey[key] = entityID
	if _, ok := idx.display[key]; !ok {
		idx.display[key] = alias
	}
	return nil
}

// Repoint atomically moves every alias of from onto to. Only merges call this.
func (idx *AliasIndex) Repoint(from, to uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for key, id := range idx.byKey {
		if id == from {
			idx.byKey[key] = to
		}
	}
}

// Display returns the stored display form of an alias key, or the raw input
// when the alias is unknown
func (idx *AliasIndex) Display(alias string) string {
	key := canon.Canonicalize(alias)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if d, ok := idx.display[key]; ok {
		return d
	}
	return alias
}

// Len returns the number of distinct alias keys
func (idx *AliasIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byKey)
}

// RebuildFrom discards the index and rebuilds it from the entity set.
// Conflicting claims surface as ErrAliasConflict, naming the offending alias.
func (idx *AliasIndex) RebuildFrom(entities []*model.Entity) error {
	fresh := map[canon.Key]uuid.UUID{}
	display := map[canon.Key]string{}

	for _, entity := range entities {
		for _, alias := range entity.Aliases {
			key := canon.Canonicalize(alias)
			if key == "" {
				continue
			}
			if existing, ok := fresh[key]; ok && existing != entity.ID {
				return helper.NewError("rebuild alias index",
					fmt.Errorf("%w: %q claimed by %s and %s", ErrAliasConflict, alias, existing, entity.ID))
			}
			fresh[key] = entity.ID
			if _, ok := display[key]; !ok {
				display[key] = alias
			}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byKey = fresh
	idx.display = display
	return nil
}

// Keys returns every alias key currently in the index together with its
// entity ID. Used by the resolver to build candidate sets.
func (idx *AliasIndex) Keys() map[canon.Key]uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[canon.Key]uuid.UUID, len(idx.byKey))
	for k, v := range idx.byKey {
		out[k] = v
	}
	return out
}
