package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	t.Run("Creates entity with name as canonical name and sole alias", func(t *testing.T) {
		entity := NewEntity("Jeffrey Epstein", "flight_manifest")

		assert.NotEqual(t, uuid.Nil, entity.ID, "Expected a non-nil entity ID")
		assert.Equal(t, "Jeffrey Epstein", entity.CanonicalName)
		assert.Equal(t, []string{"Jeffrey Epstein"}, entity.Aliases)
		assert.Equal(t, []string{"flight_manifest"}, entity.Sources)
		assert.Empty(t, entity.MergeHistory, "New entity should have no merge history")
		assert.WithinDuration(t, time.Now(), entity.CreatedAt, 2*time.Second)
	})

	t.Run("Empty source leaves sources empty", func(t *testing.T) {
		entity := NewEntity("Acme Corp", "")

		assert.Empty(t, entity.Sources)
	})

	t.Run("IDs are unique", func(t *testing.T) {
		a := NewEntity("A", "s")
		b := NewEntity("A", "s")

		assert.NotEqual(t, a.ID, b.ID, "Two entities must never share an ID")
	})
}

func TestEntityAliasesAndSources(t *testing.T) {
	entity := NewEntity("Jeffrey Epstein", "flight_manifest")

	t.Run("AddAlias is set-like", func(t *testing.T) {
		entity.AddAlias("Epstein, Jeffrey")
		entity.AddAlias("Epstein, Jeffrey")
		entity.AddAlias("")

		assert.Equal(t, []string{"Jeffrey Epstein", "Epstein, Jeffrey"}, entity.Aliases)
		assert.True(t, entity.HasAlias("Epstein, Jeffrey"))
		assert.False(t, entity.HasAlias("J. Epstein"))
	})

	t.Run("AddSource is set-like", func(t *testing.T) {
		entity.AddSource("contact_list")
		entity.AddSource("contact_list")
		entity.AddSource("")

		assert.Equal(t, []string{"flight_manifest", "contact_list"}, entity.Sources)
		assert.True(t, entity.HasSource("contact_list"))
		assert.False(t, entity.HasSource("court_filing"))
	})
}

func TestEntityClone(t *testing.T) {
	entity := NewEntity("Jeffrey Epstein", "flight_manifest")
	entity.AddAlias("J. Epstein")
	entity.Attributes["bio"] = "financier"
	entity.MergeHistory = append(entity.MergeHistory, MergeRecord{
		AbsorbedID:   uuid.New(),
		AbsorbedName: "Epstein, Jeffrey",
		MergedAt:     time.Now(),
	})

	clone := entity.Clone()

	require.Equal(t, entity.ID, clone.ID)
	require.Equal(t, entity.Aliases, clone.Aliases)
	require.Equal(t, entity.Attributes, clone.Attributes)
	require.Equal(t, entity.MergeHistory, clone.MergeHistory)

	t.Run("Mutating the clone does not touch the original", func(t *testing.T) {
		clone.AddAlias("Jeff")
		clone.Attributes["bio"] = "changed"
		clone.MergeHistory = append(clone.MergeHistory, MergeRecord{})

		assert.False(t, entity.HasAlias("Jeff"))
		assert.Equal(t, "financier", entity.Attributes["bio"])
		assert.Len(t, entity.MergeHistory, 1)
	})
}

func TestVectorFilter(t *testing.T) {
	entityA := uuid.New()
	entityB := uuid.New()
	date := time.Date(2002, 1, 15, 0, 0, 0, 0, time.UTC)
	record := &VectorRecord{
		ChunkID:   uuid.New(),
		EntityIDs: []uuid.UUID{entityA},
		Date:      &date,
		SourceID:  "flight_001",
	}

	t.Run("Empty filter matches everything", func(t *testing.T) {
		assert.True(t, (*VectorFilter)(nil).Matches(record))
		assert.True(t, (&VectorFilter{}).Matches(record))
		assert.True(t, (&VectorFilter{}).Empty())
	})

	t.Run("Entity filter matches any tagged entity", func(t *testing.T) {
		assert.True(t, (&VectorFilter{EntityIDs: []uuid.UUID{entityA, entityB}}).Matches(record))
		assert.False(t, (&VectorFilter{EntityIDs: []uuid.UUID{entityB}}).Matches(record))
	})

	t.Run("Date range filter", func(t *testing.T) {
		from := time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2002, 2, 1, 0, 0, 0, 0, time.UTC)

		assert.True(t, (&VectorFilter{DateFrom: &from, DateTo: &to}).Matches(record))

		late := time.Date(2003, 1, 1, 0, 0, 0, 0, time.UTC)
		assert.False(t, (&VectorFilter{DateFrom: &late}).Matches(record))

		undated := &VectorRecord{ChunkID: uuid.New(), SourceID: "x"}
		assert.False(t, (&VectorFilter{DateFrom: &from}).Matches(undated), "Undated records never match a date range")
	})

	t.Run("Source filter", func(t *testing.T) {
		assert.True(t, (&VectorFilter{SourceIDs: []string{"flight_001"}}).Matches(record))
		assert.False(t, (&VectorFilter{SourceIDs: []string{"flight_002"}}).Matches(record))
	})
}
