package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivegraph/dossier/model"
)

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, entitiesDbHandler, "Expected NewEntitiesDBHandler to return a non-nil instance")
		require.NotNil(t, entitiesDbHandler.db, "Expected NewEntitiesDBHandler to have a non-nil database instance")
		require.NotNil(t, entitiesDbHandler.db.Instance, "Expected NewEntitiesDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating EntitiesDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestEntitiesUpsert(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")

	t.Run("Upsert entity roundtrip", func(t *testing.T) {
		entity := model.NewEntity("Jeffrey Epstein", "flight_log")
		entity.AddAlias("Epstein, Jeffrey")
		entity.Attributes = model.Metadata{"occupation": "financier"}

		err := entitiesDbHandler.UpsertEntity(entity)
		require.NoError(t, err, "Expected Upsert to not return an error")

		stored, err := entitiesDbHandler.SelectAllEntities()
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, entity.ID, stored[0].ID)
		assert.Equal(t, "Jeffrey Epstein", stored[0].CanonicalName)
		assert.Equal(t, []string{"Jeffrey Epstein", "Epstein, Jeffrey"}, stored[0].Aliases)
		assert.Equal(t, []string{"flight_log"}, stored[0].Sources)
		assert.Equal(t, "financier", stored[0].Attributes["occupation"])
		assert.WithinDuration(t, entity.CreatedAt, stored[0].CreatedAt, time.Second)

		// Cleanup
		err = entitiesDbHandler.DeleteEntity(entity.ID)
		require.NoError(t, err)
	})

	t.Run("Upsert replaces existing row", func(t *testing.T) {
		entity := model.NewEntity("Ghislaine Maxwell", "deposition")

		err := entitiesDbHandler.UpsertEntity(entity)
		require.NoError(t, err)

		entity.AddAlias("G. Maxwell")
		entity.AddSource("court_filing")
		err = entitiesDbHandler.UpsertEntity(entity)
		require.NoError(t, err)

		stored, err := entitiesDbHandler.SelectAllEntities()
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, []string{"Ghislaine Maxwell", "G. Maxwell"}, stored[0].Aliases)
		assert.Equal(t, []string{"deposition", "court_filing"}, stored[0].Sources)

		// Cleanup
		err = entitiesDbHandler.DeleteEntity(entity.ID)
		require.NoError(t, err)
	})

	t.Run("Merge history survives the roundtrip", func(t *testing.T) {
		absorbed := model.NewEntity("Jefrey Epstein", "news_article")
		entity := model.NewEntity("Jeffrey Epstein", "flight_log")
		entity.MergeHistory = []model.MergeRecord{{
			AbsorbedID:   absorbed.ID,
			AbsorbedName: absorbed.CanonicalName,
			MergedAt:     time.Now().UTC().Truncate(time.Millisecond),
		}}

		err := entitiesDbHandler.UpsertEntity(entity)
		require.NoError(t, err)

		stored, err := entitiesDbHandler.SelectAllEntities()
		require.NoError(t, err)
		require.Len(t, stored, 1)
		require.Len(t, stored[0].MergeHistory, 1)
		assert.Equal(t, absorbed.ID, stored[0].MergeHistory[0].AbsorbedID)
		assert.Equal(t, "Jefrey Epstein", stored[0].MergeHistory[0].AbsorbedName)

		// Cleanup
		err = entitiesDbHandler.DeleteEntity(entity.ID)
		require.NoError(t, err)
	})
}

func TestEntitiesReplaceAll(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Replace all entities with a snapshot", func(t *testing.T) {
		old := model.NewEntity("Old Entry", "deposition")
		err := entitiesDbHandler.UpsertEntity(old)
		require.NoError(t, err)

		snapshot := []*model.Entity{
			model.NewEntity("Jeffrey Epstein", "flight_log"),
			model.NewEntity("Ghislaine Maxwell", "deposition"),
		}
		err = entitiesDbHandler.ReplaceAllEntities(snapshot)
		require.NoError(t, err)

		stored, err := entitiesDbHandler.SelectAllEntities()
		require.NoError(t, err)
		require.Len(t, stored, 2)
		for _, entity := range stored {
			assert.NotEqual(t, "Old Entry", entity.CanonicalName)
		}
	})
}

func TestEntitiesForwards(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	t.Run("Upsert and select forwards", func(t *testing.T) {
		loser := uuid.New()
		winner := uuid.New()

		err := entitiesDbHandler.UpsertForward(loser, winner)
		require.NoError(t, err)

		forwards, err := entitiesDbHandler.SelectAllForwards()
		require.NoError(t, err)
		assert.Equal(t, winner, forwards[loser])
	})

	t.Run("Upsert forward overwrites the target", func(t *testing.T) {
		loser := uuid.New()
		first := uuid.New()
		second := uuid.New()

		err := entitiesDbHandler.UpsertForward(loser, first)
		require.NoError(t, err)
		err = entitiesDbHandler.UpsertForward(loser, second)
		require.NoError(t, err)

		forwards, err := entitiesDbHandler.SelectAllForwards()
		require.NoError(t, err)
		assert.Equal(t, second, forwards[loser])
	})

	t.Run("Replace all forwards with a snapshot", func(t *testing.T) {
		snapshot := map[uuid.UUID]uuid.UUID{
			uuid.New(): uuid.New(),
			uuid.New(): uuid.New(),
		}

		err := entitiesDbHandler.ReplaceAllForwards(snapshot)
		require.NoError(t, err)

		forwards, err := entitiesDbHandler.SelectAllForwards()
		require.NoError(t, err)
		assert.Equal(t, snapshot, forwards)
	})
}

func TestEntitiesResolutions(t *testing.T) {
	database := initDB(t)

	entitiesDbHandler, err := NewEntitiesDBHandler(database, true)
	require.NoError(t, err)

	entityID := uuid.New()
	otherID := uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)

	resolutions := []model.Resolution{
		{RawText: "Jeffrey Epstein", SourceID: "manifest-1", EntityID: entityID, Confidence: 0.75, Rule: model.RuleNewEntity, ResolvedAt: base},
		{RawText: "Epstein, Jeffrey", SourceID: "filing-2", EntityID: entityID, Confidence: 1.0, Rule: model.RuleExactAlias, ResolvedAt: base.Add(time.Second)},
		{RawText: "Ghislaine Maxwell", SourceID: "filing-2", EntityID: otherID, Confidence: 0.75, Rule: model.RuleNewEntity, ResolvedAt: base.Add(2 * time.Second)},
	}

	t.Run("Insert resolutions", func(t *testing.T) {
		for i := range resolutions {
			err := entitiesDbHandler.InsertResolution(&resolutions[i])
			require.NoError(t, err)
		}
	})

	t.Run("Select recent resolutions newest first", func(t *testing.T) {
		recent, err := entitiesDbHandler.SelectResolutions(2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "Ghislaine Maxwell", recent[0].RawText)
		assert.Equal(t, "Epstein, Jeffrey", recent[1].RawText)
		assert.Equal(t, model.RuleExactAlias, recent[1].Rule)
	})

	t.Run("Select resolutions by entity oldest first", func(t *testing.T) {
		byEntity, err := entitiesDbHandler.SelectResolutionsByEntity(entityID)
		require.NoError(t, err)
		require.Len(t, byEntity, 2)
		assert.Equal(t, "Jeffrey Epstein", byEntity[0].RawText)
		assert.Equal(t, entityID, byEntity[0].EntityID)
		assert.Equal(t, "Epstein, Jeffrey", byEntity[1].RawText)
	})
}
