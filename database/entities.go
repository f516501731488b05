package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
	loadSql "github.com/archivegraph/dossier/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(entity *model.Entity) error
	DeleteEntity(id uuid.UUID) error
	SelectAllEntities() ([]*model.Entity, error)
	ReplaceAllEntities(entities []*model.Entity) error
	UpsertForward(oldID uuid.UUID, newID uuid.UUID) error
	SelectAllForwards() (map[uuid.UUID]uuid.UUID, error)
	ReplaceAllForwards(forwards map[uuid.UUID]uuid.UUID) error
	InsertResolution(resolution *model.Resolution) error
	SelectResolutions(limit int) ([]model.Resolution, error)
	SelectResolutionsByEntity(entityID uuid.UUID) ([]model.Resolution, error)
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities', 'entity_forwards' and 'resolutions'
// tables in the database. If the tables already exist, it does not create
// them again. It also creates all necessary indexes.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// UpsertEntity writes the entity snapshot, replacing an existing row with
// the same ID
func (h *EntitiesDBHandler) UpsertEntity(entity *model.Entity) error {
	history, err := json.Marshal(entity.MergeHistory)
	if err != nil {
		return helper.NewError("marshal merge history", err)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_entity($1, $2, $3, $4, $5, $6, $7)`,
		entity.ID,
		entity.CanonicalName,
		pq.Array(entity.Aliases),
		pq.Array(entity.Sources),
		history,
		entity.Attributes,
		entity.CreatedAt,
	)

	return scanEntity(row, entity)
}

// DeleteEntity deletes an entity by ID
func (h *EntitiesDBHandler) DeleteEntity(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectAllEntities retrieves every stored entity
func (h *EntitiesDBHandler) SelectAllEntities() ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_all_entities()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, err
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// ReplaceAllEntities replaces the stored entity set with the given snapshot
func (h *EntitiesDBHandler) ReplaceAllEntities(entities []*model.Entity) error {
	_, err := h.db.Instance.Exec(`SELECT delete_all_entities()`)
	if err != nil {
		return helper.NewError("exec", err)
	}

	for _, entity := range entities {
		err := h.UpsertEntity(entity)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpsertForward records that oldID now forwards to newID
func (h *EntitiesDBHandler) UpsertForward(oldID uuid.UUID, newID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT upsert_forward($1, $2)`,
		oldID,
		newID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectAllForwards retrieves the complete merge forwarding table
func (h *EntitiesDBHandler) SelectAllForwards() (map[uuid.UUID]uuid.UUID, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_all_forwards()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	forwards := map[uuid.UUID]uuid.UUID{}
	for rows.Next() {
		var oldID, newID uuid.UUID
		err := rows.Scan(&oldID, &newID)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		forwards[oldID] = newID
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return forwards, nil
}

// ReplaceAllForwards replaces the stored forwarding table with the given snapshot
func (h *EntitiesDBHandler) ReplaceAllForwards(forwards map[uuid.UUID]uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_all_forwards()`)
	if err != nil {
		return helper.NewError("exec", err)
	}

	for oldID, newID := range forwards {
		err := h.UpsertForward(oldID, newID)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertResolution appends one resolution to the audit log
func (h *EntitiesDBHandler) InsertResolution(resolution *model.Resolution) error {
	_, err := h.db.Instance.Exec(
		`SELECT insert_resolution($1, $2, $3, $4, $5, $6)`,
		resolution.RawText,
		resolution.SourceID,
		resolution.EntityID,
		resolution.Confidence,
		string(resolution.Rule),
		resolution.ResolvedAt,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectResolutions retrieves the most recent resolutions, newest first
func (h *EntitiesDBHandler) SelectResolutions(limit int) ([]model.Resolution, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_resolutions($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanResolutions(rows)
}

// SelectResolutionsByEntity retrieves all resolutions for one entity, oldest first
func (h *EntitiesDBHandler) SelectResolutionsByEntity(entityID uuid.UUID) ([]model.Resolution, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_resolutions_by_entity($1)`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanResolutions(rows)
}

// rowScanner covers sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner, entity *model.Entity) error {
	var history []byte
	err := row.Scan(
		&entity.ID,
		&entity.CanonicalName,
		pq.Array(&entity.Aliases),
		pq.Array(&entity.Sources),
		&history,
		&entity.Attributes,
		&entity.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	entity.MergeHistory = nil
	err = json.Unmarshal(history, &entity.MergeHistory)
	if err != nil {
		return helper.NewError("unmarshal merge history", err)
	}
	return nil
}

func scanResolutions(rows *sql.Rows) ([]model.Resolution, error) {
	var resolutions []model.Resolution
	for rows.Next() {
		var id int64
		var rule string
		resolution := model.Resolution{}
		err := rows.Scan(
			&id,
			&resolution.RawText,
			&resolution.SourceID,
			&resolution.EntityID,
			&resolution.Confidence,
			&rule,
			&resolution.ResolvedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		resolution.Rule = model.MatchRule(rule)
		resolutions = append(resolutions, resolution)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return resolutions, nil
}
