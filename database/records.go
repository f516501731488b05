package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
	loadSql "github.com/archivegraph/dossier/sql"
)

// RecordsDBHandlerFunctions defines the interface for Records database operations.
// It includes the vector index operations used by the retrieval engine.
type RecordsDBHandlerFunctions interface {
	Upsert(ctx context.Context, records []*model.VectorRecord) error
	Search(ctx context.Context, embedding []float32, limit int) ([]*model.VectorHit, error)
	ByEntity(ctx context.Context, entityID uuid.UUID) ([]*model.VectorRecord, error)
	Count(ctx context.Context) (int, error)
	DeleteRecord(chunkID uuid.UUID) error
	DeleteBySource(sourceID string) error
}

// RecordsDBHandler handles vector record database operations on pgvector.
// It satisfies the retrieval engine's vector index contract, so it can back
// the hybrid query path directly.
type RecordsDBHandler struct {
	db *helper.Database
}

// NewRecordsDBHandler creates a new records database handler.
// It initializes the database connection and loads record-related SQL functions.
// The embedding dimension is fixed when the table is first created.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRecordsDBHandler(db *helper.Database, embeddingDim int, force bool) (*RecordsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	recordsDbHandler := &RecordsDBHandler{
		db: db,
	}

	err := loadSql.LoadRecordsSql(recordsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load records sql", err)
	}

	err = recordsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RecordsDBHandler")

	return recordsDbHandler, nil
}

// CreateTable creates the 'records' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary extensions and indexes.
func (h *RecordsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_records($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing records table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table records")

	return nil
}

// Upsert writes the records, replacing existing rows with the same chunk ID
func (h *RecordsDBHandler) Upsert(ctx context.Context, records []*model.VectorRecord) error {
	for _, record := range records {
		var date sql.NullTime
		if record.Date != nil {
			date = sql.NullTime{Time: *record.Date, Valid: true}
		}

		_, err := h.db.Instance.ExecContext(ctx,
			`SELECT upsert_record($1, $2, $3, $4, $5, $6, $7)`,
			record.ChunkID,
			record.Content,
			pq.Array(record.Embedding),
			pq.Array(uuidStrings(record.EntityIDs)),
			date,
			record.SourceID,
			record.CreatedAt,
		)
		if err != nil {
			return helper.NewError("exec", err)
		}
	}
	return nil
}

// Search runs an ANN query ordered by cosine distance and returns hits with
// similarity scores in [0, 1]
func (h *RecordsDBHandler) Search(ctx context.Context, embedding []float32, limit int) ([]*model.VectorHit, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("search records", fmt.Errorf("query embedding is empty"))
	}

	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM search_records($1, $2)`,
		pgvector.NewVector(embedding),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var hits []*model.VectorHit
	for rows.Next() {
		record := &model.VectorRecord{}
		hit := &model.VectorHit{Record: record}
		var date sql.NullTime
		var entityIDs []string
		err := rows.Scan(
			&record.ChunkID,
			&record.Content,
			pq.Array(&record.Embedding),
			pq.Array(&entityIDs),
			&date,
			&record.SourceID,
			&record.CreatedAt,
			&hit.Score,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		record.EntityIDs, err = parseUUIDs(entityIDs)
		if err != nil {
			return nil, err
		}
		if date.Valid {
			record.Date = &date.Time
		}

		hits = append(hits, hit)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return hits, nil
}

// ByEntity retrieves all records tagged with the entity, oldest first
func (h *RecordsDBHandler) ByEntity(ctx context.Context, entityID uuid.UUID) ([]*model.VectorRecord, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_records_by_entity($1)`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var records []*model.VectorRecord
	for rows.Next() {
		record := &model.VectorRecord{}
		var date sql.NullTime
		var entityIDs []string
		err := rows.Scan(
			&record.ChunkID,
			&record.Content,
			pq.Array(&record.Embedding),
			pq.Array(&entityIDs),
			&date,
			&record.SourceID,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		record.EntityIDs, err = parseUUIDs(entityIDs)
		if err != nil {
			return nil, err
		}
		if date.Valid {
			record.Date = &date.Time
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return records, nil
}

// Count returns the number of stored records
func (h *RecordsDBHandler) Count(ctx context.Context) (int, error) {
	var count int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT count_records()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

// DeleteRecord deletes a record by chunk ID
func (h *RecordsDBHandler) DeleteRecord(chunkID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_record($1)`,
		chunkID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteBySource deletes all records ingested from one source document
func (h *RecordsDBHandler) DeleteBySource(sourceID string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_records_by_source($1)`,
		sourceID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(values))
	for i, value := range values {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, helper.NewError("parse entity id", err)
		}
		ids[i] = id
	}
	return ids, nil
}
