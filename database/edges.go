package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
	loadSql "github.com/archivegraph/dossier/sql"
)

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	UpsertEdge(edge *model.CoocEdge) error
	SelectAllEdges() ([]*model.CoocEdge, error)
	ReplaceAllEdges(edges []*model.CoocEdge) error
	InsertEdgeRemoval(removal model.EdgeRemoval) error
	SelectEdgeRemovals() ([]model.EdgeRemoval, error)
}

// EdgesDBHandler handles co-occurrence edge database operations
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler.
// It initializes the database connection and loads edge-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' and 'edge_removals' tables in the database.
// If the tables already exist, it does not create them again.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing edges tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// UpsertEdge writes the edge snapshot, replacing an existing row for the
// same entity pair
func (h *EdgesDBHandler) UpsertEdge(edge *model.CoocEdge) error {
	breakdown, err := json.Marshal(edge.SourceBreakdown)
	if err != nil {
		return helper.NewError("marshal source breakdown", err)
	}

	_, err = h.db.Instance.Exec(
		`SELECT upsert_edge($1, $2, $3, $4, $5, $6)`,
		edge.A,
		edge.B,
		edge.Count,
		edge.FirstDate,
		edge.LastDate,
		breakdown,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectAllEdges retrieves every stored edge
func (h *EdgesDBHandler) SelectAllEdges() ([]*model.CoocEdge, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_all_edges()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.CoocEdge
	for rows.Next() {
		edge := &model.CoocEdge{}
		var breakdown []byte
		err := rows.Scan(
			&edge.A,
			&edge.B,
			&edge.Count,
			&edge.FirstDate,
			&edge.LastDate,
			&breakdown,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		edge.SourceBreakdown = map[string]int{}
		err = json.Unmarshal(breakdown, &edge.SourceBreakdown)
		if err != nil {
			return nil, helper.NewError("unmarshal source breakdown", err)
		}

		edges = append(edges, edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// ReplaceAllEdges replaces the stored edge set with the given graph snapshot
func (h *EdgesDBHandler) ReplaceAllEdges(edges []*model.CoocEdge) error {
	_, err := h.db.Instance.Exec(`SELECT delete_all_edges()`)
	if err != nil {
		return helper.NewError("exec", err)
	}

	for _, edge := range edges {
		err := h.UpsertEdge(edge)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertEdgeRemoval appends one audited edge drop
func (h *EdgesDBHandler) InsertEdgeRemoval(removal model.EdgeRemoval) error {
	edge, err := json.Marshal(removal.Edge)
	if err != nil {
		return helper.NewError("marshal edge", err)
	}

	_, err = h.db.Instance.Exec(
		`SELECT insert_edge_removal($1, $2, $3)`,
		edge,
		removal.Reason,
		removal.RemovedAt,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectEdgeRemovals retrieves all audited edge drops, oldest first
func (h *EdgesDBHandler) SelectEdgeRemovals() ([]model.EdgeRemoval, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_edge_removals()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var removals []model.EdgeRemoval
	for rows.Next() {
		var id int64
		var edge []byte
		removal := model.EdgeRemoval{}
		err := rows.Scan(
			&id,
			&edge,
			&removal.Reason,
			&removal.RemovedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		err = json.Unmarshal(edge, &removal.Edge)
		if err != nil {
			return nil, helper.NewError("unmarshal edge", err)
		}

		removals = append(removals, removal)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return removals, nil
}
