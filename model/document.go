package model

import (
	"time"

	"github.com/google/uuid"
)

// Document is one ingestion input: the source text plus the entity mentions
// an upstream extractor found in it. Mention extraction itself happens
// outside the pipeline; ingestion only resolves and indexes.
type Document struct {
	SourceID   string     `json:"source_id"`   // stable document identifier
	SourceType string     `json:"source_type"` // provenance tag, e.g. "court_filing"
	Text       string     `json:"text"`
	Date       *time.Time `json:"date,omitempty"`
	Mentions   []string   `json:"mentions,omitempty"` // raw entity surface forms
}

// IngestResult summarizes one document ingestion
type IngestResult struct {
	SourceID    string       `json:"source_id"`
	Chunks      int          `json:"chunks"`
	EntityIDs   []uuid.UUID  `json:"entity_ids,omitempty"`
	Resolutions []Resolution `json:"resolutions,omitempty"`
}
