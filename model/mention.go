package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchRule identifies which resolver rule produced a resolution
type MatchRule string

const (
	RuleExactAlias   MatchRule = "exact_alias"   // O(1) alias index hit
	RuleFuzzyMerge   MatchRule = "fuzzy_merge"   // single candidate cleared the threshold
	RuleNewEntity    MatchRule = "new_entity"    // no candidate cleared the threshold
	RuleAmbiguousNew MatchRule = "ambiguous_new" // multiple candidates tied, provisional new entity
	RuleReviewQueued MatchRule = "review_queued" // cross-source merge below the strict threshold
)

// Mention is one raw occurrence of an entity in a source document or event.
// Created by upstream extraction, consumed exactly once by the resolver.
type Mention struct {
	RawText     string     `json:"raw_text"`
	SourceID    string     `json:"source_id"`
	SourceType  string     `json:"source_type,omitempty"` // e.g. "contact_list", "flight_manifest"
	ContextDate *time.Time `json:"context_date,omitempty"`
}

// Resolution records how a mention was resolved, kept for audit
type Resolution struct {
	RawText    string    `json:"raw_text"`
	SourceID   string    `json:"source_id"`
	EntityID   uuid.UUID `json:"entity_id"`
	Confidence float64   `json:"confidence"`
	Rule       MatchRule `json:"rule"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// MergeDecision is a human adjudication of a queued merge candidate
type MergeDecision string

const (
	DecisionMerge  MergeDecision = "merge"
	DecisionReject MergeDecision = "reject"
)

// MergeCandidate is an ambiguous or low-confidence merge awaiting manual review
type MergeCandidate struct {
	ID        uuid.UUID `json:"id"`
	WinnerID  uuid.UUID `json:"winner_id"` // existing entity the alias would merge into
	LoserID   uuid.UUID `json:"loser_id"`  // provisional entity holding the alias
	Alias     string    `json:"alias"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
