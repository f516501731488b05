package model

import "time"

// ResolverConfig holds the tunable thresholds and weights for entity
// resolution. The weights are a starting configuration, not a fixed contract;
// they are meant to be tuned against a labeled dedup set.
type ResolverConfig struct {
	// Merge decision thresholds
	MergeThreshold     float64 `json:"merge_threshold"`      // candidate must score at least this
	Margin             float64 `json:"margin"`               // second-best must stay below threshold-margin
	AutoMergeStrict    float64 `json:"auto_merge_strict"`    // required when both entities have >= 2 sources
	AmbiguityPenalty   float64 `json:"ambiguity_penalty"`    // confidence penalty for ambiguous new entities
	MultiSourceMinimum int     `json:"multi_source_minimum"` // source count that makes a merge "cross-source"

	// Fuzzy score weights, must sum to 1
	EditWeight     float64 `json:"edit_weight"`     // normalized edit distance similarity
	PhoneticWeight float64 `json:"phonetic_weight"` // Soundex code equality
	TokenWeight    float64 `json:"token_weight"`    // token subset containment
}

// DefaultResolverConfig returns the starting configuration
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		MergeThreshold:     0.8,
		Margin:             0.1,
		AutoMergeStrict:    0.95,
		AmbiguityPenalty:   0.25,
		MultiSourceMinimum: 2,
		EditWeight:         0.5,
		PhoneticWeight:     0.2,
		TokenWeight:        0.3,
	}
}

// QueryConfig holds the tunable parameters for hybrid queries
type QueryConfig struct {
	// Ranking
	Limit int     `json:"limit"`
	Alpha float64 `json:"alpha"` // semantic weight; graph boost gets 1-alpha

	// Vector index
	OverfetchFactor int `json:"overfetch_factor"` // k multiplier when post-filtering

	// Graph
	MinEdgeWeight int `json:"min_edge_weight"` // edges below this are noise
	MaxHops       int `json:"max_hops"`

	// Timeouts and retries for the fan-out
	VectorTimeout time.Duration `json:"vector_timeout"`
	GraphTimeout  time.Duration `json:"graph_timeout"`
	MaxRetries    int           `json:"max_retries"`
	RetryBackoff  time.Duration `json:"retry_backoff"`
}

// DefaultQueryConfig returns a sensible default configuration
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Limit:           10,
		Alpha:           0.7,
		OverfetchFactor: 5,
		MinEdgeWeight:   0,
		MaxHops:         2,
		VectorTimeout:   10 * time.Second,
		GraphTimeout:    2 * time.Second,
		MaxRetries:      1,
		RetryBackoff:    200 * time.Millisecond,
	}
}
