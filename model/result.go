package model

import "time"

// Signal identifies which relevance signal contributed to a result
type Signal string

const (
	SignalSemantic Signal = "semantic"
	SignalGraph    Signal = "graph"
)

// QueryRequest is a hybrid query: free text, entity filters, date range.
// At least one of Text or Entities must be set.
type QueryRequest struct {
	Text     string     `json:"text,omitempty"`
	Entities []string   `json:"entities,omitempty"` // alias strings, resolved through the alias index
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Sources  []string   `json:"sources,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// RankedResult is one fused result with its score breakdown
type RankedResult struct {
	Record        *VectorRecord `json:"record"`
	FinalScore    float64       `json:"final_score"`
	SemanticScore float64       `json:"semantic_score"`
	GraphBoost    float64       `json:"graph_boost"`
	Signals       []Signal      `json:"signals"`
}

// QueryResponse carries ranked results plus everything needed to explain them
type QueryResponse struct {
	Results []*RankedResult `json:"results"`
	// Warnings lists entity strings that could not be resolved; they are
	// excluded from graph-side filtering but do not fail the query.
	Warnings []string `json:"warnings,omitempty"`
	// GraphDegraded is set when the graph signal timed out and fusion
	// proceeded with graph boost 0.
	GraphDegraded bool `json:"graph_degraded,omitempty"`
}
