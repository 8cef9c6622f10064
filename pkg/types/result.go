package types

import "math"

// SearchOutcome describes how a search response was produced.
// A search starts as recalled and either finishes reranked or falls
// back to recall order when the reranker is unavailable.
type SearchOutcome string

const (
	OutcomeRecalled   SearchOutcome = "recalled"    // recall stage complete, final stage pending
	OutcomeReranked   SearchOutcome = "reranked"    // cross-encoder ordering applied
	OutcomeRecallOnly SearchOutcome = "recall_only" // recall ordering returned as-is
)

// ScoredFragment pairs a fragment with its similarity score from the
// recall stage. Score is cosine similarity against the query vector.
type ScoredFragment struct {
	Fragment *VectorFragment
	Score    float64
}

// SearchResult represents a single pipeline result with relevance information
type SearchResult struct {
	// Identification
	ID   string
	Rank int // Position in result set (1-based)

	// Scoring
	Score float64 // Cosine similarity, or reranker relevance when reranked

	// Metadata
	Title   string
	Path    string // Source file path from fragment metadata
	Content string
	Tags    []string
	Tier    Tier
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrEmptyFragmentID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if math.IsNaN(sr.Score) || math.IsInf(sr.Score, 0) {
		return ErrInvalidScore
	}

	return nil
}
