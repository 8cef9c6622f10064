package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrNoDocuments       = errors.New("documents cannot be empty")
	ErrInvalidTopK       = errors.New("topK must be positive")
	ErrEmptyResponse     = errors.New("rerank response contains no results")
	ErrMalformedResponse = errors.New("malformed rerank response")
)

// Result pairs a document's position in the input slice with its
// cross-encoder relevance score.
type Result struct {
	Index int
	Score float64
}

// Reranker re-scores candidate documents against a query with a
// cross-encoder. Implementations return results sorted by score
// descending, capped at topK, with indices referring to the input
// documents slice.
type Reranker interface {
	RerankWithScores(ctx context.Context, query string, documents []string, topK int) ([]Result, error)

	// Model returns the model name
	Model() string

	// Close releases any resources held by the reranker
	Close() error
}

// validateRerank checks the arguments shared by every implementation
func validateRerank(query string, documents []string, topK int) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if len(documents) == 0 {
		return ErrNoDocuments
	}
	if topK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	return nil
}

// sortAndCap orders results by score descending (index ascending on
// ties, so equal scores stay deterministic) and truncates to topK.
func sortAndCap(results []Result, topK int) []Result {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
