package reranker

import (
	"context"
	"strings"
)

// MockReranker scores documents without a network dependency. With
// Scores set it returns those fixed values; otherwise it scores by
// naive term overlap between query and document, which is crude but
// monotonic enough for pipeline tests and offline probes.
type MockReranker struct {
	// Scores maps document index to a fixed relevance score
	Scores map[int]float64

	// Err, when set, is returned by every call
	Err error
}

func (m *MockReranker) RerankWithScores(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if err := validateRerank(query, documents, topK); err != nil {
		return nil, err
	}

	results := make([]Result, len(documents))
	for i, doc := range documents {
		var score float64
		if m.Scores != nil {
			score = m.Scores[i]
		} else {
			score = overlapScore(query, doc)
		}
		results[i] = Result{Index: i, Score: score}
	}

	return sortAndCap(results, topK), nil
}

func (m *MockReranker) Model() string {
	return "mock-reranker"
}

func (m *MockReranker) Close() error {
	return nil
}

// overlapScore returns the fraction of query terms present in the
// document, case-insensitive.
func overlapScore(query, document string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}

	doc := strings.ToLower(document)
	matched := 0
	for _, term := range terms {
		if strings.Contains(doc, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
