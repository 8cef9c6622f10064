// Package types provides shared type definitions for the GoRecall MCP server.
//
// This package defines domain types used across multiple components of GoRecall,
// including vector fragments, scored recall candidates, and pipeline results.
//
// # Core Types
//
// VectorFragment represents a unit of indexed knowledge: the text that was
// embedded, its vector, and the store-managed access state:
//
//	fragment := &types.VectorFragment{
//	    ID:      "notes/auth-design",
//	    Title:   "Auth design decisions",
//	    Content: "Sessions are stateless JWTs signed with ...",
//	    Vector:  embedding,
//	    Metadata: map[string]string{
//	        types.MetadataPath: "docs/auth.md",
//	    },
//	}
//
// All fragments in one store share a single vector dimension; insertion with a
// mismatched vector fails with ErrDimensionMismatch.
//
// # Tiers
//
// A fragment lives in one of three tiers. Every fragment is durable in L3;
// frequently accessed fragments are additionally copied into L2 and then L1,
// where lookups and small searches are served by exact scans:
//
//	types.TierL1 // hot, capacity-bounded
//	types.TierL2 // warm working set
//	types.TierL3 // full corpus, ANN-indexed
//
// # Search Results
//
// ScoredFragment is the recall-stage shape (fragment plus cosine similarity).
// SearchResult is the pipeline-level shape, annotated with rank, title, and
// the source path carried in fragment metadata:
//
//	result := types.SearchResult{
//	    ID:    "notes/auth-design",
//	    Rank:  1,
//	    Score: 0.92,
//	    Path:  "docs/auth.md",
//	}
//
// SearchOutcome records how the final ordering was produced: OutcomeReranked
// when the cross-encoder pass succeeded, OutcomeRecallOnly when the pipeline
// served recall order (either because reranking was disabled or because the
// reranker was unavailable and the search degraded).
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := fragment.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
