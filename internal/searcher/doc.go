// Package searcher implements the two-stage semantic search pipeline.
//
// A search embeds the query, recalls candidates from the tiered vector
// store by cosine similarity, and optionally refines them with a
// cross-encoder reranker:
//
//	search, err := searcher.NewSearcher(store, emb, rr)
//	resp, err := search.SemanticSearch(ctx, searcher.SearchRequest{
//	    Query:        "how does tier promotion work",
//	    TopK:         10,
//	    EnableRerank: true,
//	    RerankTopN:   5,
//	    UseCache:     true,
//	})
//
// # Recall and rerank
//
// When reranking is enabled the recall stage fetches TopK*2 candidates
// so the cross-encoder has a wider pool than the caller asked for, then
// keeps the RerankTopN best whose relevance clears the store's
// RerankerThreshold. Without reranking the recall ordering is returned
// directly, capped at TopK.
//
// # Degraded mode
//
// Reranking is a refinement, not a dependency. If the reranker is
// unconfigured or its service call fails, the pipeline logs the failure
// and falls back to recall order with Degraded set on the response, so
// a flaky reranker service can never take search down. The Outcome
// field records which path produced the ordering.
//
// # Query cache
//
// Responses are cached in an LRU keyed by a hash of the query
// parameters, with per-request TTL. Mutations to the underlying store
// must call InvalidateCache. Degraded responses are never cached.
package searcher
