// Package reranker re-scores recalled documents with a cross-encoder.
//
// Vector recall ranks by embedding similarity, which is fast but
// approximate; a cross-encoder reads the query and each document
// together and produces a sharper relevance score. The search pipeline
// runs recall wide, then hands the candidates here for the final
// ordering.
//
//	rr, err := reranker.NewFromEnv() // nil when no endpoint configured
//	if rr != nil {
//	    results, err := rr.RerankWithScores(ctx, query, documents, 5)
//	    // results are sorted by score descending, indices point into documents
//	}
//
// HTTPReranker speaks the /v1/rerank wire format used by vLLM, TEI and
// similar servers. Calls are single-attempt: on failure the pipeline
// falls back to recall order, so there is no retry machinery here.
// MockReranker serves tests and offline use.
package reranker
