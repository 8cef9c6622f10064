// Package embedder generates vector embeddings for memory fragments.
//
// The embedder talks to an OpenAI-compatible embedding service hosting a
// BGE model and provides batching, caching, input truncation, and retry
// with jittered backoff for production use.
//
// # Basic Usage
//
//	// Create embedder (auto-detects provider from environment)
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	// Generate single embedding
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "registry keeps one refcounted store per project",
//	})
//	fmt.Printf("Vector dimension: %d\n", len(result.Vector))
//
// # Batch Processing
//
// For efficiency, use batch processing:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
//	for i, embedding := range resp.Embeddings {
//	    // Store embedding for fragment i
//	}
//
// The response preserves input order even when the service reports
// results out of order. Batches are capped at the provider's BatchSize;
// split larger workloads before calling.
//
// # Provider Selection
//
// The embedder selects a provider based on environment variables:
//
//  1. If GORECALL_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if GORECALL_EMBEDDING_ENDPOINT is set → use the BGE service
//  3. Else → fallback to the deterministic mock provider (offline mode)
//
// Provider configuration:
//
//	// Explicit service selection
//	os.Setenv("GORECALL_EMBEDDING_ENDPOINT", "http://localhost:8000")
//	os.Setenv("GORECALL_EMBEDDING_MODEL", "BAAI/bge-m3")
//
//	// Or use the factory
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "bge",
//	    Endpoint: "http://localhost:8000",
//	    BatchSize: 10,
//	})
//
// # Input Truncation
//
// Texts longer than MaxInputChars are truncated before they reach the
// service, keeping either the head (TruncateTail) or the tail
// (TruncateHead). If the service still rejects the request as over its
// token limit, the limit is halved and the call retried a bounded
// number of times before the error surfaces.
//
// # Error Handling
//
// Transient failures (HTTP 429, 5xx, transport errors) are retried with
// jittered exponential backoff; permanent rejections fail fast. After
// exhausted retries the classified failure is still reachable:
//
//	_, err := emb.GenerateBatch(ctx, req)
//	if errors.Is(err, embedder.ErrRateLimited) {
//	    // service is shedding load, back off at a higher level
//	}
//
// # Caching
//
// Embeddings are cached in memory by content hash with LRU eviction, so
// re-storing or re-searching identical text never repays the network
// cost. Cache hits return deep copies; callers may mutate results
// freely.
package embedder
