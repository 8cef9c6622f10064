package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/gorecall-mcp/internal/embedder"
	"github.com/dshills/gorecall-mcp/internal/reranker"
	"github.com/dshills/gorecall-mcp/internal/vectorstore"
	"github.com/dshills/gorecall-mcp/pkg/types"
)

// Defaults and bounds
const (
	DefaultTopK     = 10
	MaxTopK         = 100
	DefaultCacheTTL = 1 * time.Hour
	CacheEntries    = 1000

	// recallMultiplier widens the recall stage when a rerank pass will
	// refine it, so the cross-encoder sees more candidates than the
	// caller asked for.
	recallMultiplier = 2
)

// Validation errors
var (
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrInvalidTopK       = errors.New("topK must be positive")
	ErrInvalidRerankTopN = errors.New("rerankTopN must be positive when reranking is enabled")
)

// Store is the slice of the tiered vector store the pipeline reads
type Store interface {
	Search(ctx context.Context, query []float32, topK int) ([]types.ScoredFragment, error)
	Config() vectorstore.Config
}

// SearchRequest contains parameters for a semantic search
type SearchRequest struct {
	Query        string
	TopK         int
	EnableRerank bool
	RerankTopN   int  // Final result count when reranking; defaults to TopK
	UseCache     bool // Whether to use the query cache
	CacheTTL     time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Outcome      types.SearchOutcome
	Degraded     bool // Reranking was requested but recall order was returned
	CacheHit     bool
	Duration     time.Duration
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs the two-stage semantic search pipeline: embed the
// query, recall candidates from the tiered store by vector similarity,
// then optionally rerank them with a cross-encoder. Reranker failures
// degrade to recall order instead of failing the search.
type Searcher struct {
	store    Store
	embedder embedder.Embedder
	reranker reranker.Reranker // nil disables the rerank stage
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// NewSearcher creates a new Searcher instance. The reranker may be nil;
// searches requesting rerank then degrade to recall order.
func NewSearcher(store Store, emb embedder.Embedder, rr reranker.Reranker) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("searcher: store is required")
	}
	if emb == nil {
		return nil, errors.New("searcher: embedder is required")
	}

	cache, err := lru.New[[32]byte, *cacheEntry](CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		reranker: rr,
		cache:    cache,
	}, nil
}

// SemanticSearch performs a search based on the request parameters
func (s *Searcher) SemanticSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	// Check cache if enabled
	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	// Stage 1: embed the query and recall by vector similarity
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	recallTopK := req.TopK
	if req.EnableRerank {
		recallTopK = req.TopK * recallMultiplier
	}

	recalled, err := s.store.Search(ctx, emb.Vector, recallTopK)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	response := &SearchResponse{Outcome: types.OutcomeRecalled}

	// Stage 2: rerank or return recall order
	switch {
	case len(recalled) == 0:
		response.Results = []types.SearchResult{}
		response.Outcome = types.OutcomeRecallOnly
	case req.EnableRerank:
		s.rerankRecalled(ctx, req, recalled, response)
	default:
		response.Results = resultsFromRecall(recalled, req.TopK)
		response.Outcome = types.OutcomeRecallOnly
	}

	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)

	// Degraded responses are not cached: they would pin the fallback
	// ordering past the reranker's recovery.
	if req.UseCache && len(response.Results) > 0 && !response.Degraded {
		s.storeInCache(req, response)
	}

	return response, nil
}

// rerankRecalled runs the cross-encoder stage and fills in the
// response. Any rerank failure falls back to recall order, capped at
// the same rerankTopN the caller asked for.
func (s *Searcher) rerankRecalled(ctx context.Context, req SearchRequest, recalled []types.ScoredFragment, response *SearchResponse) {
	if s.reranker == nil {
		response.Results = resultsFromRecall(recalled, req.RerankTopN)
		response.Outcome = types.OutcomeRecallOnly
		response.Degraded = true
		return
	}

	documents := make([]string, len(recalled))
	for i, sf := range recalled {
		documents[i] = sf.Fragment.Content
	}

	ranked, err := s.reranker.RerankWithScores(ctx, req.Query, documents, req.RerankTopN)
	if err != nil {
		log.Printf("searcher: rerank failed, degrading to recall order: %v", err)
		response.Results = resultsFromRecall(recalled, req.RerankTopN)
		response.Outcome = types.OutcomeRecallOnly
		response.Degraded = true
		return
	}

	threshold := s.store.Config().RerankerThreshold
	results := make([]types.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		if r.Score < threshold {
			continue
		}
		results = append(results, newSearchResult(recalled[r.Index].Fragment, r.Score, len(results)+1))
	}

	response.Results = results
	response.Outcome = types.OutcomeReranked
}

// resultsFromRecall converts recall-ordered fragments into results,
// keeping similarity scores and assigning 1-based ranks.
func resultsFromRecall(recalled []types.ScoredFragment, limit int) []types.SearchResult {
	if limit > len(recalled) {
		limit = len(recalled)
	}

	results := make([]types.SearchResult, 0, limit)
	for i := 0; i < limit; i++ {
		results = append(results, newSearchResult(recalled[i].Fragment, recalled[i].Score, i+1))
	}
	return results
}

func newSearchResult(frag *types.VectorFragment, score float64, rank int) types.SearchResult {
	return types.SearchResult{
		ID:      frag.ID,
		Rank:    rank,
		Score:   score,
		Title:   frag.Title,
		Path:    frag.Path(),
		Content: frag.Content,
		Tags:    frag.Tags,
		Tier:    frag.Tier,
	}
}

// validateRequest ensures the search request is valid and applies defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}

	if req.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, req.TopK)
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	if req.EnableRerank {
		if req.RerankTopN == 0 {
			req.RerankTopN = req.TopK
		}
		if req.RerankTopN < 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidRerankTopN, req.RerankTopN)
		}
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache looks up a cached search response, pruning expired entries
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)

	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	// Check expiry while holding the read lock to avoid a race with Add
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Entry is valid - return a deep copy while still holding the read
	// lock so the entry isn't modified during the copy
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a search response to the cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	hash := computeQueryHash(req)
	expiresAt := time.Now().Add(req.CacheTTL)

	// Deep copy so later caller mutations can't pollute the cache
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: expiresAt,
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Outcome:      src.Outcome,
		Degraded:     src.Degraded,
		CacheHit:     src.CacheHit,
		Duration:     src.Duration,
		Results:      make([]types.SearchResult, len(src.Results)),
	}

	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Tags != nil {
			tags := make([]string, len(result.Tags))
			copy(tags, result.Tags)
			dst.Results[i].Tags = tags
		}
	}

	return dst
}

// computeQueryHash computes a unique hash for a search request. TTL and
// cache flags are not part of the identity; everything that changes the
// result set is.
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.TopK))
	data.WriteString("|")
	data.WriteString(strconv.FormatBool(req.EnableRerank))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.RerankTopN))

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached query. Called after mutations;
// the LRU has no per-key filtering and mutations are rare next to
// queries, so a full purge is the simple correct move.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached query responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
