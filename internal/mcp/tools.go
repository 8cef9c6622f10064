package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gorecall-mcp/internal/embedder"
	"github.com/dshills/gorecall-mcp/internal/ingest"
	"github.com/dshills/gorecall-mcp/internal/searcher"
	"github.com/dshills/gorecall-mcp/internal/vectorstore"
	"github.com/dshills/gorecall-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeStoreUnavailable = -32001 // Project store could not be opened
	ErrorCodeImportInProgress = -32002 // Another import is already running for the project
	ErrorCodeFragmentNotFound = -32003 // No fragment with the requested id
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
)

// projectFromArgs resolves the project parameter into a per-project memory
func (s *Server) projectFromArgs(ctx context.Context, args map[string]interface{}) (*projectMemory, error) {
	project, ok := args["project"].(string)
	if !ok || project == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project parameter is required", map[string]interface{}{
			"param":  "project",
			"reason": "missing or empty",
		})
	}

	pm, err := s.memoryForProject(ctx, project)
	if err != nil {
		if errors.Is(err, ErrProjectRequired) || errors.Is(err, ErrProjectInvalid) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid project name", map[string]interface{}{
				"param":  "project",
				"reason": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeStoreUnavailable, "failed to open project store", map[string]interface{}{
			"project": project,
			"error":   err.Error(),
		})
	}

	return pm, nil
}

// handleMemoryStore handles the memory_store tool invocation
func (s *Server) handleMemoryStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required", map[string]interface{}{
			"param":  "content",
			"reason": "missing or empty",
		})
	}

	id := getStringDefault(args, "id", "")
	if id == "" {
		id = uuid.NewString()
	}

	// Embed the searchable content
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: content})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to embed content", map[string]interface{}{
			"error": err.Error(),
		})
	}

	frag := &types.VectorFragment{
		ID:          id,
		Title:       getStringDefault(args, "title", ""),
		Content:     content,
		FullContent: getStringDefault(args, "full_content", ""),
		Tags:        getStringSlice(args, "tags"),
		Metadata:    getStringMap(args, "metadata"),
		Vector:      emb.Vector,
	}

	if err := pm.store.Add(ctx, frag); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to store fragment", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pm.searcher.InvalidateCache()

	// New fragments always land in the durable tier; access promotes later
	response := map[string]interface{}{
		"stored":    true,
		"id":        id,
		"dimension": len(emb.Vector),
		"tier":      string(types.TierL3),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryImport handles the memory_import tool invocation
func (s *Server) handleMemoryImport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	rawItems, ok := args["items"].([]interface{})
	if !ok || len(rawItems) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "items parameter is required", map[string]interface{}{
			"param":  "items",
			"reason": "missing or empty",
		})
	}

	inputs := make([]ingest.FragmentInput, 0, len(rawItems))
	for i, raw := range rawItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "items must be objects", map[string]interface{}{
				"param": "items",
				"index": i,
			})
		}
		inputs = append(inputs, ingest.FragmentInput{
			ID:          getStringDefault(item, "id", ""),
			Title:       getStringDefault(item, "title", ""),
			Content:     getStringDefault(item, "content", ""),
			FullContent: getStringDefault(item, "full_content", ""),
			Tags:        getStringSlice(item, "tags"),
			Metadata:    getStringMap(item, "metadata"),
		})
	}

	// Run ingestion
	stats, err := pm.ingester.IngestFragments(ctx, inputs, nil)
	if err != nil {
		if errors.Is(err, ingest.ErrIngestInProgress) {
			return nil, newMCPError(ErrorCodeImportInProgress, "another import is already running for this project", map[string]interface{}{
				"project": pm.key,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "import failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	pm.searcher.InvalidateCache()

	// Format response
	response := map[string]interface{}{
		"imported":             true,
		"fragments_added":      stats.FragmentsAdded,
		"fragments_failed":     stats.FragmentsFailed,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemorySearch handles the memory_search tool invocation
func (s *Server) handleMemorySearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	// Parse optional parameters
	topK := getIntDefault(args, "top_k", searcher.DefaultTopK)
	if topK < 1 || topK > searcher.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 1 and %d", searcher.MaxTopK), map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	req := searcher.SearchRequest{
		Query:        query,
		TopK:         topK,
		EnableRerank: getBoolDefault(args, "enable_rerank", true),
		RerankTopN:   getIntDefault(args, "rerank_top_n", 0),
		UseCache:     getBoolDefault(args, "use_cache", true),
	}

	resp, err := pm.searcher.SemanticSearch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, searcher.ErrEmptyQuery):
			return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
		case errors.Is(err, searcher.ErrInvalidTopK), errors.Is(err, searcher.ErrInvalidRerankTopN):
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid search parameters", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"id":      r.ID,
			"rank":    r.Rank,
			"score":   r.Score,
			"title":   r.Title,
			"content": r.Content,
			"tier":    string(r.Tier),
		}
		if r.Path != "" {
			entry["path"] = r.Path
		}
		if len(r.Tags) > 0 {
			entry["tags"] = r.Tags
		}
		results = append(results, entry)
	}

	// Format response
	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"outcome":       string(resp.Outcome),
		"degraded":      resp.Degraded,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryGet handles the memory_get tool invocation
func (s *Server) handleMemoryGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	frag, err := pm.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return nil, newMCPError(ErrorCodeFragmentNotFound, "fragment not found", map[string]interface{}{
				"id": id,
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to get fragment", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"id":           frag.ID,
		"title":        frag.Title,
		"content":      frag.Content,
		"tier":         string(frag.Tier),
		"access_count": frag.AccessCount,
	}
	if frag.FullContent != "" {
		response["full_content"] = frag.FullContent
	}
	if len(frag.Tags) > 0 {
		response["tags"] = frag.Tags
	}
	if len(frag.Metadata) > 0 {
		response["metadata"] = frag.Metadata
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryForget handles the memory_forget tool invocation
func (s *Server) handleMemoryForget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	id := getStringDefault(args, "id", "")
	prefix := getStringDefault(args, "prefix", "")
	if (id == "") == (prefix == "") {
		return nil, newMCPError(ErrorCodeInvalidParams, "exactly one of id or prefix is required", map[string]interface{}{
			"param":  "id|prefix",
			"reason": "provide id for a single fragment or prefix for a range",
		})
	}

	var removed int
	if id != "" {
		if err := pm.store.Delete(ctx, id); err != nil {
			if errors.Is(err, vectorstore.ErrNotFound) {
				return nil, newMCPError(ErrorCodeFragmentNotFound, "fragment not found", map[string]interface{}{
					"id": id,
				})
			}
			return nil, newMCPError(ErrorCodeInternalError, "failed to delete fragment", map[string]interface{}{
				"error": err.Error(),
			})
		}
		removed = 1
	} else {
		n, err := pm.store.DeleteByPrefix(ctx, prefix)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to delete fragments", map[string]interface{}{
				"error": err.Error(),
			})
		}
		removed = n
	}

	pm.searcher.InvalidateCache()

	// Format response
	response := map[string]interface{}{
		"removed": removed,
	}
	if id != "" {
		response["id"] = id
	} else {
		response["prefix"] = prefix
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryStatus handles the memory_status tool invocation
func (s *Server) handleMemoryStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	pm, err := s.projectFromArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	stats := pm.store.Stats()
	cfg := pm.store.Config()
	embedderHealthy := s.embedder.Ping(ctx) == nil

	response := map[string]interface{}{
		"project": pm.key,
		// L3 mirrors the full corpus, so its size is the fragment total
		"fragments": map[string]interface{}{
			"total": stats.L3Count,
			"l1":    stats.L1Count,
			"l2":    stats.L2Count,
			"l3":    stats.L3Count,
		},
		"index": map[string]interface{}{
			"total_nodes":   stats.Index.TotalNodes,
			"active_nodes":  stats.Index.ActiveNodes,
			"deleted_nodes": stats.Index.DeletedNodes,
			"total_edges":   stats.Index.TotalEdges,
			"max_level":     stats.Index.MaxLevel,
		},
		"config": map[string]interface{}{
			"dimension":            cfg.Dimension,
			"hnsw_m":               cfg.M,
			"hnsw_ef_construction": cfg.EfConstruction,
			"hnsw_ef_search":       cfg.EfSearch,
			"l1_cache_size":        cfg.L1CacheSize,
			"reranker_threshold":   cfg.RerankerThreshold,
			"persisted":            stats.Persisted,
		},
		"embedder": map[string]interface{}{
			"provider":  s.embedder.Provider(),
			"model":     s.embedder.Model(),
			"dimension": s.embedder.Dimension(),
			"healthy":   embedderHealthy,
		},
		"cached_queries": pm.searcher.CacheLen(),
	}

	rerankerInfo := map[string]interface{}{
		"configured": s.reranker != nil,
	}
	if s.reranker != nil {
		rerankerInfo["model"] = s.reranker.Model()
	}
	response["reranker"] = rerankerInfo

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string-array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// getStringMap extracts an object parameter as a string map, skipping
// non-string values
func getStringMap(args map[string]interface{}, key string) map[string]string {
	raw, ok := args[key].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Validation helpers

var (
	ErrProjectRequired = errors.New("project is required")
	ErrProjectInvalid  = errors.New("project name has no usable characters")
)
