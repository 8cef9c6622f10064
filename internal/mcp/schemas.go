package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// memoryStoreTool returns the tool definition for memory_store
func memoryStoreTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_store",
		Description: "Store a single memory fragment in a project's semantic memory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project the memory belongs to (each project has an isolated store)",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Fragment identifier; auto-generated UUID when omitted. Dotted prefixes (e.g. 'notes.api.auth') group fragments for prefix deletion",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Short human-readable title for the fragment",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Searchable content; this text is embedded and matched against queries",
				},
				"full_content": map[string]interface{}{
					"type":        "string",
					"description": "Optional full text stored alongside the searchable content (not embedded)",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Optional tags attached to the fragment",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Optional string key/value metadata (the 'path' key surfaces as the result path)",
				},
			},
			Required: []string{"project", "content"},
		},
	}
}

// memoryImportTool returns the tool definition for memory_import
func memoryImportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_import",
		Description: "Batch-import memory fragments into a project's semantic memory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project the memories belong to",
				},
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Fragments to import; embedded in batches with bounded concurrency",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type":        "string",
								"description": "Fragment identifier; auto-generated UUID when omitted",
							},
							"title": map[string]interface{}{
								"type":        "string",
								"description": "Short human-readable title",
							},
							"content": map[string]interface{}{
								"type":        "string",
								"description": "Searchable content (embedded); items with empty content are rejected",
							},
							"full_content": map[string]interface{}{
								"type":        "string",
								"description": "Optional full text stored alongside the searchable content",
							},
							"tags": map[string]interface{}{
								"type":        "array",
								"description": "Optional tags",
								"items": map[string]interface{}{
									"type": "string",
								},
							},
							"metadata": map[string]interface{}{
								"type":        "object",
								"description": "Optional string key/value metadata",
							},
						},
						"required": []string{"content"},
					},
				},
			},
			Required: []string{"project", "items"},
		},
	}
}

// memorySearchTool returns the tool definition for memory_search
func memorySearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_search",
		Description: "Search a project's semantic memory with a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project whose memory to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"enable_rerank": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, refine recall order with the cross-encoder reranker when one is configured",
					"default":     true,
				},
				"rerank_top_n": map[string]interface{}{
					"type":        "integer",
					"description": "Final result count when reranking; defaults to top_k",
					"minimum":     1,
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, serve repeated queries from the result cache",
					"default":     true,
				},
			},
			Required: []string{"project", "query"},
		},
	}
}

// memoryGetTool returns the tool definition for memory_get
func memoryGetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_get",
		Description: "Fetch a single memory fragment by id (counts as an access for tier promotion)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project the fragment belongs to",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Fragment identifier",
				},
			},
			Required: []string{"project", "id"},
		},
	}
}

// memoryForgetTool returns the tool definition for memory_forget
func memoryForgetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_forget",
		Description: "Delete memory fragments by id or by id prefix",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project the fragments belong to",
				},
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Delete the single fragment with this id (mutually exclusive with prefix)",
				},
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Delete every fragment whose id starts with this prefix (mutually exclusive with id)",
				},
			},
			Required: []string{"project"},
		},
	}
}

// memoryStatusTool returns the tool definition for memory_status
func memoryStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_status",
		Description: "Report tier sizes, index statistics and service health for a project's memory",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project to report on",
				},
			},
			Required: []string{"project"},
		},
	}
}
