// Package mcp implements the Model Context Protocol (MCP) server for GoRecall.
//
// The MCP server exposes six tools to AI coding assistants (Claude Code,
// Codex CLI):
//   - memory_store: Store a single memory fragment
//   - memory_import: Batch-import memory fragments
//   - memory_search: Search memories with natural language queries
//   - memory_get: Fetch a fragment by id
//   - memory_forget: Delete fragments by id or prefix
//   - memory_status: Report tier sizes, index statistics and health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output,
// making it simple to integrate with any MCP-compatible client.
//
// # Basic Usage
//
// The MCP server is typically started as the gorecall binary:
//
//	gorecall
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout.
//
// # Project Isolation
//
// Every tool takes a project parameter. Each project owns an isolated
// tiered store persisted under the data directory:
//
//	~/.gorecall/memories/<project-key>/fragments.db
//
// Project names are sanitized into filesystem-safe keys; the store
// registry guarantees a single store instance per path regardless of how
// many tools touch the same project concurrently.
//
// # Tool: memory_store
//
// Store a single fragment:
//
//	Request:
//	{
//	  "name": "memory_store",
//	  "arguments": {
//	    "project": "myapp",
//	    "id": "notes.api.auth",
//	    "title": "Auth flow",
//	    "content": "JWT validation happens in middleware before handlers run",
//	    "tags": ["auth", "middleware"],
//	    "metadata": {"path": "docs/auth.md"}
//	  }
//	}
//
//	Response:
//	{
//	  "stored": true,
//	  "id": "notes.api.auth",
//	  "dimension": 1024,
//	  "tier": "L3"
//	}
//
// # Tool: memory_search
//
// Search fragments semantically:
//
//	Request:
//	{
//	  "name": "memory_search",
//	  "arguments": {
//	    "project": "myapp",
//	    "query": "how does authentication work",
//	    "top_k": 5,
//	    "enable_rerank": true
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "id": "notes.api.auth",
//	      "rank": 1,
//	      "score": 0.92,
//	      "title": "Auth flow",
//	      "content": "JWT validation happens in middleware...",
//	      "path": "docs/auth.md",
//	      "tier": "L3"
//	    }
//	  ],
//	  "total_results": 1,
//	  "outcome": "reranked",
//	  "degraded": false,
//	  "cache_hit": false,
//	  "duration_ms": 43
//	}
//
// When the reranker fails or is not configured, the search degrades to
// recall order: outcome becomes "recall_only" and degraded is true.
// Search stays available; only ordering quality drops.
//
// # Tool: memory_forget
//
// Delete one fragment by id, or a family of fragments by id prefix:
//
//	{"name": "memory_forget", "arguments": {"project": "myapp", "id": "notes.api.auth"}}
//	{"name": "memory_forget", "arguments": {"project": "myapp", "prefix": "notes.api."}}
//
//	Response:
//	{
//	  "removed": 3,
//	  "prefix": "notes.api."
//	}
//
// # Tool: memory_status
//
// Check store and service health:
//
//	Request:
//	{
//	  "name": "memory_status",
//	  "arguments": {
//	    "project": "myapp"
//	  }
//	}
//
//	Response:
//	{
//	  "project": "myapp",
//	  "fragments": {"total": 412, "l1": 37, "l2": 96, "l3": 412},
//	  "index": {"total_nodes": 415, "active_nodes": 412, "deleted_nodes": 3, ...},
//	  "config": {"dimension": 1024, "hnsw_m": 16, "persisted": true, ...},
//	  "embedder": {"provider": "bge", "model": "bge-m3", "healthy": true},
//	  "reranker": {"configured": true, "model": "bge-reranker-v2-m3"},
//	  "cached_queries": 12
//	}
//
// # MCP Client Configuration
//
// Configure in Claude Code's MCP settings:
//
//	{
//	  "mcpServers": {
//	    "gorecall": {
//	      "command": "/usr/local/bin/gorecall",
//	      "env": {
//	        "GORECALL_EMBEDDING_ENDPOINT": "http://localhost:8080",
//	        "GORECALL_RERANKER_ENDPOINT": "http://localhost:8081"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// The MCP server returns standard JSON-RPC error responses:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "Invalid params",
//	    "data": {
//	      "param": "content",
//	      "reason": "missing or empty"
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (embedding, store, filesystem)
//   - -32001: Project store could not be opened
//   - -32002: Import already in progress for the project
//   - -32003: Fragment not found
//   - -32004: Empty query
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol):
//
//	log.SetOutput(os.Stderr)
//	log.Printf("MCP server started")
package mcp
