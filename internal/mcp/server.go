package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gorecall-mcp/internal/embedder"
	"github.com/dshills/gorecall-mcp/internal/ingest"
	"github.com/dshills/gorecall-mcp/internal/reranker"
	"github.com/dshills/gorecall-mcp/internal/searcher"
	"github.com/dshills/gorecall-mcp/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "gorecall-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDataDir is the default location for per-project memory stores
	DefaultDataDir = "~/.gorecall/memories"
)

// storeFileName is the SQLite file inside each project directory
const storeFileName = "fragments.db"

// maxProjectKeyLen bounds sanitized project keys so directory names stay short
const maxProjectKeyLen = 64

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	registry *vectorstore.Registry
	embedder embedder.Embedder
	reranker reranker.Reranker // nil when no reranker endpoint is configured
	dataDir  string

	mu       sync.Mutex
	projects map[string]*projectMemory
}

// projectMemory bundles the per-project pipeline built on a registry
// handle. Handles stay acquired for the life of the server process;
// registry.CloseAll tears the stores down at shutdown.
type projectMemory struct {
	key      string
	handle   *vectorstore.Handle
	store    *vectorstore.Store
	searcher *searcher.Searcher
	ingester *ingest.Ingester
}

// NewServer creates a new MCP server instance
func NewServer(dataDir string) (*Server, error) {
	// Expand home directory if needed
	if dataDir == "" || strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		if dataDir == "" {
			dataDir = filepath.Join(home, ".gorecall", "memories")
		} else {
			dataDir = filepath.Join(home, dataDir[2:])
		}
	}

	// Create base directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Create embedder
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// Create reranker; nil disables the rerank stage
	rr, err := reranker.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	// Store configuration follows the embedder's dimension
	storeCfg := vectorstore.DefaultConfig()
	storeCfg.Dimension = emb.Dimension()

	registry, err := vectorstore.NewRegistry(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store registry: %w", err)
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		registry: registry,
		embedder: emb,
		reranker: rr,
		dataDir:  dataDir,
		projects: make(map[string]*projectMemory),
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer s.close()
	return server.ServeStdio(s.mcp)
}

// close releases every per-project store and the shared clients
func (s *Server) close() {
	s.mu.Lock()
	s.projects = make(map[string]*projectMemory)
	s.mu.Unlock()

	if err := s.registry.CloseAll(); err != nil {
		log.Printf("mcp: close stores: %v", err)
	}
	if err := s.embedder.Close(); err != nil {
		log.Printf("mcp: close embedder: %v", err)
	}
	if s.reranker != nil {
		if err := s.reranker.Close(); err != nil {
			log.Printf("mcp: close reranker: %v", err)
		}
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(memoryStoreTool(), s.handleMemoryStore)
	s.mcp.AddTool(memoryImportTool(), s.handleMemoryImport)
	s.mcp.AddTool(memorySearchTool(), s.handleMemorySearch)
	s.mcp.AddTool(memoryGetTool(), s.handleMemoryGet)
	s.mcp.AddTool(memoryForgetTool(), s.handleMemoryForget)
	s.mcp.AddTool(memoryStatusTool(), s.handleMemoryStatus)
	return nil
}

// memoryForProject resolves the store, searcher and ingester for a project,
// opening the backing store through the registry on first use.
func (s *Server) memoryForProject(ctx context.Context, project string) (*projectMemory, error) {
	key, err := sanitizeProjectKey(project)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if pm, ok := s.projects[key]; ok {
		return pm, nil
	}

	dir := filepath.Join(s.dataDir, key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	handle, err := s.registry.GetOrCreate(ctx, key, filepath.Join(dir, storeFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open store for project %s: %w", key, err)
	}

	store := handle.Store()
	srch, err := searcher.NewSearcher(store, s.embedder, s.reranker)
	if err != nil {
		handle.Release()
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}

	pm := &projectMemory{
		key:      key,
		handle:   handle,
		store:    store,
		searcher: srch,
		ingester: ingest.New(s.embedder, store),
	}
	s.projects[key] = pm

	return pm, nil
}

// sanitizeProjectKey normalizes a project name into a filesystem-safe
// directory key. Letters, digits, '.', '_' and '-' pass through; every
// other run of characters collapses to a single '-'. Leading and trailing
// separators are trimmed, which also rejects traversal names like "..".
func sanitizeProjectKey(project string) (string, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return "", ErrProjectRequired
	}

	var b strings.Builder
	lastDash := false
	for _, r := range project {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	key := strings.Trim(b.String(), "-.")
	if key == "" {
		return "", ErrProjectInvalid
	}
	if len(key) > maxProjectKeyLen {
		// The cut can expose a trailing separator; trim again
		key = strings.Trim(key[:maxProjectKeyLen], "-.")
	}
	return key, nil
}
