package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Service configuration
const (
	DefaultModel   = "BAAI/bge-reranker-v2-m3"
	DefaultTimeout = 30 * time.Second

	// Environment variables consulted by NewFromEnv
	EnvEndpoint = "GORECALL_RERANKER_ENDPOINT"
	EnvAPIKey   = "GORECALL_RERANKER_API_KEY"
	EnvModel    = "GORECALL_RERANKER_MODEL"
)

// Config holds reranker client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPReranker calls a cross-encoder rerank service over HTTP. Calls
// are single-attempt: reranking is a quality refinement, and the search
// pipeline degrades to recall order on failure, so burning retry time
// here only delays that fallback.
type HTTPReranker struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPReranker creates a reranker backed by an HTTP rerank service
func NewHTTPReranker(cfg Config) (*HTTPReranker, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("reranker: endpoint required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPReranker{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// NewFromEnv creates a reranker from environment variables. Returns
// (nil, nil) when no endpoint is configured: reranking is an optional
// stage and a nil Reranker disables it.
func NewFromEnv() (Reranker, error) {
	endpoint := os.Getenv(EnvEndpoint)
	if endpoint == "" {
		return nil, nil
	}

	return NewHTTPReranker(Config{
		Endpoint: endpoint,
		APIKey:   os.Getenv(EnvAPIKey),
		Model:    os.Getenv(EnvModel),
	})
}

func (r *HTTPReranker) RerankWithScores(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	if err := validateRerank(query, documents, topK); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model":     r.model,
		"query":     query,
		"documents": documents,
		"top_n":     topK,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank api status %d: %s", resp.StatusCode, clipBody(respBody))
	}

	var apiResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(apiResp.Results) == 0 {
		return nil, ErrEmptyResponse
	}

	results := make([]Result, 0, len(apiResp.Results))
	for _, item := range apiResp.Results {
		if item.Index < 0 || item.Index >= len(documents) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrMalformedResponse, item.Index, len(documents))
		}
		results = append(results, Result{
			Index: item.Index,
			Score: item.RelevanceScore,
		})
	}

	// The service should already sort, but the contract is ours to keep
	return sortAndCap(results, topK), nil
}

func (r *HTTPReranker) Model() string {
	return r.model
}

func (r *HTTPReranker) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// clipBody caps error bodies at a readable length
func clipBody(body []byte) string {
	const maxBody = 512
	if len(body) <= maxBody {
		return string(body)
	}
	return string(body[:maxBody]) + "..."
}
