package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderBGE  = "bge"
	ProviderMock = "mock"

	// Default models
	DefaultBGEModel  = "BAAI/bge-m3"
	DefaultMockModel = "mock-embeddings"

	// Dimensions
	BGEDimension  = 1024
	MockDimension = 1024

	// Service endpoint
	DefaultEndpoint = "http://localhost:8000"

	// Batch limits
	DefaultBatchSize = 10
	MaxBatchSize     = 100

	// Input limits. Texts longer than DefaultMaxInputChars are truncated
	// before they reach the service; if the service still rejects the
	// request as too long, the limit is halved up to
	// DefaultMaxTruncationRetries times.
	DefaultMaxInputChars        = 8000
	DefaultMaxTruncationRetries = 2

	// HTTP client
	DefaultTimeout = 30 * time.Second

	// Cache
	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// BGEProvider implements Embedder against an OpenAI-compatible embedding
// service hosting a BGE model (vLLM, TEI, Ollama with the right routes).
type BGEProvider struct {
	endpoint             string
	apiKey               string
	model                string
	dimension            int
	batchSize            int
	maxInputChars        int
	truncation           TruncationStrategy
	maxTruncationRetries int
	retry                RetryConfig
	httpClient           *http.Client
	cache                *Cache
}

// NewBGEProvider creates an embedder backed by an HTTP embedding service.
// Zero-value config fields fall back to the BGE-M3 defaults.
func NewBGEProvider(cfg Config, cache *Cache) (*BGEProvider, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	model := cfg.Model
	if model == "" {
		model = DefaultBGEModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = BGEDimension
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds max %d", ErrInvalidInput, batchSize, MaxBatchSize)
	}

	maxInputChars := cfg.MaxInputChars
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}

	truncation := cfg.Truncation
	if truncation == "" {
		truncation = TruncateTail
	}
	if truncation != TruncateTail && truncation != TruncateHead {
		return nil, fmt.Errorf("%w: unknown truncation strategy %q", ErrInvalidInput, truncation)
	}

	maxTruncationRetries := cfg.MaxTruncationRetries
	if maxTruncationRetries < 0 {
		maxTruncationRetries = DefaultMaxTruncationRetries
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}

	return &BGEProvider{
		endpoint:             endpoint,
		apiKey:               cfg.APIKey,
		model:                model,
		dimension:            dimension,
		batchSize:            batchSize,
		maxInputChars:        maxInputChars,
		truncation:           truncation,
		maxTruncationRetries: maxTruncationRetries,
		retry:                retry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
	}, nil
}

func (b *BGEProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Check cache
	hash := ComputeHash(req.Text)
	if b.cache != nil {
		if emb, ok := b.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Use batch API for consistency
	resp, err := b.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (b *BGEProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > b.batchSize {
		return nil, fmt.Errorf("%w: %d texts, max %d allowed", ErrBatchTooLarge, len(req.Texts), b.batchSize)
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	texts := truncateAll(req.Texts, b.maxInputChars, b.truncation)

	embeddings, err := b.embedTexts(ctx, texts, model)
	if err != nil {
		return nil, err
	}

	// Cache successful embeddings under the original (untruncated) text
	if b.cache != nil {
		for i, emb := range embeddings {
			hash := ComputeHash(req.Texts[i])
			emb.Hash = hash
			b.cache.Set(hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderBGE,
		Model:      model,
	}, nil
}

// embedTexts calls the service with backoff retry, shrinking the inputs
// when the service rejects them as over its token limit.
func (b *BGEProvider) embedTexts(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	limit := b.maxInputChars

	for shrink := 0; ; shrink++ {
		embeddings, err := retryWithBackoff(ctx, b.retry, func() ([]*Embedding, error) {
			return b.callAPI(ctx, texts, model)
		})
		if err == nil {
			return embeddings, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.InputTooLong() || shrink >= b.maxTruncationRetries {
			return nil, err
		}

		limit /= 2
		if limit == 0 {
			return nil, err
		}
		log.Printf("embedder: input over service limit, shrinking to %d chars (attempt %d/%d)",
			limit, shrink+1, b.maxTruncationRetries)
		texts = truncateAll(texts, limit, b.truncation)
	}
}

func (b *BGEProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.endpoint+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
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
		return nil, newAPIError(resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrEmptyResponse)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     *int      `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("%w: no data entries", ErrEmptyResponse)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs", ErrMalformedResponse, len(apiResp.Data), len(texts))
	}

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	// Order by the service-reported index so results line up with the
	// inputs even when the service returns them out of order.
	embeddings := make([]*Embedding, len(texts))
	for i, data := range apiResp.Data {
		pos := i
		if data.Index != nil {
			pos = *data.Index
		}
		if pos < 0 || pos >= len(texts) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrMalformedResponse, pos, len(texts))
		}
		if embeddings[pos] != nil {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrMalformedResponse, pos)
		}
		if len(data.Embedding) == 0 {
			return nil, fmt.Errorf("%w: entry %d", ErrEmptyEmbedding, pos)
		}
		if len(data.Embedding) != b.dimension {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, want %d",
				ErrMalformedResponse, pos, len(data.Embedding), b.dimension)
		}
		embeddings[pos] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  ProviderBGE,
			Model:     respModel,
		}
	}

	return embeddings, nil
}

// Ping probes the service health endpoint
func (b *BGEProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", b.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newAPIError(resp.StatusCode, string(body))
	}

	return nil
}

func (b *BGEProvider) Dimension() int {
	return b.dimension
}

func (b *BGEProvider) BatchSize() int {
	return b.batchSize
}

func (b *BGEProvider) Provider() string {
	return ProviderBGE
}

func (b *BGEProvider) Model() string {
	return b.model
}

func (b *BGEProvider) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// MockProvider generates deterministic embeddings without a network
// dependency. The same text always maps to the same unit vector, so
// similarity and tier behavior stay reproducible across runs.
type MockProvider struct {
	dimension int
	model     string
	cache     *Cache
}

// NewMockProvider creates a deterministic embedder for tests and offline use
func NewMockProvider(dimension int, cache *Cache) *MockProvider {
	if dimension <= 0 {
		dimension = MockDimension
	}
	return &MockProvider{
		dimension: dimension,
		model:     DefaultMockModel,
		cache:     cache,
	}
}

func (m *MockProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Check cache
	hash := ComputeHash(req.Text)
	if m.cache != nil {
		if emb, ok := m.cache.Get(hash); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    mockVector(req.Text, m.dimension),
		Dimension: m.dimension,
		Provider:  ProviderMock,
		Model:     m.model,
		Hash:      hash,
	}

	if m.cache != nil {
		m.cache.Set(hash, emb)
	}

	return emb, nil
}

func (m *MockProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > m.BatchSize() {
		return nil, fmt.Errorf("%w: %d texts, max %d allowed", ErrBatchTooLarge, len(req.Texts), m.BatchSize())
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderMock,
		Model:      m.model,
	}, nil
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Dimension() int {
	return m.dimension
}

func (m *MockProvider) BatchSize() int {
	return DefaultBatchSize
}

func (m *MockProvider) Provider() string {
	return ProviderMock
}

func (m *MockProvider) Model() string {
	return m.model
}

func (m *MockProvider) Close() error {
	return nil
}

// mockVector expands a SHA-256 hash chain over the full dimension so
// every component carries signal, then normalizes to unit length.
func mockVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	block := sha256.Sum256([]byte(text))
	for i := 0; i < dimension; i++ {
		if i > 0 && i%sha256.Size == 0 {
			block = sha256.Sum256(block[:])
		}
		vector[i] = float32(block[i%sha256.Size])/255.0 - 0.5
	}
	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
