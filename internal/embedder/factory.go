package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables consulted by NewFromEnv and DetectProvider
const (
	EnvProvider  = "GORECALL_EMBEDDING_PROVIDER"
	EnvEndpoint  = "GORECALL_EMBEDDING_ENDPOINT"
	EnvAPIKey    = "GORECALL_EMBEDDING_API_KEY"
	EnvModel     = "GORECALL_EMBEDDING_MODEL"
	EnvDimension = "GORECALL_EMBEDDING_DIMENSION"
)

// Config holds embedder configuration. Zero values fall back to the
// BGE-M3 defaults.
type Config struct {
	Provider             string
	Endpoint             string
	APIKey               string
	Model                string
	Dimension            int
	BatchSize            int
	Timeout              time.Duration
	MaxInputChars        int
	Truncation           TruncationStrategy
	MaxTruncationRetries int
	CacheSize            int
	Retry                RetryConfig
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. GORECALL_EMBEDDING_PROVIDER (bge, mock)
// 2. GORECALL_EMBEDDING_ENDPOINT set implies bge
// 3. Default to mock when nothing is configured
func NewFromEnv() (Embedder, error) {
	cfg := Config{
		Provider:  os.Getenv(EnvProvider),
		Endpoint:  os.Getenv(EnvEndpoint),
		APIKey:    os.Getenv(EnvAPIKey),
		Model:     os.Getenv(EnvModel),
		CacheSize: DefaultCacheSize,
	}

	if v := os.Getenv(EnvDimension); v != "" {
		dimension, err := strconv.Atoi(v)
		if err != nil || dimension <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidInput, EnvDimension, v)
		}
		cfg.Dimension = dimension
	}

	if cfg.Provider == "" {
		if cfg.Endpoint != "" {
			cfg.Provider = ProviderBGE
		} else {
			cfg.Provider = ProviderMock
		}
	}

	return New(cfg)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderBGE:
		return NewBGEProvider(cfg, cache)
	case ProviderMock:
		return NewMockProvider(cfg.Dimension, cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvEndpoint) != "" {
		return ProviderBGE
	}

	return ProviderMock
}
