package vectorstore

import "fmt"

// Default configuration values
const (
	DefaultDimension         = 1024
	DefaultM                 = 16
	DefaultEfConstruction    = 100
	DefaultEfSearch          = 50
	DefaultL1CacheSize       = 100
	DefaultL1AccessThreshold = 10
	DefaultL2AccessThreshold = 3
	DefaultRerankerThreshold = 0.1
)

// Config holds tiered store configuration. All fields are validated at
// construction; a store never runs with out-of-range parameters.
type Config struct {
	// Dimension is the required length of every fragment vector
	Dimension int

	// HNSW build/query parameters for the L3 ANN index
	M              int // Graph degree, 8-32
	EfConstruction int // Build-time search width, 50-200
	EfSearch       int // Query-time search width, 20-100

	// Tier promotion policy
	L1CacheSize       int   // Hard capacity bound on L1
	L1AccessThreshold int64 // Access count that promotes into L1
	L2AccessThreshold int64 // Access count that promotes into L2

	// RerankerThreshold is the minimum relevance score a reranked result
	// must reach to be kept. Read by the search pipeline, 0.0-1.0.
	RerankerThreshold float64

	// EnablePersist mirrors L3 to SQLite and snapshots the ANN index
	EnablePersist bool
}

// DefaultConfig returns a config with production defaults
func DefaultConfig() Config {
	return Config{
		Dimension:         DefaultDimension,
		M:                 DefaultM,
		EfConstruction:    DefaultEfConstruction,
		EfSearch:          DefaultEfSearch,
		L1CacheSize:       DefaultL1CacheSize,
		L1AccessThreshold: DefaultL1AccessThreshold,
		L2AccessThreshold: DefaultL2AccessThreshold,
		RerankerThreshold: DefaultRerankerThreshold,
		EnablePersist:     true,
	}
}

// Validate checks every configuration bound and reports the first violation
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	}
	if c.M < 8 || c.M > 32 {
		return fmt.Errorf("%w: M must be in [8, 32], got %d", ErrInvalidConfig, c.M)
	}
	if c.EfConstruction < 50 || c.EfConstruction > 200 {
		return fmt.Errorf("%w: efConstruction must be in [50, 200], got %d", ErrInvalidConfig, c.EfConstruction)
	}
	if c.EfSearch < 20 || c.EfSearch > 100 {
		return fmt.Errorf("%w: efSearch must be in [20, 100], got %d", ErrInvalidConfig, c.EfSearch)
	}
	if c.L1CacheSize <= 0 {
		return fmt.Errorf("%w: l1CacheSize must be positive, got %d", ErrInvalidConfig, c.L1CacheSize)
	}
	if c.L2AccessThreshold <= 0 {
		return fmt.Errorf("%w: l2AccessThreshold must be positive, got %d", ErrInvalidConfig, c.L2AccessThreshold)
	}
	if c.L1AccessThreshold < c.L2AccessThreshold {
		return fmt.Errorf("%w: l1AccessThreshold %d below l2AccessThreshold %d", ErrInvalidConfig, c.L1AccessThreshold, c.L2AccessThreshold)
	}
	if c.RerankerThreshold < 0.0 || c.RerankerThreshold > 1.0 {
		return fmt.Errorf("%w: rerankerThreshold must be in [0.0, 1.0], got %g", ErrInvalidConfig, c.RerankerThreshold)
	}
	return nil
}
