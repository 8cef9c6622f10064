package vectorstore

import (
	"context"
	"log"
	"sync"
)

// Registry hands out shared store instances, one per path. The durable
// tier cannot tolerate two concurrent openers of one database file, so
// every open goes through GetOrCreate and every consumer releases its
// handle when done.
type Registry struct {
	config Config

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	key      string
	store    *Store
	refCount int
}

// Handle is a counted reference to a shared store. The store closes
// when the last handle is released.
type Handle struct {
	store    *Store
	path     string
	registry *Registry
	once     sync.Once
}

// Store returns the shared store behind the handle
func (h *Handle) Store() *Store {
	return h.store
}

// Release drops this handle's reference. Safe to call more than once;
// only the first call decrements.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.registry.Release(h.path)
	})
}

// NewRegistry creates a registry whose stores share one configuration
func NewRegistry(config Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, wrapError("registry", err)
	}
	return &Registry{
		config:  config,
		entries: make(map[string]*registryEntry),
	}, nil
}

// GetOrCreate returns a handle to the store for path, constructing it
// on first use. Construction and refcount increment form one critical
// section, so concurrent callers racing on the same path observe a
// single construction and identical store references. A construction
// failure leaves no entry behind.
func (r *Registry) GetOrCreate(ctx context.Context, key, path string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[path]; ok {
		e.refCount++
		return &Handle{store: e.store, path: path, registry: r}, nil
	}

	store, err := New(ctx, path, r.config)
	if err != nil {
		return nil, err
	}
	r.entries[path] = &registryEntry{key: key, store: store, refCount: 1}
	log.Printf("vectorstore: opened store for %s at %s", key, path)

	return &Handle{store: store, path: path, registry: r}, nil
}

// Release decrements the refcount for path, closing and removing the
// store when it reaches zero. Releasing an untracked path is a no-op.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[path]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}

	delete(r.entries, path)
	if err := e.store.Close(); err != nil {
		log.Printf("vectorstore: close store for %s: %v", e.key, err)
	}
}

// RefCount returns the live handle count for path, 0 when untracked
func (r *Registry) RefCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[path]; ok {
		return e.refCount
	}
	return 0
}

// HasInstance reports whether a store is currently tracked for path
func (r *Registry) HasInstance(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[path]
	return ok
}

// CacheSize returns the number of distinct tracked paths
func (r *Registry) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// CloseAll force-closes every tracked store regardless of refcount.
// Used for shutdown and test teardown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, e := range r.entries {
		if err := e.store.Close(); err != nil && firstErr == nil {
			firstErr = wrapError("close_all", err)
		}
	}
	r.entries = make(map[string]*registryEntry)
	return firstErr
}
