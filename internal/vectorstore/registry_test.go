package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(testConfig())
	require.NoError(t, err)
	return registry
}

func TestRegistryGetOrCreate_SharesInstance(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	h1, err := registry.GetOrCreate(ctx, "proj", "/data/proj/fragments.db")
	require.NoError(t, err)
	h2, err := registry.GetOrCreate(ctx, "proj", "/data/proj/fragments.db")
	require.NoError(t, err)

	assert.Same(t, h1.Store(), h2.Store())
	assert.Equal(t, 2, registry.RefCount("/data/proj/fragments.db"))
	assert.True(t, registry.HasInstance("/data/proj/fragments.db"))
	assert.Equal(t, 1, registry.CacheSize())
}

func TestRegistryRefCountLifecycle(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	const path = "/data/proj/fragments.db"
	const n = 5

	handles := make([]*Handle, 0, n)
	for i := 0; i < n; i++ {
		h, err := registry.GetOrCreate(ctx, "proj", path)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, n, registry.RefCount(path))

	for i, h := range handles {
		h.Release()
		assert.Equal(t, n-1-i, registry.RefCount(path))
	}

	// Last release closed and removed the store
	assert.False(t, registry.HasInstance(path))
	assert.Equal(t, 0, registry.CacheSize())
}

func TestRegistryRelease_ClosesAtZero(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	h, err := registry.GetOrCreate(ctx, "proj", "/data/proj/fragments.db")
	require.NoError(t, err)
	store := h.Store()
	h.Release()

	err = store.Add(ctx, testFragment("a", []float32{1, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestRegistryRelease_Unknown(t *testing.T) {
	registry := newTestRegistry(t)

	registry.Release("/never/opened.db")
	assert.Equal(t, 0, registry.RefCount("/never/opened.db"))
	assert.False(t, registry.HasInstance("/never/opened.db"))
}

func TestRegistryHandleRelease_Idempotent(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	const path = "/data/proj/fragments.db"
	h1, err := registry.GetOrCreate(ctx, "proj", path)
	require.NoError(t, err)
	_, err = registry.GetOrCreate(ctx, "proj", path)
	require.NoError(t, err)

	// Double release of one handle decrements once
	h1.Release()
	h1.Release()
	assert.Equal(t, 1, registry.RefCount(path))
	assert.True(t, registry.HasInstance(path))
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	const path = "/data/shared/fragments.db"
	const racers = 10

	var wg sync.WaitGroup
	stores := make([]*Store, racers)
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := registry.GetOrCreate(ctx, "shared", path)
			if err != nil {
				errs[i] = err
				return
			}
			stores[i] = h.Store()
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, stores[0], stores[i])
	}
	assert.Equal(t, racers, registry.RefCount(path))
	assert.Equal(t, 1, registry.CacheSize())
}

func TestRegistryCacheSize_DistinctPaths(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("/data/proj-%d/fragments.db", i)
		// Two handles per path; CacheSize counts paths, not handles
		_, err := registry.GetOrCreate(ctx, fmt.Sprintf("proj-%d", i), path)
		require.NoError(t, err)
		_, err = registry.GetOrCreate(ctx, fmt.Sprintf("proj-%d", i), path)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, registry.CacheSize())
}

func TestRegistryCloseAll(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)

	h1, err := registry.GetOrCreate(ctx, "one", "/data/one/fragments.db")
	require.NoError(t, err)
	_, err = registry.GetOrCreate(ctx, "one", "/data/one/fragments.db")
	require.NoError(t, err)
	h2, err := registry.GetOrCreate(ctx, "two", "/data/two/fragments.db")
	require.NoError(t, err)

	require.NoError(t, registry.CloseAll())

	assert.Equal(t, 0, registry.CacheSize())
	assert.False(t, registry.HasInstance("/data/one/fragments.db"))
	assert.False(t, registry.HasInstance("/data/two/fragments.db"))

	// Stores are closed even though refcounts were nonzero
	assert.ErrorIs(t, h1.Store().Add(ctx, testFragment("a", []float32{1, 0, 0, 0})), ErrStoreClosed)
	assert.ErrorIs(t, h2.Store().Add(ctx, testFragment("a", []float32{1, 0, 0, 0})), ErrStoreClosed)
}

func TestRegistryConstructionFailure_NoPartialEntry(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.EnablePersist = true
	registry, err := NewRegistry(cfg)
	require.NoError(t, err)

	// Parent directory does not exist, so the durable tier cannot open
	badPath := filepath.Join(t.TempDir(), "missing", "deeper", "fragments.db")
	_, err = registry.GetOrCreate(ctx, "broken", badPath)
	require.Error(t, err)

	assert.False(t, registry.HasInstance(badPath))
	assert.Equal(t, 0, registry.RefCount(badPath))
	assert.Equal(t, 0, registry.CacheSize())

	// The path stays usable once the problem is fixed
	goodPath := filepath.Join(t.TempDir(), "fragments.db")
	h, err := registry.GetOrCreate(ctx, "fixed", goodPath)
	require.NoError(t, err)
	defer registry.CloseAll()
	assert.True(t, registry.HasInstance(goodPath))
	assert.NotNil(t, h.Store())
}

func TestRegistrySharedStoreVisibility(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	defer registry.CloseAll()

	const path = "/data/proj/fragments.db"
	h1, err := registry.GetOrCreate(ctx, "proj", path)
	require.NoError(t, err)
	h2, err := registry.GetOrCreate(ctx, "proj", path)
	require.NoError(t, err)

	require.NoError(t, h1.Store().Add(ctx, testFragment("shared", []float32{1, 0, 0, 0})))

	got, err := h2.Store().Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", got.ID)
}

func TestRegistryInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.EfSearch = 5

	_, err := NewRegistry(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
