// Package vectorstore implements a tiered vector store with a
// refcounted registry gating access to the durable tier.
//
// # Tiers
//
// Fragments live in up to three tiers:
//   - L1: small, capacity-bounded hot set served by an exact cosine scan
//   - L2: warm working set, exact scan, membership gated by access count
//   - L3: the full corpus behind an HNSW index, mirrored to SQLite when
//     persistence is enabled
//
// Every fragment is durable in L3. Access hits increment a monotonic
// access count; crossing l2AccessThreshold (default 3) copies the
// fragment into L2 and crossing l1AccessThreshold (default 10) into L1.
// When L1 is at capacity (l1CacheSize, default 100) the least recently
// promoted entry is evicted back to L2. Counts never reset, so evicted
// fragments re-promote on their next hit.
//
// # Basic Usage
//
//	store, err := vectorstore.New(ctx, "/data/myproject/fragments.db", vectorstore.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Add(ctx, &types.VectorFragment{
//	    ID:      "auth.LoginHandler",
//	    Content: "func LoginHandler(w http.ResponseWriter, r *http.Request) { ... }",
//	    Vector:  vector, // length must equal config.Dimension
//	})
//
//	results, err := store.Search(ctx, queryVector, 10)
//	for _, r := range results {
//	    fmt.Printf("%s %.3f [%s]\n", r.Fragment.ID, r.Score, r.Fragment.Tier)
//	}
//
// # Search Strategy
//
// Search probes L1 first with an exact scan. When L1 holds fewer than
// topK candidates, the HNSW index supplies the remainder from the full
// corpus. Candidates are deduplicated by id and ranked by cosine
// similarity descending, ties broken by insertion order.
//
// # Registry
//
// SQLite tolerates one live opener per database file, so shared access
// goes through the registry:
//
//	registry, _ := vectorstore.NewRegistry(vectorstore.DefaultConfig())
//	defer registry.CloseAll()
//
//	handle, err := registry.GetOrCreate(ctx, "myproject", dbPath)
//	if err != nil {
//	    return err
//	}
//	defer handle.Release()
//
//	handle.Store().Search(ctx, queryVector, 10)
//
// Concurrent GetOrCreate calls on one path construct the store once and
// share it; the store closes when the last handle is released.
//
// # Persistence
//
// With EnablePersist set, every Add is written through to SQLite and
// Close snapshots the HNSW graph into the database. The next open
// restores the snapshot, or rebuilds the graph from stored vectors when
// the snapshot is missing or stale.
package vectorstore
