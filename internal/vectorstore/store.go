package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/gorecall-mcp/internal/storage"
	"github.com/dshills/gorecall-mcp/pkg/types"
)

// Store is a tiered vector store. L1 holds a small hot set served by an
// exact scan, L2 the warm working set, and L3 the full corpus behind an
// HNSW index, mirrored to SQLite when persistence is enabled.
//
// Tier membership is containment: every fragment lives in L3, promoted
// fragments additionally appear in L2 and then L1. The maps share one
// canonical *VectorFragment per id, so an access count update is visible
// from every tier.
type Store struct {
	config Config
	path   string

	mu sync.RWMutex

	l1 map[string]*types.VectorFragment
	l2 map[string]*types.VectorFragment
	l3 map[string]*types.VectorFragment

	// l1Order tracks promotion order, least recently promoted first
	l1Order []string

	// seq breaks score ties by insertion order
	seq     map[string]int64
	nextSeq int64

	index   *storage.HNSW
	storage storage.Storage

	closed bool
}

// New opens a tiered store. With EnablePersist set, the durable tier is
// loaded (or created) at path and the ANN index restored from its last
// snapshot, rebuilding from stored vectors when no usable snapshot
// exists. Callers must not open the same path twice; the registry
// enforces this.
func New(ctx context.Context, path string, config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, wrapError("open", err)
	}

	s := &Store{
		config: config,
		path:   path,
		l1:     make(map[string]*types.VectorFragment),
		l2:     make(map[string]*types.VectorFragment),
		l3:     make(map[string]*types.VectorFragment),
		seq:    make(map[string]int64),
		index:  storage.NewHNSW(config.M, config.EfConstruction, config.EfSearch),
	}

	if !config.EnablePersist {
		return s, nil
	}

	db, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, wrapError("open", err)
	}
	s.storage = db

	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, wrapError("open", err)
	}

	return s, nil
}

// Config returns the configuration the store was opened with
func (s *Store) Config() Config {
	return s.config
}

// Add writes a fragment to the durable tier, replacing any prior version
// with the same id. An initial AccessCount at or past a promotion
// threshold seeds L2/L1 placement immediately.
func (s *Store) Add(ctx context.Context, frag *types.VectorFragment) error {
	if frag == nil {
		return wrapError("add", errors.New("nil fragment"))
	}
	if err := frag.Validate(); err != nil {
		return wrapError("add", err)
	}
	if len(frag.Vector) != s.config.Dimension {
		return wrapError("add", fmt.Errorf("%w: got %d, want %d",
			types.ErrDimensionMismatch, len(frag.Vector), s.config.Dimension))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("add", ErrStoreClosed)
	}

	stored := frag.Clone()
	stored.Tier = types.TierL3
	seq := s.nextSeq + 1

	// Durable write first so a storage failure leaves memory untouched
	if s.storage != nil {
		rec, err := storage.FromTypesFragment(stored, seq)
		if err != nil {
			return wrapError("add", err)
		}
		if err := s.storage.UpsertFragment(ctx, rec); err != nil {
			return wrapError("add", err)
		}
	}

	s.nextSeq = seq
	if _, exists := s.l3[stored.ID]; exists {
		s.dropFromUpperTiersLocked(stored.ID)
	}
	if err := s.index.Insert(stored.ID, stored.Vector); err != nil {
		return wrapError("add", err)
	}
	s.l3[stored.ID] = stored
	s.seq[stored.ID] = seq
	s.promoteLocked(stored)

	return nil
}

// Get returns a copy of the fragment with the given id. A hit counts as
// an access: it increments AccessCount and may promote the fragment.
func (s *Store) Get(ctx context.Context, id string) (*types.VectorFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, wrapError("get", ErrStoreClosed)
	}

	frag := s.lookupLocked(id)
	if frag == nil {
		return nil, wrapError("get", fmt.Errorf("%w: %s", ErrNotFound, id))
	}

	frag.AccessCount++
	s.promoteLocked(frag)
	s.persistAccessLocked(ctx, frag)

	return frag.Clone(), nil
}

// Search returns the topK fragments most similar to query, scored by
// cosine similarity descending with ties broken by insertion order.
//
// L1 is probed first with an exact scan; when it holds fewer than topK
// candidates the HNSW index supplies the remainder from the full corpus.
// Returned fragments count as accesses and may be promoted.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]types.ScoredFragment, error) {
	if topK <= 0 {
		return nil, wrapError("search", fmt.Errorf("%w: got %d", ErrInvalidTopK, topK))
	}
	if len(query) != s.config.Dimension {
		return nil, wrapError("search", fmt.Errorf("%w: got %d, want %d",
			types.ErrDimensionMismatch, len(query), s.config.Dimension))
	}

	type candidate struct {
		id    string
		score float64
		seq   int64
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, wrapError("search", ErrStoreClosed)
	}

	candidates := make([]candidate, 0, len(s.l1))
	seen := make(map[string]bool, len(s.l1))
	for id, frag := range s.l1 {
		candidates = append(candidates, candidate{
			id:    id,
			score: storage.CosineSimilarity(query, frag.Vector),
			seq:   s.seq[id],
		})
		seen[id] = true
	}

	if len(candidates) < topK {
		// Ask for enough extra ids to survive deduplication against L1
		ids, _ := s.index.Search(query, topK+len(candidates))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			frag, ok := s.l3[id]
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				id:    id,
				score: storage.CosineSimilarity(query, frag.Vector),
				seq:   s.seq[id],
			})
			seen[id] = true
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	// Access bookkeeping runs in a short write section after scoring, so
	// a concurrent delete is observed as fully applied or not at all.
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]types.ScoredFragment, 0, len(candidates))
	for _, c := range candidates {
		frag, ok := s.l3[c.id]
		if !ok {
			continue // deleted since scoring
		}
		frag.AccessCount++
		s.promoteLocked(frag)
		s.persistAccessLocked(ctx, frag)
		results = append(results, types.ScoredFragment{Fragment: frag.Clone(), Score: c.score})
	}

	return results, nil
}

// Delete removes a fragment from every tier, the ANN index, and the
// durable store. Returns ErrNotFound when no fragment has the id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("delete", ErrStoreClosed)
	}
	if _, ok := s.l3[id]; !ok {
		return wrapError("delete", fmt.Errorf("%w: %s", ErrNotFound, id))
	}

	if s.storage != nil {
		if err := s.storage.DeleteFragment(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return wrapError("delete", err)
		}
	}

	s.removeLocked(id)
	return nil
}

// DeleteByPrefix removes every fragment whose id starts with prefix and
// returns how many were removed. Zero matches is not an error.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, wrapError("delete_prefix", ErrStoreClosed)
	}

	matches := make([]string, 0)
	for id := range s.l3 {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	if len(matches) == 0 {
		return 0, nil
	}

	if s.storage != nil {
		if _, err := s.storage.DeleteFragmentsByPrefix(ctx, prefix); err != nil {
			return 0, wrapError("delete_prefix", err)
		}
	}

	for _, id := range matches {
		s.removeLocked(id)
	}
	return len(matches), nil
}

// StoreStats reports tier occupancy and index shape
type StoreStats struct {
	L1Count   int
	L2Count   int
	L3Count   int
	Dimension int
	Persisted bool
	Index     storage.HNSWStats
}

// Stats returns a snapshot of tier and index statistics
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		L1Count:   len(s.l1),
		L2Count:   len(s.l2),
		L3Count:   len(s.l3),
		Dimension: s.config.Dimension,
		Persisted: s.storage != nil,
		Index:     s.index.Stats(),
	}
}

// Close snapshots the ANN index and closes the durable tier. Closing an
// already-closed store is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.storage == nil {
		return nil
	}

	// A failed snapshot is recoverable: the next open rebuilds the index
	// from stored vectors.
	var buf bytes.Buffer
	if err := s.index.Save(&buf); err != nil {
		log.Printf("vectorstore: snapshot index for %s: %v", s.path, err)
	} else if err := s.storage.SaveIndexSnapshot(context.Background(), storage.SnapshotKindHNSW, buf.Bytes()); err != nil {
		log.Printf("vectorstore: persist index snapshot for %s: %v", s.path, err)
	}

	if err := s.storage.Close(); err != nil {
		return wrapError("close", err)
	}
	return nil
}
