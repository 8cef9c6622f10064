package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"log"

	"github.com/dshills/gorecall-mcp/internal/storage"
	"github.com/dshills/gorecall-mcp/pkg/types"
)

// load seeds the in-memory tiers from the durable store and restores
// the ANN index from its last snapshot. A missing, undecodable, or
// out-of-sync snapshot falls back to a rebuild from stored vectors.
// Runs during construction, before the store is shared.
func (s *Store) load(ctx context.Context) error {
	records, err := s.storage.ListFragments(ctx)
	if err != nil {
		return err
	}

	var maxSeq int64
	for _, rec := range records {
		frag, err := rec.ToTypesFragment()
		if err != nil {
			return err
		}
		frag.Tier = types.TierL3
		s.l3[frag.ID] = frag
		s.seq[frag.ID] = rec.Seq
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
		// Persisted access counts re-seed L1/L2 placement
		s.promoteLocked(frag)
	}
	s.nextSeq = maxSeq

	if len(s.l3) == 0 {
		return nil
	}

	data, err := s.storage.LoadIndexSnapshot(ctx, storage.SnapshotKindHNSW)
	switch {
	case err == nil:
		if loadErr := s.index.Load(bytes.NewReader(data)); loadErr != nil {
			log.Printf("vectorstore: decode index snapshot for %s, rebuilding: %v", s.path, loadErr)
		} else if s.index.Size() == len(s.l3) {
			return nil
		} else {
			log.Printf("vectorstore: index snapshot for %s out of sync, rebuilding", s.path)
		}
	case errors.Is(err, storage.ErrNotFound):
		// First open since the schema gained snapshots, or an unclean
		// shutdown. Rebuild below.
	default:
		return err
	}

	// Rebuild from stored vectors in insertion order. A partially
	// decoded snapshot is discarded wholesale.
	s.index = storage.NewHNSW(s.config.M, s.config.EfConstruction, s.config.EfSearch)
	for _, rec := range records {
		frag, ok := s.l3[rec.ID]
		if !ok {
			continue
		}
		if err := s.index.Insert(frag.ID, frag.Vector); err != nil {
			return err
		}
	}
	return nil
}

// lookupLocked finds a fragment by tier order: L1, then L2, then L3.
// Tiers share one canonical pointer per id, so the result is identical
// wherever the hit lands; the order mirrors read cost.
func (s *Store) lookupLocked(id string) *types.VectorFragment {
	if frag, ok := s.l1[id]; ok {
		return frag
	}
	if frag, ok := s.l2[id]; ok {
		return frag
	}
	if frag, ok := s.l3[id]; ok {
		return frag
	}
	return nil
}

// promoteLocked applies the threshold policy to frag. Past the L2
// threshold it joins L2; past the L1 threshold it also joins L1,
// evicting the least recently promoted entry when L1 is at capacity.
// Promotion never demotes and never resets access counts.
func (s *Store) promoteLocked(frag *types.VectorFragment) {
	if frag.AccessCount < s.config.L2AccessThreshold {
		return
	}
	if _, ok := s.l2[frag.ID]; !ok {
		s.l2[frag.ID] = frag
		frag.Tier = types.TierL2
	}

	if frag.AccessCount < s.config.L1AccessThreshold {
		return
	}
	if _, ok := s.l1[frag.ID]; ok {
		return
	}
	if len(s.l1) >= s.config.L1CacheSize {
		s.evictL1Locked()
	}
	s.l1[frag.ID] = frag
	s.l1Order = append(s.l1Order, frag.ID)
	frag.Tier = types.TierL1
}

// evictL1Locked drops the least recently promoted L1 entry. The victim
// keeps its L2/L3 residency and its access count, so a later hit
// re-promotes it.
func (s *Store) evictL1Locked() {
	if len(s.l1Order) == 0 {
		return
	}
	victim := s.l1Order[0]
	s.l1Order = s.l1Order[1:]
	if frag, ok := s.l1[victim]; ok {
		delete(s.l1, victim)
		frag.Tier = types.TierL2
	}
}

// dropFromUpperTiersLocked clears L1/L2 membership ahead of an
// overwrite. The replacement starts cold unless its own access count
// re-seeds placement.
func (s *Store) dropFromUpperTiersLocked(id string) {
	delete(s.l1, id)
	delete(s.l2, id)
	s.removeFromL1OrderLocked(id)
}

// removeLocked erases a fragment from every tier and the index
func (s *Store) removeLocked(id string) {
	s.dropFromUpperTiersLocked(id)
	delete(s.l3, id)
	delete(s.seq, id)
	s.index.Delete(id)
}

func (s *Store) removeFromL1OrderLocked(id string) {
	for i, existing := range s.l1Order {
		if existing == id {
			s.l1Order = append(s.l1Order[:i], s.l1Order[i+1:]...)
			return
		}
	}
}

// persistAccessLocked writes an updated access count through to the
// durable tier. Failures are logged and the in-memory count stands; a
// read does not fail because its bookkeeping could not be written.
func (s *Store) persistAccessLocked(ctx context.Context, frag *types.VectorFragment) {
	if s.storage == nil || s.closed {
		return
	}
	if err := s.storage.UpdateAccessCount(ctx, frag.ID, frag.AccessCount); err != nil {
		log.Printf("vectorstore: persist access count for %s: %v", frag.ID, err)
	}
}
