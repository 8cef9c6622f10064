package storage

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// maxGraphLevel caps the level assignment for new nodes
const maxGraphLevel = 16

// HNSWNode is a single entry in the navigable small world graph.
// Fields are exported for gob snapshot encoding.
type HNSWNode struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]string // Neighbor ids per level
	Deleted   bool
}

// HNSW implements a Hierarchical Navigable Small World index over
// fragment vectors. Deletes are soft: nodes stay in the graph for
// connectivity and are filtered from results. Re-inserting an id
// replaces the prior node.
type HNSW struct {
	M              int // Max bi-directional links per node
	MaxM           int // Max links at layer 0 (2*M)
	EfConstruction int // Candidate list size during build
	EfSearch       int // Candidate list size during query

	Nodes      map[string]*HNSWNode
	EntryPoint string

	mu  sync.RWMutex
	rng *rand.Rand
}

// NewHNSW creates an empty index with the given build/query parameters.
// Parameter bounds are enforced by the store configuration.
func NewHNSW(m, efConstruction, efSearch int) *HNSW {
	return &HNSW{
		M:              m,
		MaxM:           m * 2,
		EfConstruction: efConstruction,
		EfSearch:       efSearch,
		Nodes:          make(map[string]*HNSWNode),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Insert adds a vector to the graph, replacing any prior node with the
// same id. The replaced node is removed from the map; stale edges that
// still name it are skipped during traversal.
func (h *HNSW) Insert(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("hnsw: empty node id")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.Nodes[id]; exists {
		h.removeLocked(id)
	}

	level := h.selectLevel()
	node := &HNSWNode{
		ID:        id,
		Vector:    vector,
		Level:     level,
		Neighbors: make([][]string, level+1),
	}
	for i := 0; i <= level; i++ {
		node.Neighbors[i] = make([]string, 0)
	}

	h.Nodes[id] = node

	// First node becomes the entry point
	if h.EntryPoint == "" || h.Nodes[h.EntryPoint] == nil {
		h.EntryPoint = id
		return nil
	}

	// Descend from the top layer to the target layer
	currNearest := []string{h.EntryPoint}
	entryNode := h.Nodes[h.EntryPoint]
	for lc := entryNode.Level; lc > level; lc-- {
		currNearest = h.searchLayer(vector, currNearest, 1, lc)
		if len(currNearest) == 0 {
			currNearest = []string{h.EntryPoint}
		}
	}

	// Link into every layer from level down to 0
	for lc := level; lc >= 0; lc-- {
		maxConn := h.M
		if lc == 0 {
			maxConn = h.MaxM
		}

		candidates := h.searchLayer(vector, currNearest, h.EfConstruction, lc)
		neighbors := h.selectNeighbors(vector, candidates, maxConn)

		node.Neighbors[lc] = neighbors
		for _, neighbor := range neighbors {
			h.addConnection(neighbor, id, lc)

			// Prune the neighbor's links when it exceeds its budget
			neighborNode := h.Nodes[neighbor]
			if neighborNode == nil || lc >= len(neighborNode.Neighbors) {
				continue
			}
			if len(neighborNode.Neighbors[lc]) > maxConn {
				neighborNode.Neighbors[lc] = h.selectNeighbors(
					neighborNode.Vector, neighborNode.Neighbors[lc], maxConn)
			}
		}

		if len(neighbors) > 0 {
			currNearest = neighbors
		}
	}

	// Promote to entry point when this node tops the graph
	if level > h.Nodes[h.EntryPoint].Level {
		h.EntryPoint = id
	}

	return nil
}

// Search returns up to k live node ids nearest to query, closest first,
// along with their cosine distances (1 - similarity).
func (h *HNSW) Search(query []float32, k int) ([]string, []float32) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.EntryPoint == "" || h.Nodes[h.EntryPoint] == nil {
		return []string{}, []float32{}
	}

	ef := h.EfSearch
	if ef < k {
		ef = k * 2
	}

	// Greedy descent to layer 1, then a wide search at layer 0
	entryNode := h.Nodes[h.EntryPoint]
	currNearest := []string{h.EntryPoint}
	for layer := entryNode.Level; layer > 0; layer-- {
		next := h.searchLayer(query, currNearest, 1, layer)
		if len(next) > 0 {
			currNearest = next
		}
	}

	candidates := h.searchLayer(query, currNearest, ef, 0)

	type scored struct {
		id   string
		dist float32
	}
	results := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		node := h.Nodes[candidate]
		if node == nil || node.Deleted {
			continue
		}
		results = append(results, scored{id: candidate, dist: cosineDistance(query, node.Vector)})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].dist < results[j].dist
	})

	if k > len(results) {
		k = len(results)
	}
	ids := make([]string, k)
	distances := make([]float32, k)
	for i := 0; i < k; i++ {
		ids[i] = results[i].id
		distances[i] = results[i].dist
	}
	return ids, distances
}

// Delete soft-deletes a node. It remains in the graph for traversal but
// never appears in search results. Unknown ids are a no-op.
func (h *HNSW) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, exists := h.Nodes[id]
	if !exists {
		return
	}
	node.Deleted = true

	if h.EntryPoint == id {
		h.EntryPoint = ""
		for nodeID, n := range h.Nodes {
			if !n.Deleted {
				h.EntryPoint = nodeID
				break
			}
		}
	}
}

// Size returns the number of live nodes
func (h *HNSW) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, node := range h.Nodes {
		if !node.Deleted {
			count++
		}
	}
	return count
}

// HNSWStats summarizes graph shape for status reporting
type HNSWStats struct {
	TotalNodes   int
	ActiveNodes  int
	DeletedNodes int
	TotalEdges   int
	MaxLevel     int
}

// Stats returns current graph statistics
func (h *HNSW) Stats() HNSWStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HNSWStats{TotalNodes: len(h.Nodes)}
	for _, node := range h.Nodes {
		if node.Deleted {
			continue
		}
		stats.ActiveNodes++
		if node.Level > stats.MaxLevel {
			stats.MaxLevel = node.Level
		}
		for _, neighbors := range node.Neighbors {
			stats.TotalEdges += len(neighbors)
		}
	}
	stats.DeletedNodes = stats.TotalNodes - stats.ActiveNodes
	return stats
}

// Save serializes the graph with gob for the snapshot table
func (h *HNSW) Save(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	enc := gob.NewEncoder(w)
	if err := enc.Encode(h.M); err != nil {
		return fmt.Errorf("hnsw: encode M: %w", err)
	}
	if err := enc.Encode(h.EfConstruction); err != nil {
		return fmt.Errorf("hnsw: encode efConstruction: %w", err)
	}
	if err := enc.Encode(h.EntryPoint); err != nil {
		return fmt.Errorf("hnsw: encode entry point: %w", err)
	}
	if err := enc.Encode(len(h.Nodes)); err != nil {
		return fmt.Errorf("hnsw: encode node count: %w", err)
	}
	for _, node := range h.Nodes {
		if err := enc.Encode(node); err != nil {
			return fmt.Errorf("hnsw: encode node %s: %w", node.ID, err)
		}
	}
	return nil
}

// Load restores a graph previously written by Save. Query-time EfSearch
// keeps its configured value; build parameters come from the snapshot.
func (h *HNSW) Load(r io.Reader) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	dec := gob.NewDecoder(r)
	if err := dec.Decode(&h.M); err != nil {
		return fmt.Errorf("hnsw: decode M: %w", err)
	}
	h.MaxM = h.M * 2
	if err := dec.Decode(&h.EfConstruction); err != nil {
		return fmt.Errorf("hnsw: decode efConstruction: %w", err)
	}
	if err := dec.Decode(&h.EntryPoint); err != nil {
		return fmt.Errorf("hnsw: decode entry point: %w", err)
	}

	var count int
	if err := dec.Decode(&count); err != nil {
		return fmt.Errorf("hnsw: decode node count: %w", err)
	}

	h.Nodes = make(map[string]*HNSWNode, count)
	for i := 0; i < count; i++ {
		var node HNSWNode
		if err := dec.Decode(&node); err != nil {
			return fmt.Errorf("hnsw: decode node: %w", err)
		}
		h.Nodes[node.ID] = &node
	}
	return nil
}

// Internal graph operations. Callers hold h.mu.

// removeLocked physically drops a node from the map. Edges naming it
// stay in neighbor lists and are skipped by traversal.
func (h *HNSW) removeLocked(id string) {
	delete(h.Nodes, id)
	if h.EntryPoint == id {
		h.EntryPoint = ""
		for nodeID, n := range h.Nodes {
			if !n.Deleted {
				h.EntryPoint = nodeID
				break
			}
		}
	}
}

// selectLevel assigns a level with exponential decay (p=0.5 per level)
func (h *HNSW) selectLevel() int {
	level := 0
	for h.rng.Float64() < 0.5 {
		level++
		if level >= maxGraphLevel {
			break
		}
	}
	return level
}

// searchLayer runs a best-first search within one layer and returns up
// to ef node ids ordered closest first.
func (h *HNSW) searchLayer(query []float32, entryPoints []string, ef, layer int) []string {
	visited := make(map[string]bool)
	candidates := &distHeap{} // min-heap of frontier nodes
	nearest := &distHeap{}    // max-heap (negated) of best ef found

	for _, point := range entryPoints {
		node := h.Nodes[point]
		if node == nil || visited[point] {
			continue
		}
		dist := cosineDistance(query, node.Vector)
		heap.Push(candidates, &heapItem{id: point, dist: dist})
		heap.Push(nearest, &heapItem{id: point, dist: -dist})
		visited[point] = true
	}

	for candidates.Len() > 0 {
		if nearest.Len() >= ef {
			if (*candidates)[0].dist > -(*nearest)[0].dist {
				break
			}
		}

		current := heap.Pop(candidates).(*heapItem)
		currentNode := h.Nodes[current.id]
		if currentNode == nil || layer >= len(currentNode.Neighbors) {
			continue
		}

		for _, neighbor := range currentNode.Neighbors[layer] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true

			neighborNode := h.Nodes[neighbor]
			if neighborNode == nil {
				continue // stale edge from a replaced node
			}

			dist := cosineDistance(query, neighborNode.Vector)
			if nearest.Len() < ef || dist < -(*nearest)[0].dist {
				heap.Push(candidates, &heapItem{id: neighbor, dist: dist})
				heap.Push(nearest, &heapItem{id: neighbor, dist: -dist})
				if nearest.Len() > ef {
					heap.Pop(nearest)
				}
			}
		}
	}

	// Drain the max-heap, then reverse so the closest id comes first
	result := make([]string, 0, nearest.Len())
	for nearest.Len() > 0 {
		item := heap.Pop(nearest).(*heapItem)
		result = append(result, item.id)
	}
	for i := 0; i < len(result)/2; i++ {
		result[i], result[len(result)-1-i] = result[len(result)-1-i], result[i]
	}
	return result
}

// selectNeighbors keeps the m candidates closest to query
func (h *HNSW) selectNeighbors(query []float32, candidates []string, m int) []string {
	live := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if h.Nodes[candidate] != nil {
			live = append(live, candidate)
		}
	}
	if len(live) <= m {
		return live
	}

	sort.Slice(live, func(i, j int) bool {
		return cosineDistance(query, h.Nodes[live[i]].Vector) <
			cosineDistance(query, h.Nodes[live[j]].Vector)
	})
	return live[:m]
}

// addConnection records a one-directional edge if not already present
func (h *HNSW) addConnection(from, to string, layer int) {
	fromNode, exists := h.Nodes[from]
	if !exists || layer >= len(fromNode.Neighbors) {
		return
	}
	for _, neighbor := range fromNode.Neighbors[layer] {
		if neighbor == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// cosineDistance is 1 - cosine similarity, so smaller is closer
func cosineDistance(a, b []float32) float32 {
	return 1.0 - float32(cosineSimilarity(a, b))
}

// heapItem pairs a node id with its distance for the search heaps
type heapItem struct {
	id   string
	dist float32
}

type distHeap []*heapItem

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *distHeap) Push(x interface{}) {
	*h = append(*h, x.(*heapItem))
}

func (h *distHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}
