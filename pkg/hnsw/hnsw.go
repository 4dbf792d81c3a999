// Package hnsw implements a Hierarchical Navigable Small World index: a
// multi-layer proximity graph giving approximate k-nearest-neighbour search
// over dense float32 vectors. Generalized from a gob-based single-process
// index into one whose node set can be streamed through an external
// persistence layer (see persist.go) and whose identifiers are entity IDs
// rather than an internal counter.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// DistanceFunc scores dissimilarity between two vectors of equal length;
// smaller is closer. Cosine is the default; callers may plug in another via
// the plugin registry.
type DistanceFunc func(a, b []float32) float32

// Quantizer optionally compresses stored vectors, trading memory for a
// decode step during distance calculation.
type Quantizer interface {
	Encode(vec []float32) ([]byte, error)
	Decode(encoded []byte) ([]float32, error)
}

// Node is a single point in the proximity graph.
type Node struct {
	ID        string
	Vector    []float32
	Quantized []byte
	Level     int
	Neighbors [][]string
	Deleted   bool
}

// Index is the HNSW structure itself: not safe to share across goroutines
// without its own lock, held internally.
type Index struct {
	M              int
	MaxM           int
	EfConstruction int
	ML             float64

	Nodes      map[string]*Node
	EntryPoint string

	DistFunc  DistanceFunc
	Quantizer Quantizer

	mu  sync.RWMutex
	rng *rand.Rand
}

// New creates an empty index. M bounds the bidirectional link count per
// layer (2M at layer 0); efConstruction bounds the candidate list size
// during insertion.
func New(m, efConstruction int, distFunc DistanceFunc) *Index {
	if distFunc == nil {
		distFunc = CosineDistance
	}
	seed := time.Now().UnixNano()
	return &Index{
		M:              m,
		MaxM:           m * 2,
		EfConstruction: efConstruction,
		ML:             1.0 / math.Log(2.0),
		Nodes:          make(map[string]*Node),
		DistFunc:       distFunc,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// SetQuantizer swaps in a vector quantizer; existing stored vectors are
// unaffected until re-inserted.
func (idx *Index) SetQuantizer(q Quantizer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Quantizer = q
}

func (idx *Index) calculateDistance(query []float32, node *Node) float32 {
	if node.Vector != nil {
		return idx.DistFunc(query, node.Vector)
	}
	if node.Quantized != nil && idx.Quantizer != nil {
		if vec, err := idx.Quantizer.Decode(node.Quantized); err == nil {
			return idx.DistFunc(query, vec)
		}
	}
	return math.MaxFloat32
}

func (idx *Index) selectLevel() int {
	level := 0
	for idx.rng.Float64() < 0.5 {
		level++
		if level > 16 {
			break
		}
	}
	return level
}

// Insert adds id with the given vector. Re-inserting an existing id is
// rejected — callers delete-then-insert (or Update goes through the store
// layer, which does that) rather than mutating a node in place.
func (idx *Index) Insert(id string, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.Nodes[id]; exists {
		return fmt.Errorf("hnsw: node %q already exists", id)
	}

	var quantized []byte
	storedVector := vector
	if idx.Quantizer != nil {
		if q, err := idx.Quantizer.Encode(vector); err == nil {
			quantized = q
			storedVector = nil
		}
	}

	level := idx.selectLevel()
	node := &Node{ID: id, Vector: storedVector, Quantized: quantized, Level: level, Neighbors: make([][]string, level+1)}
	for i := 0; i <= level; i++ {
		node.Neighbors[i] = make([]string, 0)
	}
	idx.Nodes[id] = node

	if idx.EntryPoint == "" {
		idx.EntryPoint = id
		return nil
	}

	entryNode := idx.Nodes[idx.EntryPoint]
	currNearest := []string{idx.EntryPoint}
	for lc := entryNode.Level; lc > level; lc-- {
		currNearest = idx.searchLayerClosest(vector, currNearest, 1, lc)
	}

	for lc := level; lc >= 0; lc-- {
		m := idx.M
		if lc == 0 {
			m = idx.MaxM
		}
		candidates := idx.searchLayer(vector, currNearest, idx.EfConstruction, lc)
		neighbors := idx.selectNeighborsHeuristic(vector, candidates, m)

		node.Neighbors[lc] = neighbors
		for _, neighbor := range neighbors {
			idx.addConnection(neighbor, id, lc)

			neighborNode := idx.Nodes[neighbor]
			maxConn := idx.M
			if lc == 0 {
				maxConn = idx.MaxM
			}
			if lc < len(neighborNode.Neighbors) && len(neighborNode.Neighbors[lc]) > maxConn {
				neighborVec := neighborNode.Vector
				if neighborVec == nil && neighborNode.Quantized != nil && idx.Quantizer != nil {
					neighborVec, _ = idx.Quantizer.Decode(neighborNode.Quantized)
				}
				if neighborVec != nil {
					neighborNode.Neighbors[lc] = idx.selectNeighborsHeuristic(neighborVec, neighborNode.Neighbors[lc], maxConn)
				}
			}
		}
		currNearest = neighbors
	}

	if level > idx.Nodes[idx.EntryPoint].Level {
		idx.EntryPoint = id
	}
	return nil
}

func (idx *Index) searchLayer(query []float32, entryPoints []string, ef int, layer int) []string {
	visited := make(map[string]bool)
	candidates := &distHeap{}
	dynamic := &distHeap{}

	for _, point := range entryPoints {
		node, ok := idx.Nodes[point]
		if !ok {
			continue
		}
		dist := idx.calculateDistance(query, node)
		heap.Push(candidates, &heapItem{id: point, dist: dist})
		heap.Push(dynamic, &heapItem{id: point, dist: -dist})
		visited[point] = true
	}

	for candidates.Len() > 0 {
		if dynamic.Len() > 0 {
			lowerBound := (*candidates)[0].dist
			if lowerBound > -(*dynamic)[0].dist {
				break
			}
		}
		current := heap.Pop(candidates).(*heapItem)
		currentNode, ok := idx.Nodes[current.id]
		if !ok || layer >= len(currentNode.Neighbors) {
			continue
		}
		for _, neighbor := range currentNode.Neighbors[layer] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			neighborNode, ok := idx.Nodes[neighbor]
			if !ok {
				continue
			}
			dist := idx.calculateDistance(query, neighborNode)
			if dynamic.Len() < ef || dist < -(*dynamic)[0].dist {
				heap.Push(candidates, &heapItem{id: neighbor, dist: dist})
				heap.Push(dynamic, &heapItem{id: neighbor, dist: -dist})
				if dynamic.Len() > ef {
					heap.Pop(dynamic)
				}
			}
		}
	}

	result := make([]string, 0, dynamic.Len())
	for dynamic.Len() > 0 {
		result = append(result, heap.Pop(dynamic).(*heapItem).id)
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (idx *Index) searchLayerClosest(query []float32, entryPoints []string, num, layer int) []string {
	candidates := idx.searchLayer(query, entryPoints, num, layer)
	if len(candidates) > num {
		return candidates[:num]
	}
	return candidates
}

func (idx *Index) selectNeighborsHeuristic(query []float32, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}
	type pair struct {
		id   string
		dist float32
	}
	pairs := make([]pair, len(candidates))
	for i, c := range candidates {
		node, ok := idx.Nodes[c]
		dist := float32(math.MaxFloat32)
		if ok {
			dist = idx.calculateDistance(query, node)
		}
		pairs[i] = pair{id: c, dist: dist}
	}
	for i := 0; i < len(pairs)-1; i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	out := make([]string, 0, m)
	for i := 0; i < m && i < len(pairs); i++ {
		out = append(out, pairs[i].id)
	}
	return out
}

func (idx *Index) addConnection(from, to string, layer int) {
	fromNode, exists := idx.Nodes[from]
	if !exists || layer >= len(fromNode.Neighbors) {
		return
	}
	for _, n := range fromNode.Neighbors[layer] {
		if n == to {
			return
		}
	}
	fromNode.Neighbors[layer] = append(fromNode.Neighbors[layer], to)
}

// Search returns up to k nearest live (non-tombstoned) node IDs, searching
// an ef-bounded beam at layer 0 after a greedy descent through upper
// layers.
func (idx *Index) Search(query []float32, k, ef int) ([]string, []float32) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.EntryPoint == "" {
		return []string{}, []float32{}
	}
	entryNode := idx.Nodes[idx.EntryPoint]
	currNearest := []string{idx.EntryPoint}
	for layer := entryNode.Level; layer > 0; layer-- {
		currNearest = idx.searchLayerClosest(query, currNearest, 1, layer)
	}
	candidates := idx.searchLayer(query, currNearest, ef, 0)

	type result struct {
		id   string
		dist float32
	}
	results := make([]result, 0, len(candidates))
	for _, c := range candidates {
		if node, ok := idx.Nodes[c]; ok && !node.Deleted {
			results = append(results, result{id: c, dist: idx.calculateDistance(query, node)})
		}
	}
	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].dist < results[i].dist {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if k > len(results) {
		k = len(results)
	}
	ids := make([]string, k)
	dists := make([]float32, k)
	for i := 0; i < k; i++ {
		ids[i] = results[i].id
		dists[i] = results[i].dist
	}
	return ids, dists
}

// Delete soft-deletes id: the node is kept (its links keep the graph
// connected for other nodes' traversal) but skipped by Search. A new entry
// point is chosen if id was it.
func (idx *Index) Delete(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	node, exists := idx.Nodes[id]
	if !exists {
		return fmt.Errorf("hnsw: node %q not found", id)
	}
	node.Deleted = true

	if idx.EntryPoint == id {
		idx.EntryPoint = ""
		for nodeID, n := range idx.Nodes {
			if !n.Deleted {
				idx.EntryPoint = nodeID
				break
			}
		}
	}
	return nil
}

// Size returns the count of live (non-tombstoned) nodes.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	count := 0
	for _, n := range idx.Nodes {
		if !n.Deleted {
			count++
		}
	}
	return count
}

// TombstoneRatio reports the fraction of nodes currently soft-deleted,
// used by callers to decide when to invoke CompactTombstones.
func (idx *Index) TombstoneRatio() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.Nodes) == 0 {
		return 0
	}
	deleted := 0
	for _, n := range idx.Nodes {
		if n.Deleted {
			deleted++
		}
	}
	return float64(deleted) / float64(len(idx.Nodes))
}

// CompactTombstones rebuilds the index from its live nodes, dropping
// tombstoned ones and their links entirely. This is the "periodic
// compaction re-links neighbours" step; it is caller-invoked (e.g. once
// TombstoneRatio exceeds 20%), never a background goroutine.
func (idx *Index) CompactTombstones() {
	idx.mu.Lock()
	live := make([]*Node, 0, len(idx.Nodes))
	for _, n := range idx.Nodes {
		if !n.Deleted {
			live = append(live, n)
		}
	}
	idx.Nodes = make(map[string]*Node)
	idx.EntryPoint = ""
	m, ef, q, df := idx.M, idx.EfConstruction, idx.Quantizer, idx.DistFunc
	idx.mu.Unlock()

	rebuilt := New(m, ef, df)
	rebuilt.SetQuantizer(q)
	for _, n := range live {
		vec := n.Vector
		if vec == nil && n.Quantized != nil && q != nil {
			vec, _ = q.Decode(n.Quantized)
		}
		if vec == nil {
			continue
		}
		_ = rebuilt.Insert(n.ID, vec)
	}

	idx.mu.Lock()
	idx.Nodes = rebuilt.Nodes
	idx.EntryPoint = rebuilt.EntryPoint
	idx.mu.Unlock()
}

// Stats reports structural diagnostics for observability/tests.
func (idx *Index) Stats() map[string]interface{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	total := len(idx.Nodes)
	active, edges, maxLevel := 0, 0, 0
	levelDist := make(map[int]int)
	for _, n := range idx.Nodes {
		if n.Deleted {
			continue
		}
		active++
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
		levelDist[n.Level]++
		for _, neighbors := range n.Neighbors {
			edges += len(neighbors)
		}
	}
	avg := 0.0
	if active > 0 {
		avg = float64(edges) / float64(active)
	}
	return map[string]interface{}{
		"total_nodes":        total,
		"active_nodes":       active,
		"deleted_nodes":      total - active,
		"total_edges":        edges,
		"avg_edges_per_node": avg,
		"max_level":          maxLevel,
		"level_distribution": levelDist,
		"entry_point":        idx.EntryPoint,
		"m":                  idx.M,
		"ef_construction":    idx.EfConstruction,
	}
}

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
	*h = old[:n-1]
	return item
}

// CosineDistance is 1 minus cosine similarity; the default distance used
// unless a plugin overrides it.
func CosineDistance(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(float32(math.Sqrt(float64(normA)))*float32(math.Sqrt(float64(normB))))
}

// EuclideanDistance is the plain L2 norm of the difference vector.
func EuclideanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// DotProductDistance returns negative dot product, so smaller is closer.
func DotProductDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}
