// Package hnsw implements the per-agent semantic memory index (spec §4.4):
// a Hierarchical Navigable Small World proximity graph over cosine
// similarity, supporting approximate k-nearest-neighbor search in
// logarithmic expected time.
package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/octoreflex/ranswarm/internal/vectorops"
)

// Default construction/search parameters (spec §4.4, §8 scenario 6).
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
)

// perNodeConstantBytes approximates the fixed per-node overhead (id, level,
// slice headers) that MemoryUsage adds on top of vector and neighbor-list
// storage.
const perNodeConstantBytes = 64

// ErrDimensionMismatch is returned when a vector's length does not match
// the index's declared dimension.
var ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")

// ErrNotFound is returned by Remove for an unknown id.
var ErrNotFound = errors.New("hnsw: id not found")

type node struct {
	id        uint64
	vector    []float32
	level     int
	neighbors [][]uint64 // neighbors[l] = neighbor ids at layer l, 0 <= l <= level
}

// Result is one hit from Search, ordered by descending similarity with
// ties broken by ascending id.
type Result struct {
	ID         uint64
	Similarity float32
}

// Index is a single agent's HNSW semantic memory. Not safe for use by more
// than one agent at a time other than through its own exported methods,
// which are internally synchronized (spec §5: HNSW index is owned by one
// agent).
type Index struct {
	mu sync.RWMutex

	dim            int
	m              int
	efConstruction int
	efSearch       int
	// mL is the level-generation normalization factor. The distilled design
	// left this as an open question (one reference module used 0.5, another
	// left it unset); this index uses mL = 1/ln(M), the value the HNSW
	// paper pairs with multiplying by mL. randomLevel divides by mL
	// instead, so P(level >= l) = exp(-l/ln(M)) (about exp(-l/2.77) for
	// M=16) and nodes reach more layers than log_M(n).
	mL float64

	nodes      map[uint64]*node
	nextID     uint64
	entryPoint uint64
	hasEntry   bool

	ops *vectorops.Ops
	rng *rand.Rand
}

// Config bundles the index's construction parameters.
type Config struct {
	Dim            int
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64
}

// DefaultConfig returns a Config using the standard reference parameters
// for HNSW (M=16, efConstruction=200, efSearch=50).
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
	}
}

// New constructs an empty index.
func New(cfg Config) *Index {
	m := cfg.M
	if m <= 0 {
		m = DefaultM
	}
	efc := cfg.EfConstruction
	if efc <= 0 {
		efc = DefaultEfConstruction
	}
	efs := cfg.EfSearch
	if efs <= 0 {
		efs = DefaultEfSearch
	}
	source := rand.NewSource(cfg.Seed)
	if cfg.Seed == 0 {
		source = rand.NewSource(1)
	}
	return &Index{
		dim:            cfg.Dim,
		m:              m,
		efConstruction: efc,
		efSearch:       efs,
		mL:             1.0 / math.Log(float64(m)),
		nodes:          make(map[uint64]*node),
		ops:            vectorops.New(),
		rng:            rand.New(source),
	}
}

// Len returns the number of resident vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Dim returns the vector dimensionality the index was configured for.
func (ix *Index) Dim() int {
	return ix.dim
}

// randomLevel draws L = floor(-ln(U(0,1)) / mL); spec maps U=0 to L=0.
func (ix *Index) randomLevel() int {
	u := ix.rng.Float64()
	if u == 0 {
		return 0
	}
	return int(math.Floor(-math.Log(u) / ix.mL))
}

// Insert adds v to the index and returns its assigned id.
func (ix *Index) Insert(v []float32) (uint64, error) {
	if len(v) != ix.dim {
		return 0, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(v), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	vec := append([]float32(nil), v...)
	level := ix.randomLevel()
	id := ix.nextID
	ix.nextID++

	n := &node{
		id:        id,
		vector:    vec,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	ix.nodes[id] = n

	if !ix.hasEntry {
		ix.entryPoint = id
		ix.hasEntry = true
		return id, nil
	}

	entry := ix.entryPoint
	topLevel := ix.nodes[entry].level

	// 1. Greedy descent from top_level down to L+1.
	for lc := topLevel; lc > level; lc-- {
		entry = ix.greedyClosest(vec, entry, lc)
	}

	// 2. search_layer from L down to 0, connecting bidirectionally. For
	// layers above the old top_level, entry (still the original entry
	// point) has no neighbors recorded yet at that layer, so search_layer
	// degenerates to just the entry point itself.
	for lc := level; lc >= 0; lc-- {
		ef := maxInt(ix.efConstruction, ix.m)
		candidates := ix.searchLayer(vec, entry, ef, lc)
		if len(candidates) == 0 {
			continue
		}
		selected := candidates
		if len(selected) > ix.m {
			selected = selected[:ix.m]
		}
		for _, c := range selected {
			ix.connect(id, c.id, lc)
			ix.pruneIfNeeded(c.id, lc)
		}
		entry = selected[0].id
	}

	// Layers above topLevel that this node introduces have no existing
	// peers to connect to; nothing further to do for lc > topLevel.

	// 3. Promote to entry point if this node reaches a higher level.
	if level > topLevel {
		ix.entryPoint = id
	}

	return id, nil
}

func (ix *Index) greedyClosest(q []float32, from uint64, layer int) uint64 {
	current := from
	currentSim := ix.similarity(q, current)
	improved := true
	for improved {
		improved = false
		cn := ix.nodes[current]
		if layer >= len(cn.neighbors) {
			break
		}
		for _, nb := range cn.neighbors[layer] {
			sim := ix.similarity(q, nb)
			if sim > currentSim {
				currentSim = sim
				current = nb
				improved = true
			}
		}
	}
	return current
}

func (ix *Index) similarity(q []float32, id uint64) float32 {
	return ix.ops.Cosine(q, ix.nodes[id].vector)
}

type candidate struct {
	id  uint64
	sim float32
}

// maxSimHeap is a max-heap on similarity (best candidate at the root),
// used as the "candidates" queue so expansion pops best-first.
type maxSimHeap []candidate

func (h maxSimHeap) Len() int            { return len(h) }
func (h maxSimHeap) Less(i, j int) bool  { return h[i].sim > h[j].sim }
func (h maxSimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxSimHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxSimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// minSimHeap is a min-heap on similarity, used to hold the current result
// set so the worst kept result is always at the root for fast eviction.
type minSimHeap []candidate

func (h minSimHeap) Len() int            { return len(h) }
func (h minSimHeap) Less(i, j int) bool  { return h[i].sim < h[j].sim }
func (h minSimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minSimHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minSimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer is the best-first search described in spec §4.4: a
// max-similarity candidate queue to expand from, a min-similarity result
// queue bounded to ef entries, and a visited set to prevent re-expansion.
// Returns candidates sorted by descending similarity (ties by ascending id).
func (ix *Index) searchLayer(q []float32, entry uint64, ef int, layer int) []candidate {
	visited := map[uint64]bool{entry: true}

	entrySim := ix.similarity(q, entry)
	candidates := &maxSimHeap{{id: entry, sim: entrySim}}
	results := &minSimHeap{{id: entry, sim: entrySim}}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		cur := heap.Pop(candidates).(candidate)

		if results.Len() > 0 && cur.sim < (*results)[0].sim && results.Len() >= ef {
			break
		}

		n := ix.nodes[cur.id]
		if layer >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			sim := ix.similarity(q, nb)

			if results.Len() < ef || sim > (*results)[0].sim {
				heap.Push(candidates, candidate{id: nb, sim: sim})
				heap.Push(results, candidate{id: nb, sim: sim})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	sortCandidates(out)
	return out
}

func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].sim != cs[j].sim {
			return cs[i].sim > cs[j].sim
		}
		return cs[i].id < cs[j].id
	})
}

// connect adds a bidirectional edge between a and b at layer, extending
// either node's neighbor-list slice if this is a new layer for it.
func (ix *Index) connect(a, b uint64, layer int) {
	ix.ensureLayer(a, layer)
	ix.ensureLayer(b, layer)
	ix.addNeighborIfAbsent(a, b, layer)
	ix.addNeighborIfAbsent(b, a, layer)
}

func (ix *Index) ensureLayer(id uint64, layer int) {
	n := ix.nodes[id]
	if layer < len(n.neighbors) {
		return
	}
	grown := make([][]uint64, layer+1)
	copy(grown, n.neighbors)
	n.neighbors = grown
}

func (ix *Index) addNeighborIfAbsent(from, to uint64, layer int) {
	n := ix.nodes[from]
	for _, existing := range n.neighbors[layer] {
		if existing == to {
			return
		}
	}
	n.neighbors[layer] = append(n.neighbors[layer], to)
}

// pruneIfNeeded keeps node id's neighbor list at layer bounded to M,
// discarding the lowest-similarity neighbors (spec §4.4: "prune to the M
// closest by cosine distance").
func (ix *Index) pruneIfNeeded(id uint64, layer int) {
	n := ix.nodes[id]
	if len(n.neighbors[layer]) <= ix.m {
		return
	}
	cs := make([]candidate, len(n.neighbors[layer]))
	for i, nb := range n.neighbors[layer] {
		cs[i] = candidate{id: nb, sim: ix.similarity(n.vector, nb)}
	}
	sortCandidates(cs)
	kept := cs[:ix.m]
	newNeighbors := make([]uint64, len(kept))
	for i, c := range kept {
		newNeighbors[i] = c.id
	}
	n.neighbors[layer] = newNeighbors
}

// Search returns the top-k most similar vectors to q.
func (ix *Index) Search(q []float32, k int) ([]Result, error) {
	if len(q) != ix.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(q), ix.dim)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.hasEntry || k <= 0 {
		return nil, nil
	}

	entry := ix.entryPoint
	topLevel := ix.nodes[entry].level
	for lc := topLevel; lc > 0; lc-- {
		entry = ix.greedyClosest(q, entry, lc)
	}

	ef := maxInt(k, ix.efSearch)
	candidates := ix.searchLayer(q, entry, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.id, Similarity: c.sim}
	}
	return results, nil
}

// Remove deletes id from the index, scrubbing it from every referencing
// node's neighbor lists and replacing the entry point if necessary.
func (ix *Index) Remove(id uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	// Pruning can leave one-way edges, so scan every node rather than
	// only target's own neighbors.
	delete(ix.nodes, id)
	for _, n := range ix.nodes {
		for layer := range n.neighbors {
			n.neighbors[layer] = removeID(n.neighbors[layer], id)
		}
	}

	if ix.hasEntry && ix.entryPoint == id {
		ix.hasEntry = false
		var bestID uint64
		bestLevel := -1
		for nid, n := range ix.nodes {
			if n.level > bestLevel {
				bestLevel = n.level
				bestID = nid
				ix.hasEntry = true
			}
		}
		ix.entryPoint = bestID
	}

	return nil
}

func removeID(ids []uint64, target uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// MemoryUsage estimates the aggregate resident bytes: per node, the
// dimension vector plus the capacity of every neighbor-list layer plus a
// small constant overhead (spec §4.4).
func (ix *Index) MemoryUsage() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var total uint64
	for _, n := range ix.nodes {
		total += uint64(ix.dim) * 4
		for _, layer := range n.neighbors {
			total += uint64(len(layer)) * 4
		}
		total += perNodeConstantBytes
	}
	return total
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
