// Package vectorindex provides an approximate nearest-neighbour index over job embeddings.
package vectorindex

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
)

const (
	// minPointsPerPartition is how many vectors per partition an untrained index
	// collects before NeedsRebuild reports that training is worthwhile.
	minPointsPerPartition = 4
	// maxTrainingPointsPerPartition caps the k-means training sample.
	maxTrainingPointsPerPartition = 256
)

// Options configures an Index
type Options struct {
	Dimension  int    // Required vector length
	Partitions int    // Number of IVF clusters (capacity parameter)
	Probes     int    // Clusters scanned per query (recall parameter)
	Iterations int    // k-means iterations per rebuild
	Seed       uint64 // k-means seed; fixed for reproducible partitions
}

// DefaultOptions returns options sized for corpora up to roughly a million jobs
func DefaultOptions() Options {
	return Options{
		Dimension:  types.EmbeddingDimension,
		Partitions: 100,
		Probes:     10,
		Iterations: 10,
		Seed:       1,
	}
}

// Result is a single query hit
type Result struct {
	ID       uuid.UUID `json:"id"`
	Distance float64   `json:"distance"`
}

// Stats describes the current index generation
type Stats struct {
	Generation uint64 `json:"generation"`
	Partitions int    `json:"partitions"`
	Size       int    `json:"size"`
	Trained    bool   `json:"trained"`
}

type entry struct {
	id  uuid.UUID
	vec []float32 // unit length, or all zeros
	seq uint64    // insertion order, used to break distance ties
}

// generation is an immutable snapshot once published. Writers replace the
// partition lists they touch instead of mutating them.
type generation struct {
	number    uint64
	centroids [][]float32
	lists     [][]*entry
	size      int
}

type op struct {
	id     uuid.UUID
	e      *entry
	remove bool
}

// Index is an inverted-file (IVF) index over cosine distance.
//
// Vectors are bucketed into Partitions clusters and a query scans only the
// Probes clusters whose centroids are closest to the query. Results are
// therefore approximate: a true nearest neighbour filed under an unprobed
// cluster is not returned. Probes >= Partitions degrades to an exact scan, as
// does an index that has never been rebuilt.
//
// Insert and Remove are incremental. Rebuild retrains the clusters into a new
// generation that is swapped in atomically; queries never wait on a rebuild
// and always read one complete generation.
type Index struct {
	opts    Options
	current atomic.Pointer[generation]

	mu          sync.Mutex // serialises writers
	entries     map[uuid.UUID]*entry
	partOf      map[uuid.UUID]int
	nextSeq     uint64
	rebuilding  bool
	journal     []op
	trainedSize int

	rebuildMu sync.Mutex
}

// New creates an empty, untrained index
func New(opts Options) *Index {
	defaults := DefaultOptions()
	if opts.Dimension <= 0 {
		opts.Dimension = defaults.Dimension
	}
	if opts.Partitions <= 0 {
		opts.Partitions = defaults.Partitions
	}
	if opts.Probes <= 0 {
		opts.Probes = defaults.Probes
	}
	if opts.Iterations <= 0 {
		opts.Iterations = defaults.Iterations
	}

	ix := &Index{
		opts:    opts,
		entries: make(map[uuid.UUID]*entry),
		partOf:  make(map[uuid.UUID]int),
	}
	ix.current.Store(&generation{lists: make([][]*entry, 1)})
	return ix
}

// Options returns the index configuration
func (ix *Index) Options() Options {
	return ix.opts
}

// Insert adds or replaces the vector stored under id.
// A replaced id keeps its original insertion order.
func (ix *Index) Insert(id uuid.UUID, vector []float32) error {
	if len(vector) != ix.opts.Dimension {
		return &types.ErrDimensionMismatch{Expected: ix.opts.Dimension, Got: len(vector)}
	}
	if err := types.CheckFinite(vector); err != nil {
		return err
	}
	unit := normalize(vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	e := &entry{id: id, vec: unit}
	old, exists := ix.entries[id]
	if exists {
		e.seq = old.seq
	} else {
		e.seq = ix.nextSeq
		ix.nextSeq++
	}

	gen := ix.current.Load()
	next := gen.copyHeader()
	if exists {
		p := ix.partOf[id]
		next.lists[p] = without(next.lists[p], id)
		next.size--
	}
	p := nearestCentroid(next.centroids, unit)
	next.lists[p] = withEntry(next.lists[p], e)
	next.size++

	ix.entries[id] = e
	ix.partOf[id] = p
	if ix.rebuilding {
		ix.journal = append(ix.journal, op{id: id, e: e})
	}
	ix.current.Store(next)
	return nil
}

// Remove deletes id from the index. Removing an absent id is a no-op.
func (ix *Index) Remove(id uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.entries[id]; !ok {
		return
	}

	gen := ix.current.Load()
	next := gen.copyHeader()
	p := ix.partOf[id]
	next.lists[p] = without(next.lists[p], id)
	next.size--

	delete(ix.entries, id)
	delete(ix.partOf, id)
	if ix.rebuilding {
		ix.journal = append(ix.journal, op{id: id, remove: true})
	}
	ix.current.Store(next)
}

// Contains reports whether id is indexed
func (ix *Index) Contains(id uuid.UUID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.entries[id]
	return ok
}

// Len returns the number of indexed vectors
func (ix *Index) Len() int {
	return ix.current.Load().size
}

// Stats returns a description of the current generation
func (ix *Index) Stats() Stats {
	gen := ix.current.Load()
	return Stats{
		Generation: gen.number,
		Partitions: len(gen.lists),
		Size:       gen.size,
		Trained:    len(gen.centroids) > 0,
	}
}

// Query returns up to k ids ordered by ascending cosine distance to vector.
// Equal distances are ordered by insertion.
func (ix *Index) Query(vector []float32, k int) ([]Result, error) {
	if len(vector) != ix.opts.Dimension {
		return nil, &types.ErrDimensionMismatch{Expected: ix.opts.Dimension, Got: len(vector)}
	}
	if err := types.CheckFinite(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	gen := ix.current.Load()
	q := normalize(vector)

	type hit struct {
		e    *entry
		dist float64
	}
	var hits []hit
	for _, p := range gen.probe(q, ix.opts.Probes) {
		for _, e := range gen.lists[p] {
			hits = append(hits, hit{e: e, dist: cosineDistance(q, e.vec)})
		}
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.e.seq, b.e.seq)
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.e.id, Distance: h.dist}
	}
	return results, nil
}

// NeedsRebuild reports whether retraining would improve partition balance:
// an untrained index holding enough vectors, or a trained one that has doubled.
func (ix *Index) NeedsRebuild() bool {
	gen := ix.current.Load()
	if len(gen.centroids) == 0 {
		return gen.size >= ix.opts.Partitions*minPointsPerPartition
	}
	ix.mu.Lock()
	trained := ix.trainedSize
	ix.mu.Unlock()
	return gen.size >= 2*trained
}

// Rebuild retrains partition centroids over the current contents and
// atomically publishes the result as a new generation. Writes that arrive
// while training runs are replayed onto the new generation before the swap.
func (ix *Index) Rebuild() {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	ix.mu.Lock()
	snapshot := make([]*entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		snapshot = append(snapshot, e)
	}
	prev := ix.current.Load()
	ix.rebuilding = true
	ix.journal = nil
	ix.mu.Unlock()

	slices.SortFunc(snapshot, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	centroids := train(snapshot, ix.opts.Partitions, ix.opts.Iterations, ix.opts.Seed)
	next := &generation{
		number:    prev.number + 1,
		centroids: centroids,
		lists:     make([][]*entry, max(1, len(centroids))),
	}
	assign := make(map[uuid.UUID]int, len(snapshot))
	for _, e := range snapshot {
		p := nearestCentroid(centroids, e.vec)
		next.lists[p] = append(next.lists[p], e)
		assign[e.id] = p
	}
	next.size = len(snapshot)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, o := range ix.journal {
		if p, ok := assign[o.id]; ok {
			next.lists[p] = without(next.lists[p], o.id)
			next.size--
			delete(assign, o.id)
		}
		if o.remove {
			continue
		}
		p := nearestCentroid(centroids, o.e.vec)
		next.lists[p] = append(next.lists[p], o.e)
		assign[o.id] = p
		next.size++
	}

	ix.journal = nil
	ix.rebuilding = false
	ix.partOf = assign
	ix.trainedSize = next.size
	ix.current.Store(next)
}

func (g *generation) copyHeader() *generation {
	return &generation{
		number:    g.number,
		centroids: g.centroids,
		lists:     slices.Clone(g.lists),
		size:      g.size,
	}
}

// probe returns the partitions to scan for q, nearest centroid first
func (g *generation) probe(q []float32, probes int) []int {
	if len(g.centroids) == 0 || probes >= len(g.centroids) {
		all := make([]int, len(g.lists))
		for i := range all {
			all[i] = i
		}
		return all
	}

	type scored struct {
		p    int
		dist float64
	}
	order := make([]scored, len(g.centroids))
	for i, c := range g.centroids {
		order[i] = scored{p: i, dist: cosineDistance(q, c)}
	}
	slices.SortFunc(order, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.p, b.p)
	})

	out := make([]int, probes)
	for i := range out {
		out[i] = order[i].p
	}
	return out
}

func withEntry(list []*entry, e *entry) []*entry {
	out := make([]*entry, len(list), len(list)+1)
	copy(out, list)
	return append(out, e)
}

func without(list []*entry, id uuid.UUID) []*entry {
	out := make([]*entry, 0, len(list))
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best := 0
	bestDot := math.Inf(-1)
	for i, c := range centroids {
		if d := dot(v, c); d > bestDot {
			best, bestDot = i, d
		}
	}
	return best
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// cosineDistance expects unit (or zero) vectors and clamps to [0, 2]
func cosineDistance(a, b []float32) float64 {
	d := 1 - dot(a, b)
	return min(max(d, 0), 2)
}

// normalize returns a unit-length copy of v; a zero vector stays zero
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
