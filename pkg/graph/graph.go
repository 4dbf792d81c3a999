// Package graph is the in-memory bidirectional adjacency index described in
// spec §4.F: two maps (source->targets, target->sources) plus secondary
// verb-ID maps, maintained transactionally alongside the verb store. The
// teacher's pkg/graph is SQL-table backed; this is a from-scratch reimplementation of the same
// GraphEdge/GraphFilter *concepts* over plain maps, since the spec requires
// an in-memory structure rather than a queryable table.
package graph

import (
	"fmt"
	"sync"

	"github.com/nounverb/nvdb/pkg/model"
)

// Direction selects which side of an edge Neighbors walks.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// NeighborOptions controls pagination of Neighbors.
type NeighborOptions struct {
	Direction Direction
	Limit     int
	Offset    int
}

// edgeRecord is the minimal shape the index keeps per verb; metadata lives
// in the verb store, not here.
type edgeRecord struct {
	verbID string
	peer   string // the "other side" node id
	typ    model.VerbType
	order  int // insertion sequence, for deterministic pagination
}

// Index is the adjacency structure. Every field is guarded by mu.
type Index struct {
	mu sync.RWMutex

	outEdges map[string][]edgeRecord // source -> out edges
	inEdges  map[string][]edgeRecord // target -> in edges

	sourceVerbs map[string]map[string]bool // source -> verbID set
	targetVerbs map[string]map[string]bool // target -> verbID set

	// dupIndex gives O(log n)-class duplicate detection for
	// (source,target,type) without scanning storage.
	dupIndex map[dupKey]string

	seq     int
	healthy bool
}

type dupKey struct {
	source string
	target string
	typ    model.VerbType
}

// New creates an empty adjacency index.
func New() *Index {
	return &Index{
		outEdges:    make(map[string][]edgeRecord),
		inEdges:     make(map[string][]edgeRecord),
		sourceVerbs: make(map[string]map[string]bool),
		targetVerbs: make(map[string]map[string]bool),
		dupIndex:    make(map[dupKey]string),
		healthy:     true,
	}
}

// FindDuplicate returns the existing verb ID for (source,target,type), if
// any — the O(log n) duplicate-detection path AddVerb's callers should
// check before falling back to a storage scan.
func (idx *Index) FindDuplicate(source, target string, typ model.VerbType) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.dupIndex[dupKey{source, target, typ}]
	return id, ok
}

// AddVerb records v in both directions. It does not itself dedupe;
// FindDuplicate should be checked first by the caller (the entity/verb
// store), keeping this path cheap and allocation-light.
func (idx *Index) AddVerb(v *model.Verb) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.seq++

	out := edgeRecord{verbID: v.ID, peer: v.TargetID, typ: v.Type, order: idx.seq}
	idx.outEdges[v.SourceID] = append(idx.outEdges[v.SourceID], out)

	in := edgeRecord{verbID: v.ID, peer: v.SourceID, typ: v.Type, order: idx.seq}
	idx.inEdges[v.TargetID] = append(idx.inEdges[v.TargetID], in)

	idx.addToSet(idx.sourceVerbs, v.SourceID, v.ID)
	idx.addToSet(idx.targetVerbs, v.TargetID, v.ID)
	idx.dupIndex[dupKey{v.SourceID, v.TargetID, v.Type}] = v.ID
}

func (idx *Index) addToSet(m map[string]map[string]bool, key, val string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]bool)
		m[key] = set
	}
	set[val] = true
}

// RemoveVerb deletes v from both directions and both verb-ID maps. A
// missing verb is a no-op.
func (idx *Index) RemoveVerb(v *model.Verb) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.outEdges[v.SourceID] = removeByVerbID(idx.outEdges[v.SourceID], v.ID)
	idx.inEdges[v.TargetID] = removeByVerbID(idx.inEdges[v.TargetID], v.ID)
	if set, ok := idx.sourceVerbs[v.SourceID]; ok {
		delete(set, v.ID)
	}
	if set, ok := idx.targetVerbs[v.TargetID]; ok {
		delete(set, v.ID)
	}
	delete(idx.dupIndex, dupKey{v.SourceID, v.TargetID, v.Type})
}

func removeByVerbID(recs []edgeRecord, verbID string) []edgeRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.verbID != verbID {
			out = append(out, r)
		}
	}
	return out
}

// Neighbors returns node IDs adjacent to nodeID in the given direction,
// paginated. offset beyond cardinality yields an empty slice; limit=0
// yields an empty slice; results are ordered by insertion order so pages
// never overlap as offsets advance by limit.
func (idx *Index) Neighbors(nodeID string, opts NeighborOptions) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var recs []edgeRecord
	switch opts.Direction {
	case DirectionOut:
		recs = idx.outEdges[nodeID]
	case DirectionIn:
		recs = idx.inEdges[nodeID]
	default:
		recs = mergeOrdered(idx.outEdges[nodeID], idx.inEdges[nodeID])
	}
	return paginate(recs, opts.Limit, opts.Offset, func(r edgeRecord) string { return r.peer })
}

func mergeOrdered(a, b []edgeRecord) []edgeRecord {
	out := make([]edgeRecord, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].order > out[j].order {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

func paginate[T any](recs []edgeRecord, limit, offset int, extract func(edgeRecord) T) []T {
	if limit == 0 || offset >= len(recs) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(recs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, 0, end-offset)
	for _, r := range recs[offset:end] {
		out = append(out, extract(r))
	}
	return out
}

// VerbIDsBySource returns verb IDs originating at source, paginated.
func (idx *Index) VerbIDsBySource(source string, limit, offset int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return paginate(idx.outEdges[source], limit, offset, func(r edgeRecord) string { return r.verbID })
}

// VerbIDsByTarget returns verb IDs terminating at target, paginated.
func (idx *Index) VerbIDsByTarget(target string, limit, offset int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return paginate(idx.inEdges[target], limit, offset, func(r edgeRecord) string { return r.verbID })
}

// VerbSource is the shape Rebuild needs from the verb store: enough to
// reconstruct adjacency without pkg/store importing pkg/graph and vice
// versa.
type VerbSource interface {
	AllVerbs() ([]*model.Verb, error)
}

// Rebuild rescans src and reconstructs both adjacency maps atomically: on
// any error the index is left in its pre-rebuild state and IsHealthy
// reports false.
func (idx *Index) Rebuild(src VerbSource) error {
	verbs, err := src.AllVerbs()
	if err != nil {
		idx.mu.Lock()
		idx.healthy = false
		idx.mu.Unlock()
		return fmt.Errorf("graph: rebuild: %w", err)
	}

	fresh := New()
	for _, v := range verbs {
		fresh.AddVerb(v)
	}

	idx.mu.Lock()
	idx.outEdges = fresh.outEdges
	idx.inEdges = fresh.inEdges
	idx.sourceVerbs = fresh.sourceVerbs
	idx.targetVerbs = fresh.targetVerbs
	idx.dupIndex = fresh.dupIndex
	idx.seq = fresh.seq
	idx.healthy = true
	idx.mu.Unlock()
	return nil
}

// IsHealthy reports whether the last Rebuild (if any) succeeded; a fresh
// Index starts healthy.
func (idx *Index) IsHealthy() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.healthy
}

// Stats reports adjacency size for diagnostics.
func (idx *Index) Stats() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	edges := 0
	for _, recs := range idx.outEdges {
		edges += len(recs)
	}
	return map[string]int{
		"nodes_with_out_edges": len(idx.outEdges),
		"nodes_with_in_edges":  len(idx.inEdges),
		"total_edges":          edges,
	}
}

// RepairContains recreates a missing Contains edge from parent to child if
// the adjacency index doesn't already have one — the orphaned-file repair
// path spec §4.F calls out by name. Returns the verb used (existing or
// newly recorded) and whether it was newly created, so the caller knows
// whether to persist it.
func (idx *Index) RepairContains(parent, child string, newVerbID func() string) (*model.Verb, bool) {
	if id, ok := idx.FindDuplicate(parent, child, model.VerbContains); ok {
		return &model.Verb{ID: id, SourceID: parent, TargetID: child, Type: model.VerbContains}, false
	}
	v := &model.Verb{ID: newVerbID(), SourceID: parent, TargetID: child, Type: model.VerbContains}
	idx.AddVerb(v)
	return v, true
}
