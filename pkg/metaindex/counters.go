// Package metaindex maintains the two cooperating structures behind spec
// §4.G: an O(1) fixed-width type-counter array, and a roaring-bitmap
// field-value index with value-based field-type inference for key
// bucketing. Grounded on the teacher's pkg/core facet/aggregation shape
// (aggregations.go, faceted_search.go), generalized from ad hoc SQL
// GROUP BY queries to atomic in-memory counters and bitmaps.
package metaindex

import (
	"sync/atomic"

	"github.com/nounverb/nvdb/pkg/model"
)

// TypeCounters is a fixed-width array of atomic counters, one slot per
// noun type, giving byType() O(1) regardless of entity count. The
// teacher's service-keyed stats-blob derivation of byType is explicitly
// the behavior spec §4.G says must not be replicated.
type TypeCounters struct {
	counts [model.NumNounTypes]int64
}

// NewTypeCounters creates a zeroed counter array.
func NewTypeCounters() *TypeCounters {
	return &TypeCounters{}
}

// Increment bumps the counter for t. Unknown types are ignored — callers
// must validate type at write time (spec §4.D); this is not the
// enforcement point.
func (c *TypeCounters) Increment(t model.NounType) {
	if i := model.IndexOfNounType(t); i >= 0 {
		atomic.AddInt64(&c.counts[i], 1)
	}
}

// Decrement lowers the counter for t, e.g. on delete.
func (c *TypeCounters) Decrement(t model.NounType) {
	if i := model.IndexOfNounType(t); i >= 0 {
		atomic.AddInt64(&c.counts[i], -1)
	}
}

// ByType returns counts for every non-zero type slot.
func (c *TypeCounters) ByType() map[model.NounType]int64 {
	out := make(map[model.NounType]int64)
	for i, t := range model.NounTypes {
		if n := atomic.LoadInt64(&c.counts[i]); n != 0 {
			out[t] = n
		}
	}
	return out
}

// CountOf returns the count for a single type.
func (c *TypeCounters) CountOf(t model.NounType) int64 {
	if i := model.IndexOfNounType(t); i >= 0 {
		return atomic.LoadInt64(&c.counts[i])
	}
	return 0
}

// ByTypeExcludingVFS returns ByType() with the synthetic VFS wrapper type
// (Directory/File-as-document) omitted, per spec's `{excludeVFS: true}`
// option.
func (c *TypeCounters) ByTypeExcludingVFS() map[model.NounType]int64 {
	all := c.ByType()
	delete(all, "File")
	delete(all, "Directory")
	return all
}

// Total sums every slot, live entity count across all types.
func (c *TypeCounters) Total() int64 {
	var total int64
	for i := range c.counts {
		total += atomic.LoadInt64(&c.counts[i])
	}
	return total
}
