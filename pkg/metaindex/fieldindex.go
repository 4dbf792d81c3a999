package metaindex

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/nounverb/nvdb/pkg/value"
)

// FieldIndex maps bucketed (field, value) pairs to the set of entity
// ordinals holding that value, backed by roaring bitmaps so large fan-out
// fields (a million entities sharing a boolean) stay compact.
type FieldIndex struct {
	mu      sync.RWMutex
	bitmaps map[string]*roaring.Bitmap // "field\x00bucketedValue" -> ordinals
	ordinal map[string]uint32         // entity ID -> assigned ordinal
	nextOrd uint32
	idByOrd map[uint32]string
}

// NewFieldIndex creates an empty field-value index.
func NewFieldIndex() *FieldIndex {
	return &FieldIndex{
		bitmaps: make(map[string]*roaring.Bitmap),
		ordinal: make(map[string]uint32),
		idByOrd: make(map[uint32]string),
	}
}

func (fi *FieldIndex) ordinalFor(entityID string) uint32 {
	if ord, ok := fi.ordinal[entityID]; ok {
		return ord
	}
	ord := fi.nextOrd
	fi.nextOrd++
	fi.ordinal[entityID] = ord
	fi.idByOrd[ord] = entityID
	return ord
}

// Index records that entityID has field=val, after bucketing val per its
// inferred type (so e.g. millisecond timestamps collapse into 60-second
// buckets rather than exploding the key space).
func (fi *FieldIndex) Index(entityID, field string, val value.Value) {
	bucketed := BucketValue(val)
	key := fieldKey(field, bucketed)

	fi.mu.Lock()
	defer fi.mu.Unlock()
	ord := fi.ordinalFor(entityID)
	bm, ok := fi.bitmaps[key]
	if !ok {
		bm = roaring.New()
		fi.bitmaps[key] = bm
	}
	bm.Add(ord)
}

// Unindex removes entityID from the bucket for field=val. Safe to call
// even if the pair was never indexed.
func (fi *FieldIndex) Unindex(entityID, field string, val value.Value) {
	bucketed := BucketValue(val)
	key := fieldKey(field, bucketed)

	fi.mu.Lock()
	defer fi.mu.Unlock()
	ord, ok := fi.ordinal[entityID]
	if !ok {
		return
	}
	if bm, ok := fi.bitmaps[key]; ok {
		bm.Remove(ord)
	}
}

// Lookup returns entity IDs whose field bucketed to the same value as val.
func (fi *FieldIndex) Lookup(field string, val value.Value) []string {
	key := fieldKey(field, BucketValue(val))

	fi.mu.RLock()
	defer fi.mu.RUnlock()
	bm, ok := fi.bitmaps[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if id, ok := fi.idByOrd[it.Next()]; ok {
			out = append(out, id)
		}
	}
	return out
}

// DropEntity removes entityID from every bitmap it participates in; used
// on hard delete. O(bitmaps held) — acceptable since entities normally
// touch a small, bounded set of indexed fields.
func (fi *FieldIndex) DropEntity(entityID string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	ord, ok := fi.ordinal[entityID]
	if !ok {
		return
	}
	for _, bm := range fi.bitmaps {
		bm.Remove(ord)
	}
	delete(fi.ordinal, entityID)
	delete(fi.idByOrd, ord)
}

func fieldKey(field string, bucketed string) string {
	return fmt.Sprintf("%s\x00%s", field, bucketed)
}
