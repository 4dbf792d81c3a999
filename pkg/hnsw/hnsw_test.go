package hnsw

import (
	"math/rand"
	"testing"

	"github.com/nounverb/nvdb/pkg/lsm"
)

func randVec(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()
	}
	return v
}

func TestInsertSearchReturnsResults(t *testing.T) {
	idx := New(8, 32, CosineDistance)
	r := rand.New(rand.NewSource(1))

	var target []float32
	for i := 0; i < 200; i++ {
		v := randVec(r, 16)
		id := "id" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		if i == 100 {
			target = v
		}
		if err := idx.Insert(id, v); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	ids, _ := idx.Search(target, 5, 50)
	if len(ids) == 0 {
		t.Fatalf("expected at least one search result")
	}
}

func TestDeleteSkipsTombstonedDuringSearch(t *testing.T) {
	idx := New(8, 32, CosineDistance)
	vecs := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}
	for id, v := range vecs {
		if err := idx.Insert(id, v); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := idx.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids, _ := idx.Search([]float32{1, 0, 0}, 3, 10)
	for _, id := range ids {
		if id == "a" {
			t.Fatalf("deleted node surfaced in search results")
		}
	}
}

func TestCompactTombstonesDropsDeletedNodes(t *testing.T) {
	idx := New(4, 16, EuclideanDistance)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		if err := idx.Insert(id, []float32{float32(i), 0}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := idx.Delete(string(rune('a' + i))); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if ratio := idx.TombstoneRatio(); ratio < 0.2 {
		t.Fatalf("expected tombstone ratio >= 0.2, got %f", ratio)
	}

	idx.CompactTombstones()

	if idx.Size() != 7 {
		t.Fatalf("expected 7 live nodes after compaction, got %d", idx.Size())
	}
	for i := 0; i < 3; i++ {
		if _, ok := idx.Nodes[string(rune('a'+i))]; ok {
			t.Fatalf("tombstoned node survived compaction")
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tree, err := lsm.Open(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("open tree: %v", err)
	}
	defer tree.Close()

	idx := New(8, 32, CosineDistance)
	for i := 0; i < 20; i++ {
		id := "node" + string(rune('a'+i))
		if err := idx.Insert(id, []float32{float32(i), float32(i) * 2, 1}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := idx.SaveTo(tree); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadFrom(tree, CosineDistance)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Nodes) != len(idx.Nodes) {
		t.Fatalf("node count mismatch: got %d want %d", len(loaded.Nodes), len(idx.Nodes))
	}
	if loaded.EntryPoint != idx.EntryPoint {
		t.Fatalf("entry point mismatch: got %q want %q", loaded.EntryPoint, idx.EntryPoint)
	}
	for id, node := range idx.Nodes {
		ln, ok := loaded.Nodes[id]
		if !ok {
			t.Fatalf("missing node %q after reload", id)
		}
		if len(ln.Vector) != len(node.Vector) {
			t.Fatalf("vector length mismatch for %q", id)
		}
	}
}
