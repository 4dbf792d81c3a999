package graph

import (
	"fmt"
	"testing"

	"github.com/nounverb/nvdb/pkg/model"
)

func TestAddVerbMaintainsBothDirections(t *testing.T) {
	idx := New()
	v := &model.Verb{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"}
	idx.AddVerb(v)

	out := idx.Neighbors("a", NeighborOptions{Direction: DirectionOut, Limit: -1})
	if len(out) != 1 || out[0] != "b" {
		t.Fatalf("expected a->b, got %v", out)
	}
	in := idx.Neighbors("b", NeighborOptions{Direction: DirectionIn, Limit: -1})
	if len(in) != 1 || in[0] != "a" {
		t.Fatalf("expected b<-a, got %v", in)
	}
}

func TestFindDuplicateIsIdempotentKey(t *testing.T) {
	idx := New()
	v := &model.Verb{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"}
	idx.AddVerb(v)

	id, ok := idx.FindDuplicate("a", "b", "RelatesTo")
	if !ok || id != "v1" {
		t.Fatalf("expected to find duplicate v1, got %q ok=%v", id, ok)
	}
	if _, ok := idx.FindDuplicate("a", "b", "MemberOf"); ok {
		t.Fatalf("should not match on a different verb type")
	}
}

func TestRemoveVerbClearsBothDirections(t *testing.T) {
	idx := New()
	v := &model.Verb{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"}
	idx.AddVerb(v)
	idx.RemoveVerb(v)

	if out := idx.Neighbors("a", NeighborOptions{Direction: DirectionOut, Limit: -1}); len(out) != 0 {
		t.Fatalf("expected no out edges after remove, got %v", out)
	}
	if _, ok := idx.FindDuplicate("a", "b", "RelatesTo"); ok {
		t.Fatalf("duplicate index entry should be cleared on remove")
	}
}

func TestNeighborsPaginationNeverOverlaps(t *testing.T) {
	idx := New()
	for i := 0; i < 10; i++ {
		idx.AddVerb(&model.Verb{ID: fmt.Sprintf("v%d", i), SourceID: "root", TargetID: fmt.Sprintf("n%d", i), Type: "Contains"})
	}

	seen := make(map[string]bool)
	for offset := 0; offset < 10; offset += 3 {
		page := idx.Neighbors("root", NeighborOptions{Direction: DirectionOut, Limit: 3, Offset: offset})
		for _, id := range page {
			if seen[id] {
				t.Fatalf("node %q appeared in more than one page", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected to cover all 10 neighbors, got %d", len(seen))
	}
}

func TestNeighborsOffsetBeyondCardinalityIsEmpty(t *testing.T) {
	idx := New()
	idx.AddVerb(&model.Verb{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"})
	out := idx.Neighbors("a", NeighborOptions{Direction: DirectionOut, Limit: 10, Offset: 5})
	if len(out) != 0 {
		t.Fatalf("expected empty result past cardinality, got %v", out)
	}
}

func TestNeighborsLimitZeroIsEmpty(t *testing.T) {
	idx := New()
	idx.AddVerb(&model.Verb{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"})
	out := idx.Neighbors("a", NeighborOptions{Direction: DirectionOut, Limit: 0})
	if len(out) != 0 {
		t.Fatalf("expected empty result for limit=0, got %v", out)
	}
}

type fakeVerbSource struct {
	verbs []*model.Verb
	err   error
}

func (f *fakeVerbSource) AllVerbs() ([]*model.Verb, error) { return f.verbs, f.err }

func TestRebuildReconstructsFromSource(t *testing.T) {
	idx := New()
	src := &fakeVerbSource{verbs: []*model.Verb{
		{ID: "v1", SourceID: "a", TargetID: "b", Type: "RelatesTo"},
		{ID: "v2", SourceID: "b", TargetID: "c", Type: "RelatesTo"},
	}}
	if err := idx.Rebuild(src); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !idx.IsHealthy() {
		t.Fatalf("expected healthy after successful rebuild")
	}
	out := idx.Neighbors("a", NeighborOptions{Direction: DirectionOut, Limit: -1})
	if len(out) != 1 || out[0] != "b" {
		t.Fatalf("rebuild did not restore edges: %v", out)
	}
}

func TestRebuildFailureMarksUnhealthy(t *testing.T) {
	idx := New()
	src := &fakeVerbSource{err: fmt.Errorf("boom")}
	if err := idx.Rebuild(src); err == nil {
		t.Fatalf("expected rebuild error to propagate")
	}
	if idx.IsHealthy() {
		t.Fatalf("expected unhealthy after failed rebuild")
	}
}

func TestRepairContainsIsIdempotent(t *testing.T) {
	idx := New()
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("repair-%d", counter)
	}

	v1, created1 := idx.RepairContains("dir", "file", newID)
	if !created1 {
		t.Fatalf("expected first repair to create a new verb")
	}
	v2, created2 := idx.RepairContains("dir", "file", newID)
	if created2 {
		t.Fatalf("expected second repair to find the existing verb")
	}
	if v1.ID != v2.ID {
		t.Fatalf("repair should be idempotent: got %q and %q", v1.ID, v2.ID)
	}
}
