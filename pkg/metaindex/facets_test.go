package metaindex

import (
	"testing"

	"github.com/nounverb/nvdb/pkg/value"
)

func TestFacetsCountsPerBucketedValue(t *testing.T) {
	fi := NewFieldIndex()
	fi.Index("e1", "status", value.String("open"))
	fi.Index("e2", "status", value.String("open"))
	fi.Index("e3", "status", value.String("closed"))

	facets := fi.Facets("status")
	counts := make(map[string]int)
	for _, f := range facets {
		counts[f.Value] = f.Count
	}
	if counts["open"] != 2 {
		t.Fatalf("open count = %d, want 2", counts["open"])
	}
	if counts["closed"] != 1 {
		t.Fatalf("closed count = %d, want 1", counts["closed"])
	}
}

func TestFacetsOmitsUnindexedEntities(t *testing.T) {
	fi := NewFieldIndex()
	fi.Index("e1", "status", value.String("open"))
	fi.Unindex("e1", "status", value.String("open"))

	facets := fi.Facets("status")
	for _, f := range facets {
		if f.Value == "open" {
			t.Fatalf("expected open bucket to be empty after unindex, got %d", f.Count)
		}
	}
}

func TestFacetsIgnoresOtherFields(t *testing.T) {
	fi := NewFieldIndex()
	fi.Index("e1", "status", value.String("open"))
	fi.Index("e1", "priority", value.String("high"))

	facets := fi.Facets("status")
	if len(facets) != 1 {
		t.Fatalf("facets(status) = %v, want 1 entry", facets)
	}
}
