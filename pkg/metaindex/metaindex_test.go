package metaindex

import (
	"testing"

	"github.com/nounverb/nvdb/pkg/value"
)

func TestTypeCountersByTypeIsO1AndAccurate(t *testing.T) {
	c := NewTypeCounters()
	c.Increment("Person")
	c.Increment("Person")
	c.Increment("Document")
	c.Decrement("Document")

	counts := c.ByType()
	if counts["Person"] != 2 {
		t.Fatalf("expected 2 Person, got %d", counts["Person"])
	}
	if _, ok := counts["Document"]; ok {
		t.Fatalf("expected Document to be zero and omitted, got %v", counts)
	}
	if c.CountOf("Person") != 2 {
		t.Fatalf("CountOf mismatch")
	}
}

func TestTypeCountersExcludeVFS(t *testing.T) {
	c := NewTypeCounters()
	c.Increment("File")
	c.Increment("Directory")
	c.Increment("Person")

	filtered := c.ByTypeExcludingVFS()
	if _, ok := filtered["File"]; ok {
		t.Fatalf("expected File excluded")
	}
	if filtered["Person"] != 1 {
		t.Fatalf("expected Person retained")
	}
}

func TestFieldIndexLookupRoundTrip(t *testing.T) {
	fi := NewFieldIndex()
	fi.Index("e1", "status", value.String("active"))
	fi.Index("e2", "status", value.String("active"))
	fi.Index("e3", "status", value.String("archived"))

	active := fi.Lookup("status", value.String("active"))
	if len(active) != 2 {
		t.Fatalf("expected 2 active entities, got %v", active)
	}

	fi.Unindex("e1", "status", value.String("active"))
	active = fi.Lookup("status", value.String("active"))
	if len(active) != 1 || active[0] != "e2" {
		t.Fatalf("expected only e2 after unindex, got %v", active)
	}
}

func TestFieldIndexDropEntityRemovesFromAllBitmaps(t *testing.T) {
	fi := NewFieldIndex()
	fi.Index("e1", "status", value.String("active"))
	fi.Index("e1", "priority", value.Int(1))

	fi.DropEntity("e1")

	if got := fi.Lookup("status", value.String("active")); len(got) != 0 {
		t.Fatalf("expected no entities after drop, got %v", got)
	}
	if got := fi.Lookup("priority", value.Int(1)); len(got) != 0 {
		t.Fatalf("expected no entities after drop, got %v", got)
	}
}

func TestInferBoolean(t *testing.T) {
	inf := Infer([]value.Value{value.Bool(true), value.Bool(false), value.String("yes")})
	if inf.Type != TypeBoolean {
		t.Fatalf("expected boolean, got %v", inf.Type)
	}
}

func TestInferIntegerVsFloat(t *testing.T) {
	intInf := Infer([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	if intInf.Type != TypeInteger {
		t.Fatalf("expected integer, got %v", intInf.Type)
	}
	floatInf := Infer([]value.Value{value.Int(1), value.Float(2.5)})
	if floatInf.Type != TypeFloat {
		t.Fatalf("expected float, got %v", floatInf.Type)
	}
}

func TestInferTimestampMillis(t *testing.T) {
	inf := Infer([]value.Value{value.Int(1_700_000_000_000), value.Int(1_700_000_001_000)})
	if inf.Type != TypeTimestampMillis {
		t.Fatalf("expected timestamp_ms, got %v", inf.Type)
	}
	if inf.BucketMs != bucketMinute {
		t.Fatalf("expected 60s bucket, got %d", inf.BucketMs)
	}
}

func TestInferUUID(t *testing.T) {
	inf := Infer([]value.Value{value.String("550e8400-e29b-41d4-a716-446655440000")})
	if inf.Type != TypeUUID {
		t.Fatalf("expected uuid, got %v", inf.Type)
	}
}

func TestInferFallsBackToString(t *testing.T) {
	inf := Infer([]value.Value{value.String("hello"), value.String("world")})
	if inf.Type != TypeString {
		t.Fatalf("expected string, got %v", inf.Type)
	}
	if inf.Confidence != 0.8 {
		t.Fatalf("expected 0.8 confidence for plain strings, got %f", inf.Confidence)
	}
}

func TestBucketValueCollapsesHighCardinalityTimestamps(t *testing.T) {
	a := BucketValue(value.Int(1_700_000_000_123))
	b := BucketValue(value.Int(1_700_000_000_456))
	if a != b {
		t.Fatalf("expected nearby timestamps to bucket together: %q vs %q", a, b)
	}
}
