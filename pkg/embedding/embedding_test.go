package embedding

import (
	"context"
	"testing"
)

func TestDeterministicEmbedIsStable(t *testing.T) {
	e := NewDeterministic(16)
	ctx := context.Background()
	a, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors for identical text at index %d", i)
		}
	}
}

func TestDeterministicEmbedRejectsEmptyText(t *testing.T) {
	e := NewDeterministic(8)
	if _, err := e.Embed(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestEmbedBatchMatchesIndividualCalls(t *testing.T) {
	e := NewDeterministic(8)
	ctx := context.Background()
	texts := []string{"a", "b", "c"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch result diverges from single embed at %d/%d", i, j)
			}
		}
	}
}

func TestCanonicalText(t *testing.T) {
	if CanonicalText("hi") != "hi" {
		t.Fatalf("expected string passthrough")
	}
	if CanonicalText(nil) != "" {
		t.Fatalf("expected empty string for nil")
	}
	if CanonicalText(42) != "42" {
		t.Fatalf("expected fallback rendering, got %q", CanonicalText(42))
	}
}
