package vfs

import (
	"context"
	"testing"

	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/value"
)

func TestParseSemanticPathRecognizesEachDimension(t *testing.T) {
	cases := []struct {
		path string
		dim  semanticDimension
		ok   bool
	}{
		{"/by-concept/graphs", dimConcept, true},
		{"/by-author/ada", dimAuthor, true},
		{"/as-of/2024-01-15", dimAsOf, true},
		{"/related-to/docs/readme/depth-2", dimRelated, true},
		{"/similar-to/docs/readme/threshold-0.8", dimSimilarTo, true},
		{"/by-tag/urgent", dimTag, true},
		{"/plain/path", "", false},
		{"/as-of/not-a-date", "", false},
		{"/related-to/x", "", false},
	}
	for _, c := range cases {
		sq, ok := ParseSemanticPath(c.path)
		if ok != c.ok {
			t.Fatalf("ParseSemanticPath(%q) ok = %v, want %v", c.path, ok, c.ok)
		}
		if ok && sq.Dimension != c.dim {
			t.Fatalf("ParseSemanticPath(%q) dimension = %v, want %v", c.path, sq.Dimension, c.dim)
		}
	}
}

func TestParseSemanticPathExtractsDepthAndThreshold(t *testing.T) {
	sq, ok := ParseSemanticPath("/related-to/a/b/depth-3")
	if !ok || sq.Depth != 3 || sq.Arg != "/a/b" {
		t.Fatalf("related-to parse = %+v, ok=%v", sq, ok)
	}
	sq2, ok := ParseSemanticPath("/similar-to/a/b/threshold-0.42")
	if !ok || sq2.Threshold != 0.42 || sq2.Arg != "/a/b" {
		t.Fatalf("similar-to parse = %+v, ok=%v", sq2, ok)
	}
}

func TestResolveSemanticPathByAuthorScansMetadata(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/a.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.SetMetadata(ctx, "/a.txt", map[string]value.Value{"author": value.String("ada")}); err != nil {
		t.Fatalf("setMetadata: %v", err)
	}
	if err := v.WriteFile(ctx, "/b.txt", []byte("y"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}

	sq, ok := ParseSemanticPath("/by-author/ada")
	if !ok {
		t.Fatalf("expected by-author to parse")
	}
	entities, err := v.ResolveSemanticPath(ctx, sq)
	if err != nil {
		t.Fatalf("resolveSemanticPath: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("by-author results = %d, want 1", len(entities))
	}
}

func TestResolveSemanticPathByTagScansArrayMetadata(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/a.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	tags := value.Array([]value.Value{value.String("urgent"), value.String("review")})
	if err := v.SetMetadata(ctx, "/a.txt", map[string]value.Value{"tags": tags}); err != nil {
		t.Fatalf("setMetadata: %v", err)
	}

	sq, ok := ParseSemanticPath("/by-tag/urgent")
	if !ok {
		t.Fatalf("expected by-tag to parse")
	}
	entities, err := v.ResolveSemanticPath(ctx, sq)
	if err != nil {
		t.Fatalf("resolveSemanticPath: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("by-tag results = %d, want 1", len(entities))
	}
}

func TestResolveSemanticPathAsOfFiltersByCreationTime(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/a.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	sq, ok := ParseSemanticPath("/as-of/2099-01-01")
	if !ok {
		t.Fatalf("expected as-of to parse")
	}
	entities, err := v.ResolveSemanticPath(ctx, sq)
	if err != nil {
		t.Fatalf("resolveSemanticPath: %v", err)
	}
	found := false
	for _, e := range entities {
		if e != nil {
			found = true
		}
	}
	if !found {
		t.Fatalf("as-of with a far-future cutoff should include existing entities")
	}
}

func TestSearchRunsWithoutError(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/notes.txt", []byte("graph databases are fun"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	results, err := v.Search(ctx, "graph databases", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	_ = results // VFS file entities carry no "data" metadata for the text signal to match; just confirm no error
}

func TestPatchJSONSetsFieldInPlace(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/cfg.json", []byte(`{"name":"old","count":1}`), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.PatchJSON(ctx, "/cfg.json", "name", "new"); err != nil {
		t.Fatalf("patchJSON: %v", err)
	}
	data, err := v.ReadFile(ctx, "/cfg.json")
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(data) != `{"name":"new","count":1}` {
		t.Fatalf("patched json = %s", data)
	}
}

func TestAddRelationshipUsesVerbType(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/a.txt", []byte("a"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.WriteFile(ctx, "/b.txt", []byte("b"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	verbID, err := v.AddRelationship(ctx, "/a.txt", "/b.txt", model.VerbContains, nil)
	if err != nil {
		t.Fatalf("addRelationship: %v", err)
	}
	if verbID == "" {
		t.Fatalf("expected non-empty verb id")
	}
}
