package nvdb

import (
	"context"
	"testing"

	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestOpenReturnsUsableDB(t *testing.T) {
	db := openTestDB(t)
	if db.FS == nil {
		t.Fatal("expected FS to be initialized")
	}
}

func TestCloseIsIdempotentFailure(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(context.Background()); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := db.Close(context.Background()); err == nil {
		t.Fatal("expected second Close() to fail")
	}
}

func TestAddThenGetRoundTrips(t *testing.T) {
	db := openTestDB(t)
	id, err := db.Add(context.Background(), store.AddParams{
		ID:   "00000000-0000-0000-0000-000000000001",
		Data: "hello world",
		Type: model.NounType("Document"),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got, err := db.Get(context.Background(), id, false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if data, _ := got.Metadata["data"].String(); data != "hello world" {
		t.Fatalf("Metadata[data] = %q, want %q", data, "hello world")
	}
}

func TestDeleteRemovesEntity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id, err := db.Add(ctx, store.AddParams{ID: "00000000-0000-0000-0000-000000000002", Data: "x", Type: model.NounType("Document")})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := db.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, err := db.Get(ctx, id, false); err != nil || got != nil {
		t.Fatalf("Get() after Delete() = %+v, %v; want nil, nil", got, err)
	}
}

func TestClearRemovesAllEntities(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := db.Add(ctx, store.AddParams{
			ID:   "00000000-0000-0000-0000-00000000000" + string(rune('a'+i)),
			Data: "x", Type: model.NounType("Document"),
		}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := db.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n := db.Counts().Entities(); n != 0 {
		t.Fatalf("Entities() after Clear() = %d, want 0", n)
	}
}

func TestRelateThenGetRelations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a, _ := db.Add(ctx, store.AddParams{ID: "00000000-0000-0000-0000-00000000000a", Data: "a", Type: model.NounType("Document")})
	b, _ := db.Add(ctx, store.AddParams{ID: "00000000-0000-0000-0000-00000000000b", Data: "b", Type: model.NounType("Document")})

	if _, err := db.Relate(ctx, store.RelateParams{From: a, To: b, Type: model.VerbType("References")}); err != nil {
		t.Fatalf("Relate() error = %v", err)
	}

	verbs, err := db.GetRelations(ctx, store.GetRelationsParams{From: a})
	if err != nil {
		t.Fatalf("GetRelations() error = %v", err)
	}
	if len(verbs) != 1 || verbs[0].TargetID != b {
		t.Fatalf("GetRelations() = %+v, want one edge to %q", verbs, b)
	}
}

func TestCountsByTypeExcludingVFSOmitsDirectories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.Add(ctx, store.AddParams{ID: "00000000-0000-0000-0000-000000000003", Data: "x", Type: model.NounType("Document")}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	byType := db.Counts().ByTypeExcludingVFS()
	if byType[model.NounType("Directory")] != 0 {
		t.Fatalf("ByTypeExcludingVFS() leaked directory count: %+v", byType)
	}
}

func TestFacetsReflectsIndexedMetadata(t *testing.T) {
	db := openTestDB(t)
	// Facets reads the field index directly; it reflects whatever
	// FS/store writes have indexed so far, so an empty field is fine.
	if facets := db.Facets("status"); facets == nil {
		t.Fatal("expected non-nil facets slice")
	}
}

func TestMetricsHandlerNilWithoutAugmentation(t *testing.T) {
	db := openTestDB(t)
	if h := db.MetricsHandler(); h != nil {
		t.Fatal("expected nil MetricsHandler without the metrics augmentation")
	}
}

func TestMetricsHandlerSetWithAugmentation(t *testing.T) {
	db, err := Open(context.Background(), WithAugmentations(Augmentations{Metrics: true}))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	if h := db.MetricsHandler(); h == nil {
		t.Fatal("expected non-nil MetricsHandler with the metrics augmentation")
	}
}
