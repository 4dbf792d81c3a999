package blobstore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/nounverb/nvdb/pkg/storage"
)

func TestStorePutResolveDelete(t *testing.T) {
	ctx := context.Background()
	adapter := storage.NewMemoryAdapter()
	if err := adapter.Init(ctx); err != nil {
		t.Fatalf("init adapter: %v", err)
	}
	idx := filepath.Join(t.TempDir(), "blobs.bolt")
	s, err := Open(idx, adapter, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	data := bytes.Repeat([]byte("x"), Threshold+10)
	digest, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if digest != Digest(data) {
		t.Fatalf("digest mismatch: got %d want %d", digest, Digest(data))
	}

	got, err := s.Resolve(ctx, digest)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("resolved data does not round-trip")
	}

	// Writing identical bytes twice must not error and must return the same digest.
	digest2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if digest2 != digest {
		t.Fatalf("expected stable digest across duplicate puts")
	}

	if err := s.Delete(ctx, digest); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Resolve(ctx, digest); err == nil {
		t.Fatalf("expected resolve after delete to fail")
	}
}

func TestShouldStore(t *testing.T) {
	if ShouldStore(Threshold - 1) {
		t.Fatalf("payload below threshold should not be routed to blob store")
	}
	if !ShouldStore(Threshold) {
		t.Fatalf("payload at threshold should be routed to blob store")
	}
}
