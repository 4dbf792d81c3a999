package plugin

import (
	"errors"
	"testing"
)

func TestActivateReturnsFactoryInstance(t *testing.T) {
	r := New(nil)
	r.Register(KindDistance, "euclidean", func() (interface{}, error) { return "euclidean-fn", nil })

	inst, err := r.Activate(KindDistance, "euclidean")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if inst != "euclidean-fn" {
		t.Fatalf("unexpected instance: %v", inst)
	}
	active, ok := r.Active(KindDistance)
	if !ok || active != "euclidean-fn" {
		t.Fatalf("expected active instance to be recorded")
	}
}

func TestActivateUnknownFactoryErrors(t *testing.T) {
	r := New(nil)
	if _, err := r.Activate(KindDistance, "missing"); err == nil {
		t.Fatalf("expected error for unregistered factory")
	}
}

func TestActivateAllIsNonFatalOnFailure(t *testing.T) {
	r := New(nil)
	r.Register(KindDistance, "ok", func() (interface{}, error) { return 1, nil })
	r.Register(KindCodec, "broken", func() (interface{}, error) { return nil, errors.New("boom") })

	// Should not panic despite one factory failing.
	r.ActivateAll(map[Kind]string{
		KindDistance: "ok",
		KindCodec:    "broken",
	})

	if _, ok := r.Active(KindDistance); !ok {
		t.Fatalf("expected distance plugin to activate successfully")
	}
	if _, ok := r.Active(KindCodec); ok {
		t.Fatalf("expected codec plugin activation to have failed")
	}
}

func TestDeactivateClearsActive(t *testing.T) {
	r := New(nil)
	r.Register(KindHNSW, "default", func() (interface{}, error) { return struct{}{}, nil })
	if _, err := r.Activate(KindHNSW, "default"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	r.Deactivate(KindHNSW)
	if _, ok := r.Active(KindHNSW); ok {
		t.Fatalf("expected no active plugin after deactivate")
	}
}

func TestActivateSamePluginTwiceSkipsFactory(t *testing.T) {
	r := New(nil)
	calls := 0
	r.Register(KindDistance, "cosine", func() (interface{}, error) {
		calls++
		return calls, nil
	})

	first, err := r.Activate(KindDistance, "cosine")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	second, err := r.Activate(KindDistance, "cosine")
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if first != second {
		t.Fatalf("expected re-activation to return the same instance: %v vs %v", first, second)
	}
}

func TestActivateDifferentNameReplacesActive(t *testing.T) {
	r := New(nil)
	r.Register(KindDistance, "cosine", func() (interface{}, error) { return "cosine-fn", nil })
	r.Register(KindDistance, "euclidean", func() (interface{}, error) { return "euclidean-fn", nil })

	if _, err := r.Activate(KindDistance, "cosine"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := r.Activate(KindDistance, "euclidean"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, _ := r.Active(KindDistance)
	if active != "euclidean-fn" {
		t.Fatalf("expected switching names to replace active instance, got %v", active)
	}
}

func TestStorageKindNamesBackend(t *testing.T) {
	if StorageKind("s3") != Kind("storage:s3") {
		t.Fatalf("unexpected storage kind: %v", StorageKind("s3"))
	}
}
