package cache

import "testing"

func TestMapCacheGetSetDelete(t *testing.T) {
	c := NewMapCache()
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v != 42 {
		t.Fatalf("expected hit with value 42, got %v ok=%v", v, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestGlobalSwapReplacesInstance(t *testing.T) {
	defer SetGlobal(NewMapCache())

	SetGlobal(NewMapCache())
	Global().Set("a", 1)

	replacement := NewMapCache()
	SetGlobal(replacement)
	if _, ok := Global().Get("a"); ok {
		t.Fatalf("expected new cache instance to not see old entries")
	}
}

func TestTeardownClearsWithoutReplacingInstance(t *testing.T) {
	c := NewMapCache()
	SetGlobal(c)
	Global().Set("a", 1)

	Teardown()

	if _, ok := Global().Get("a"); ok {
		t.Fatalf("expected cache cleared after teardown")
	}
	// Still the same instance — not replaced with a fresh default.
	Global().Set("b", 2)
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected teardown to clear in place, not swap instances")
	}
}
