package hanabi

import "testing"

func TestRegistrySetTwiceFails(t *testing.T) {
	r := NewRegistry[string, int]()

	if !r.Set("a", 1) {
		t.Fatal("first Set should succeed")
	}
	if r.Set("a", 2) {
		t.Fatal("second Set on the same key should fail")
	}

	v, ok := r.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v, wanted 1, true (first value wins)", v, ok)
	}
}

func TestRegistryUpdateAlwaysWins(t *testing.T) {
	r := NewRegistry[string, int]()

	r.Update("a", 1)
	r.Update("a", 2)

	v, ok := r.Get("a")
	if !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v, wanted 2, true", v, ok)
	}
}

func TestRegistryDrop(t *testing.T) {
	r := NewRegistry[string, int]()
	r.Set("a", 1)

	if !r.Drop("a") {
		t.Fatal("Drop on present key should return true")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("Get after Drop should report absent")
	}
	if r.Drop("a") {
		t.Error("Drop on absent key should return false")
	}
}

func TestRegistryDumpAndFlush(t *testing.T) {
	r := NewRegistry[string, int]()
	r.Set("a", 1)
	r.Set("b", 2)

	entries := r.Dump()
	if len(entries) != 2 {
		t.Fatalf("Dump() returned %d entries, wanted 2", len(entries))
	}

	r.Flush()
	if r.Len() != 0 {
		t.Errorf("Len() after Flush = %d, wanted 0", r.Len())
	}
}

func TestRegistryFind(t *testing.T) {
	r := NewRegistry[string, int]()
	r.Set("a", 1)
	r.Set("b", 2)

	v, ok := r.Find(func(_ string, v int) bool { return v == 2 })
	if !ok || v != 2 {
		t.Errorf("Find(v==2) = %d, %v, wanted 2, true", v, ok)
	}

	_, ok = r.Find(func(_ string, v int) bool { return v == 99 })
	if ok {
		t.Error("Find with no match should report false")
	}
}
