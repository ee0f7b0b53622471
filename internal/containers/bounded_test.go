package containers

import "testing"

// TestBoundedMap_EvictsOldest verifies that inserting past capacity drops the
// oldest keys in insertion order.
func TestBoundedMap_EvictsOldest(t *testing.T) {
	m := NewBoundedMap[string, int](3)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)
	m.Set("d", 4)

	if m.Len() != 3 {
		t.Fatalf("expected len 3, got %d", m.Len())
	}
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected oldest key 'a' to be evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := m.Get(k); !ok {
			t.Fatalf("expected key %q to survive", k)
		}
	}
}

// TestBoundedMap_SetRefreshesKey verifies that Set on an existing key moves it
// to the freshest position, protecting it from the next eviction.
func TestBoundedMap_SetRefreshesKey(t *testing.T) {
	m := NewBoundedMap[string, int](2)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 10) // refresh: "b" is now oldest
	m.Set("c", 3)  // evicts "b"

	if _, ok := m.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted after 'a' was refreshed")
	}
	if v, ok := m.Get("a"); !ok || v != 10 {
		t.Fatalf("expected a=10 to survive, got %d (present=%v)", v, ok)
	}
}

// TestBoundedMap_RangeOrder verifies insertion-ordered iteration.
func TestBoundedMap_RangeOrder(t *testing.T) {
	m := NewBoundedMap[string, int](4)
	for i, k := range []string{"w", "x", "y", "z"} {
		m.Set(k, i)
	}
	m.Set("x", 9) // moves to tail

	var got []string
	m.Range(func(k string, _ int) bool {
		got = append(got, k)
		return true
	})

	want := []string{"w", "y", "z", "x"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

// TestBoundedMap_EvictOldestBatch verifies batch eviction used by the dedup set.
func TestBoundedMap_EvictOldestBatch(t *testing.T) {
	m := NewBoundedMap[int, int](10)
	for i := 0; i < 10; i++ {
		m.Set(i, i)
	}
	if n := m.EvictOldest(4); n != 4 {
		t.Fatalf("expected 4 evicted, got %d", n)
	}
	if m.Len() != 6 {
		t.Fatalf("expected len 6, got %d", m.Len())
	}
	if _, ok := m.Get(3); ok {
		t.Fatal("expected key 3 to be gone")
	}
	if _, ok := m.Get(4); !ok {
		t.Fatal("expected key 4 to remain")
	}
}

// TestBoundedSet_AddReportsNewness verifies Add returns true only the first time.
func TestBoundedSet_AddReportsNewness(t *testing.T) {
	s := NewBoundedSet[string](5)
	if !s.Add("m1") {
		t.Fatal("first Add should report new")
	}
	if s.Add("m1") {
		t.Fatal("duplicate Add should report not-new")
	}
	if s.Len() != 1 {
		t.Fatalf("expected len 1, got %d", s.Len())
	}
}

// TestBoundedSet_CapacityHolds verifies the set never exceeds its capacity.
func TestBoundedSet_CapacityHolds(t *testing.T) {
	s := NewBoundedSet[int](100)
	for i := 0; i < 1000; i++ {
		s.Add(i)
	}
	if s.Len() != 100 {
		t.Fatalf("expected len 100, got %d", s.Len())
	}
	if s.Has(899) {
		t.Fatal("expected old value 899 to be evicted")
	}
	if !s.Has(999) {
		t.Fatal("expected freshest value 999 to be present")
	}
}
