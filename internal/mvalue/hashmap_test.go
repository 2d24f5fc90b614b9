package mvalue

import "testing"

func TestHashMapCapacityRoundTrip(t *testing.T) {
	m := NewHashMap(DefaultEqHasher{})
	const n = 200
	for i := 0; i < n; i++ {
		if err := m.Set(int64(i), int64(i*2)); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	if m.Len() != n {
		t.Fatalf("Len() = %d, want %d", m.Len(), n)
	}
	for i := 0; i < n; i++ {
		v, ok, err := m.Get(int64(i))
		if err != nil || !ok || v.(int64) != int64(i*2) {
			t.Fatalf("Get(%d) = %v, %v, %v", i, v, ok, err)
		}
	}
	for i := 0; i < n; i += 2 {
		if ok, err := m.Delete(int64(i)); err != nil || !ok {
			t.Fatalf("Delete(%d) = %v, %v", i, ok, err)
		}
	}
	if m.Len() != n/2 {
		t.Fatalf("Len() after deletes = %d, want %d", m.Len(), n/2)
	}
	for i := 1; i < n; i += 2 {
		if _, ok, _ := m.Get(int64(i)); !ok {
			t.Fatalf("Get(%d) missing after unrelated deletes", i)
		}
	}
}

func TestHashConsistencyIntFloat(t *testing.T) {
	h1, ok1 := HashPrimitive(int64(1))
	h2, ok2 := HashPrimitive(float64(1.0))
	if !ok1 || !ok2 {
		t.Fatalf("expected both hashable")
	}
	if h1 != h2 {
		t.Fatalf("hash(Int(1)) = %d != hash(Float(1.0)) = %d", h1, h2)
	}
	if !StructuralEqual(int64(1), float64(1.0)) {
		t.Fatalf("1 == 1.0 should hold")
	}
}

func TestHashMapEntriesInsertionOrderAfterDelete(t *testing.T) {
	m := NewHashMap(DefaultEqHasher{})
	_ = m.Set(int64(1), nil)
	_ = m.Set(int64(2), nil)
	_ = m.Set(int64(3), nil)
	_, _ = m.Delete(int64(2))
	_ = m.Set(int64(2), nil) // reinsert; should move to end of order
	var keys []int64
	for _, e := range m.Entries() {
		keys = append(keys, e.Key.(int64))
	}
	want := []int64{1, 3, 2}
	if len(keys) != len(want) {
		t.Fatalf("Entries() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Entries() = %v, want %v", keys, want)
		}
	}
}

func TestSetMultisetEquality(t *testing.T) {
	a, err := NewSet(DefaultEqHasher{}, []Value{int64(1), int64(2), int64(3)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSet(DefaultEqHasher{}, []Value{int64(3), int64(2), int64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !StructuralEqual(a, b) {
		t.Fatalf("sets with same elements in different order should be equal")
	}
}

