package syncmap

import "testing"

func TestMapStoreLoad(t *testing.T) {
	t.Parallel()

	m := &Map[string, int]{}

	if _, ok := m.Load("a"); ok {
		t.Fatal("expected miss on empty map")
	}

	m.Store("a", 1)

	value, ok := m.Load("a")
	if !ok || value != 1 {
		t.Fatalf("expected 1, got %d (ok %v)", value, ok)
	}
}

func TestMapLoadOrStore(t *testing.T) {
	t.Parallel()

	m := &Map[string, int]{}

	value, loaded := m.LoadOrStore("a", 1)
	if loaded || value != 1 {
		t.Fatalf("expected fresh store of 1, got %d (loaded %v)", value, loaded)
	}

	value, loaded = m.LoadOrStore("a", 2)
	if !loaded || value != 1 {
		t.Fatalf("expected existing 1, got %d (loaded %v)", value, loaded)
	}
}

func TestMapDeleteAndCount(t *testing.T) {
	t.Parallel()

	m := &Map[string, int]{}

	m.Store("a", 1)
	m.Store("b", 2)

	if count := m.Count(); count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}

	m.Delete("a")

	if count := m.Count(); count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}

	if _, ok := m.Load("a"); ok {
		t.Fatal("expected a to be deleted")
	}
}

func TestMapRange(t *testing.T) {
	t.Parallel()

	m := &Map[string, int]{}

	m.Store("a", 1)
	m.Store("b", 2)

	seen := make(map[string]int)

	m.Range(func(key string, value int) bool {
		seen[key] = value

		return true
	})

	if len(seen) != 2 || seen["a"] != 1 || seen["b"] != 2 {
		t.Fatalf("unexpected range result: %v", seen)
	}
}
