package world

import (
	"errors"
	"testing"
)

func newTestStore() *Store {
	return NewStore(NewGrid(nil), nil)
}

func TestStoreCreateGetDestroy(t *testing.T) {
	s := newTestStore()

	e, err := s.Create(KindPlayer, "alice", Position{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(e.ID)
	if err != nil || got != e {
		t.Fatalf("get: %v", err)
	}
	if !s.Grid().Has(e.ID, e.Pos) {
		t.Fatal("created entity missing from grid")
	}

	if err := s.Destroy(e.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := s.Get(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after destroy: got %v, want ErrNotFound", err)
	}
	if s.Grid().Has(e.ID, Position{X: 5, Y: 5}) {
		t.Fatal("destroyed entity still in grid")
	}
}

// A stale ID whose slot was recycled must not resolve to the new occupant.
func TestStoreStaleGeneration(t *testing.T) {
	s := newTestStore()

	a, err := s.Create(KindNPC, "orc", Position{X: 1, Y: 1})
	if err != nil {
		t.Fatal(err)
	}
	stale := a.ID
	if err := s.Destroy(stale); err != nil {
		t.Fatal(err)
	}

	b, err := s.Create(KindNPC, "wolf", Position{X: 2, Y: 2})
	if err != nil {
		t.Fatal(err)
	}
	if b.ID.Index() != stale.Index() {
		t.Fatalf("pool did not recycle slot: %d vs %d", b.ID.Index(), stale.Index())
	}
	if _, err := s.Get(stale); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale ID resolved: got %v, want ErrNotFound", err)
	}
	if _, err := s.Get(b.ID); err != nil {
		t.Fatalf("fresh ID failed: %v", err)
	}
}

// Out-of-bounds creation rolls back the pool allocation completely.
func TestStoreCreateOutOfBoundsRollback(t *testing.T) {
	s := NewStore(NewGrid(map[int16]MapBounds{0: {Width: 10, Height: 10}}), nil)

	if _, err := s.Create(KindNPC, "lost", Position{X: 50, Y: 50}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store holds %d entities after failed create", s.Len())
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency after failed create: %v", err)
	}
}

func TestStoreDeferredDestruction(t *testing.T) {
	s := newTestStore()

	e, err := s.Create(KindNPC, "orc", Position{X: 3, Y: 3})
	if err != nil {
		t.Fatal(err)
	}
	s.MarkForDestruction(e.ID)

	// Still visible until the flush.
	if _, err := s.Get(e.ID); err != nil {
		t.Fatalf("entity gone before flush: %v", err)
	}

	s.FlushDestroyQueue()
	if _, err := s.Get(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("entity alive after flush: %v", err)
	}

	// Double-queued destruction is harmless.
	s.MarkForDestruction(e.ID)
	s.FlushDestroyQueue()
}

func TestStoreEachCreationOrder(t *testing.T) {
	s := newTestStore()

	names := []string{"a", "b", "c", "d"}
	for i, n := range names {
		if _, err := s.Create(KindNPC, n, Position{X: int32(i), Y: 0}); err != nil {
			t.Fatal(err)
		}
	}

	var visited []string
	s.Each(func(e *Entity) { visited = append(visited, e.Name) })
	for i, n := range names {
		if visited[i] != n {
			t.Fatalf("iteration order %v, want %v", visited, names)
		}
	}
}

func TestStoreMoveUpdatesGrid(t *testing.T) {
	s := newTestStore()

	e, err := s.Create(KindPlayer, "bob", Position{X: 10, Y: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Move(e.ID, Position{X: 100, Y: 100}); err != nil {
		t.Fatalf("move: %v", err)
	}
	if e.Pos.X != 100 || e.Pos.Y != 100 {
		t.Fatalf("entity position not updated: %+v", e.Pos)
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency after move: %v", err)
	}
}
