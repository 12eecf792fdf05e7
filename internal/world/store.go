package world

import (
	"fmt"

	"github.com/l1jgo/simcore/internal/core/ecs"
	"go.uber.org/zap"
)

// Store exclusively owns all live entity state. The grid holds non-owning
// IDs; membership in Store and Grid is updated atomically, so an ID existing
// in one but not the other is a fatal internal-consistency fault.
// Single-goroutine access only (game loop).
type Store struct {
	pool     *ecs.EntityPool
	entities map[ecs.EntityID]*Entity
	order    []ecs.EntityID // creation order, for deterministic iteration
	grid     *Grid

	destroyQueue []ecs.EntityID

	log *zap.Logger
}

func NewStore(grid *Grid, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		pool:         ecs.NewEntityPool(),
		entities:     make(map[ecs.EntityID]*Entity, 4096),
		order:        make([]ecs.EntityID, 0, 4096),
		grid:         grid,
		destroyQueue: make([]ecs.EntityID, 0, 64),
		log:          log,
	}
}

func (s *Store) Grid() *Grid { return s.grid }

// Create allocates an entity at pos and registers it in the grid. The grid
// insert runs first so an out-of-bounds position leaves no trace in either
// structure.
func (s *Store) Create(kind Kind, name string, pos Position) (*Entity, error) {
	id := s.pool.Create()
	if err := s.grid.Insert(id, pos); err != nil {
		s.pool.Destroy(id)
		return nil, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	e := &Entity{
		ID:   id,
		Kind: kind,
		Name: name,
		Pos:  pos,
	}
	s.entities[id] = e
	s.order = append(s.order, id)
	return e, nil
}

// Get returns the entity for id, or ErrNotFound if it was never created,
// already destroyed, or the ID's generation is stale.
func (s *Store) Get(id ecs.EntityID) (*Entity, error) {
	if !s.pool.Alive(id) {
		return nil, ErrNotFound
	}
	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Move relocates an entity, updating its position and grid cell in one step.
func (s *Store) Move(id ecs.EntityID, newPos Position) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.grid.Move(id, e.Pos, newPos); err != nil {
		return err
	}
	e.Pos = newPos
	return nil
}

// Destroy removes an entity from grid and store atomically. The ID's
// generation is retired, so stale references fail with ErrNotFound.
func (s *Store) Destroy(id ecs.EntityID) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	s.grid.Remove(id, e.Pos)
	delete(s.entities, id)
	s.pool.Destroy(id)
	return nil
}

// MarkForDestruction queues an entity for end-of-tick removal.
func (s *Store) MarkForDestruction(id ecs.EntityID) {
	s.destroyQueue = append(s.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities. Called at PhaseCleanup.
func (s *Store) FlushDestroyQueue() {
	for _, id := range s.destroyQueue {
		if err := s.Destroy(id); err != nil {
			// Already gone (double-queued death + disconnect); harmless.
			continue
		}
	}
	s.destroyQueue = s.destroyQueue[:0]
}

// Each visits live entities in creation order. Entities destroyed mid-
// iteration are skipped; the order slice is compacted when it accumulates
// too many dead slots.
func (s *Store) Each(fn func(*Entity)) {
	dead := 0
	for _, id := range s.order {
		e, ok := s.entities[id]
		if !ok {
			dead++
			continue
		}
		fn(e)
	}
	if dead > len(s.order)/4 {
		s.compact()
	}
}

func (s *Store) compact() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.entities[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// Len returns the live entity count.
func (s *Store) Len() int {
	return len(s.entities)
}

// CheckConsistency verifies the store↔grid membership invariant for every
// live entity. A violation indicates a broken atomic update discipline;
// further ticks would compound the corruption, so callers should halt.
func (s *Store) CheckConsistency() error {
	for id, e := range s.entities {
		if !s.grid.Has(id, e.Pos) {
			s.log.Error("consistency fault: entity missing from grid cell",
				zap.Uint64("entity", uint64(id)),
				zap.Int32("x", e.Pos.X), zap.Int32("y", e.Pos.Y))
			return fmt.Errorf("entity %d present in store but absent from grid: %w", id, ErrInvalidState)
		}
	}
	return nil
}
