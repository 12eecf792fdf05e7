package world

import "github.com/l1jgo/simcore/internal/core/ecs"

// CellSize is the fixed spatial partition width in tiles. A 3×3 cell
// neighbourhood fully covers the visibility range.
const CellSize = 32

type cellKey struct {
	mapID int16
	cx    int32
	cy    int32
}

func toCellCoord(v int32) int32 {
	if v < 0 {
		return (v - CellSize + 1) / CellSize
	}
	return v / CellSize
}

// MapBounds is the playable extent of one map. Inserts outside it are
// rejected.
type MapBounds struct {
	Width  int32
	Height int32
}

// Grid is the cell-based spatial index. It holds only entity IDs; the Store
// owns the entities. Accessed only from the game loop goroutine; Move is
// a single in-tick mutation, so a reader in the same tick never observes an
// entity in two cells or zero cells.
type Grid struct {
	cells  map[cellKey]map[ecs.EntityID]struct{}
	bounds map[int16]MapBounds

	// Comparisons counts entities touched by QueryNearby since the last
	// ResetComparisons. Used to verify O(k) query cost.
	Comparisons uint64
}

func NewGrid(bounds map[int16]MapBounds) *Grid {
	if bounds == nil {
		bounds = make(map[int16]MapBounds)
	}
	return &Grid{
		cells:  make(map[cellKey]map[ecs.EntityID]struct{}),
		bounds: bounds,
	}
}

// SetBounds registers the playable extent for a map.
func (g *Grid) SetBounds(mapID int16, b MapBounds) {
	g.bounds[mapID] = b
}

// InBounds reports whether the position lies inside its map's extent.
// Maps without registered bounds accept any non-negative coordinate.
func (g *Grid) InBounds(pos Position) bool {
	if pos.X < 0 || pos.Y < 0 {
		return false
	}
	b, ok := g.bounds[pos.MapID]
	if !ok {
		return true
	}
	return pos.X < b.Width && pos.Y < b.Height
}

func key(pos Position) cellKey {
	return cellKey{mapID: pos.MapID, cx: toCellCoord(pos.X), cy: toCellCoord(pos.Y)}
}

// Insert places an entity ID into the cell covering pos.
// Returns ErrOutOfBounds when pos lies outside the map.
func (g *Grid) Insert(id ecs.EntityID, pos Position) error {
	if !g.InBounds(pos) {
		return ErrOutOfBounds
	}
	k := key(pos)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{}, 8)
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
	return nil
}

// Remove takes an entity out of the cell covering pos.
func (g *Grid) Remove(id ecs.EntityID, pos Position) {
	k := key(pos)
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates an entity's cell when its position changes. Remove+Insert run
// back-to-back inside the single writer tick, so membership is never split
// across cells from a reader's point of view.
func (g *Grid) Move(id ecs.EntityID, oldPos, newPos Position) error {
	if !g.InBounds(newPos) {
		return ErrOutOfBounds
	}
	oldK, newK := key(oldPos), key(newPos)
	if oldK == newK {
		return nil
	}
	g.Remove(id, oldPos)
	// Insert cannot fail here: bounds were checked above.
	cell := g.cells[newK]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{}, 8)
		g.cells[newK] = cell
	}
	cell[id] = struct{}{}
	return nil
}

// Has reports whether the entity ID is registered in the cell covering pos.
func (g *Grid) Has(id ecs.EntityID, pos Position) bool {
	_, ok := g.cells[key(pos)][id]
	return ok
}

// QueryNearby appends all entity IDs within radiusCells cells of pos to buf
// and returns it. Cost is O(k), k = entities in the (2r+1)² neighbourhood,
// independent of total population.
func (g *Grid) QueryNearby(pos Position, radiusCells int32, buf []ecs.EntityID) []ecs.EntityID {
	cx := toCellCoord(pos.X)
	cy := toCellCoord(pos.Y)
	for dx := -radiusCells; dx <= radiusCells; dx++ {
		for dy := -radiusCells; dy <= radiusCells; dy++ {
			k := cellKey{mapID: pos.MapID, cx: cx + dx, cy: cy + dy}
			for id := range g.cells[k] {
				g.Comparisons++
				buf = append(buf, id)
			}
		}
	}
	return buf
}

// ResetComparisons zeroes the query cost counter.
func (g *Grid) ResetComparisons() {
	g.Comparisons = 0
}
