// Package siege models the per-castle war lifecycle as explicit state
// machines driven only by combat outcomes and tick counts, kept apart from
// entity update code so the whole lifecycle is testable in isolation.
package siege

import (
	"fmt"

	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/world"
)

// State is the war lifecycle position. Transitions are monotonic forward
// except Resolved→Inactive at season reset.
type State int32

const (
	StateInactive State = iota
	StateDeclared
	StateActive
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateDeclared:
		return "declared"
	case StateActive:
		return "active"
	case StateResolved:
		return "resolved"
	}
	return "?"
}

// Outcome records how a resolved war ended.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeCaptured
	OutcomeDefended // timeout; hard terminal, never retried
)

// Siege-scoped buff: defense-side members of guardian rank or above gain a
// flat attack bonus while the war is active.
const (
	GuardBuffSkillID  int32 = 9001
	GuardBuffAtkBonus int16 = 30
	GuardBuffMinRank  int16 = 6
)

// War is the siege state for one castle.
type War struct {
	CastleID      int32
	State         State
	Outcome       Outcome
	DeclaringClan int32
	OwnerClan     int32

	// War area. AreaRadius 0 means the whole map counts as in-area.
	MapID      int16
	CenterX    int32
	CenterY    int32
	AreaRadius int32

	DeclareTick  int64
	StartTick    int64
	DeadlineTick int64
	ResolvedTick int64
	ResetTick    int64 // Resolved → Inactive at season reset

	Structures []*Structure
	Catapults  []*Catapult

	crownSpawned bool
}

// NewWar builds the war state from a castle layout. Structures and
// catapults follow the layout order so indices are stable.
func NewWar(layout *data.CastleInfo) *War {
	w := &War{
		CastleID:   layout.CastleID,
		MapID:      layout.MapID,
		CenterX:    layout.X,
		CenterY:    layout.Y,
		AreaRadius: layout.AreaRadius,
	}
	for i, spec := range layout.Structures {
		kind := StructureGate
		if spec.Kind == "tower" {
			kind = StructureTower
		}
		w.Structures = append(w.Structures, &Structure{
			Index:        int32(i),
			Kind:         kind,
			X:            spec.X,
			Y:            spec.Y,
			MaxHP:        spec.HP,
			HP:           spec.HP,
			CrownBearing: spec.CrownBearing,
		})
	}
	for i, spec := range layout.Catapults {
		side := SideDefender
		if spec.Side == "attacker" {
			side = SideAttacker
		}
		w.Catapults = append(w.Catapults, NewCatapult(int32(i), side, spec.X, spec.Y))
	}
	return w
}

// InArea reports whether a map position falls inside the war area
// (Chebyshev distance from the castle center).
func (w *War) InArea(mapID int16, x, y int32) bool {
	if w.AreaRadius <= 0 {
		return true
	}
	if mapID != w.MapID {
		return false
	}
	dx := x - w.CenterX
	if dx < 0 {
		dx = -dx
	}
	dy := y - w.CenterY
	if dy < 0 {
		dy = -dy
	}
	if dy > dx {
		dx = dy
	}
	return dx <= w.AreaRadius
}

// Transition reports one state change produced by Advance.
type Transition struct {
	From State
	To   State
}

// Declare records a clan's war declaration. Eligibility (clan rank, castle
// ownership) is validated by the clan subsystem; the core only records the
// fact. Declaring anywhere but Inactive fails with ErrInvalidState, in
// particular on an already-Active castle.
func (w *War) Declare(tick int64, clanID int32, leadTicks, durationTicks int64) error {
	if w.State != StateInactive {
		return fmt.Errorf("castle %d is %s: %w", w.CastleID, w.State, world.ErrInvalidState)
	}
	w.State = StateDeclared
	w.DeclaringClan = clanID
	w.DeclareTick = tick
	w.StartTick = tick + leadTicks
	w.DeadlineTick = w.StartTick + durationTicks
	w.Outcome = OutcomeNone
	w.crownSpawned = false
	return nil
}

// Advance moves the war forward by tick comparison: Declared→Active at the
// configured start, Active→Resolved(Defended) at the deadline (a hard
// terminal, not retried), and Resolved→Inactive at season reset.
func (w *War) Advance(tick int64, seasonTicks int64) []Transition {
	var out []Transition
	switch w.State {
	case StateDeclared:
		if tick >= w.StartTick {
			w.State = StateActive
			for _, c := range w.Catapults {
				c.Repair()
			}
			out = append(out, Transition{From: StateDeclared, To: StateActive})
		}
	case StateActive:
		if tick >= w.DeadlineTick {
			w.resolve(tick, OutcomeDefended, seasonTicks)
			out = append(out, Transition{From: StateActive, To: StateResolved})
		}
	case StateResolved:
		if w.ResetTick > 0 && tick >= w.ResetTick {
			w.reset()
			out = append(out, Transition{From: StateResolved, To: StateInactive})
		}
	}
	return out
}

// DamageStructure routes one resolved hit to a structure. Hits are accepted
// only while the war is Active; anything after Resolved is rejected.
func (w *War) DamageStructure(index int32, damage int32) (HitOutcome, error) {
	if w.State != StateActive {
		return HitOutcome{}, fmt.Errorf("war %s: %w", w.State, world.ErrInvalidState)
	}
	if index < 0 || int(index) >= len(w.Structures) {
		return HitOutcome{}, fmt.Errorf("structure %d: %w", index, world.ErrNotFound)
	}
	s := w.Structures[index]
	out := s.ApplyHit(damage)
	if out.CrownSpawn {
		if w.crownSpawned {
			out.CrownSpawn = false // exactly one crown per war
		} else {
			w.crownSpawned = true
		}
	}
	return out, nil
}

// CaptureCrown resolves the war as captured: the crown spawned from the
// destroyed crown-bearing tower is the capture signal.
func (w *War) CaptureCrown(tick int64, seasonTicks int64) error {
	if w.State != StateActive {
		return fmt.Errorf("war %s: %w", w.State, world.ErrInvalidState)
	}
	w.resolve(tick, OutcomeCaptured, seasonTicks)
	w.OwnerClan = w.DeclaringClan
	return nil
}

func (w *War) resolve(tick int64, outcome Outcome, seasonTicks int64) {
	w.State = StateResolved
	w.Outcome = outcome
	w.ResolvedTick = tick
	if seasonTicks > 0 {
		w.ResetTick = tick + seasonTicks
	}
}

func (w *War) reset() {
	w.State = StateInactive
	w.Outcome = OutcomeNone
	w.DeclaringClan = 0
	w.crownSpawned = false
	for _, s := range w.Structures {
		s.HP = s.MaxHP
		s.Stage = 0
		s.Destroyed = false
	}
	for _, c := range w.Catapults {
		c.Repair()
	}
}
