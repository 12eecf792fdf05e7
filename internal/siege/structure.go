package siege

import "github.com/l1jgo/simcore/internal/core/ecs"

// StructureKind separates gates (six damage stages) from towers (four crack
// stages).
type StructureKind uint8

const (
	StructureGate StructureKind = iota
	StructureTower
)

const (
	GateStages  = 6
	TowerStages = 4
)

// Structure is one gate or tower of a castle, stepping through visually
// distinguishable damage stages as it takes hits.
type Structure struct {
	Index        int32
	Kind         StructureKind
	X, Y         int32
	MaxHP        int32
	HP           int32
	Stage        int32 // 0 = intact … MaxStage() = destroyed
	CrownBearing bool
	Destroyed    bool

	// EntityID of the world entity standing in for this structure (grid
	// presence and targeting); the siege layer owns the damage state.
	EntityID ecs.EntityID
}

// MaxStage returns the terminal damage stage ordinal.
func (s *Structure) MaxStage() int32 {
	if s.Kind == StructureGate {
		return GateStages
	}
	return TowerStages
}

// HitOutcome reports what one resolved hit changed.
type HitOutcome struct {
	StageChanged bool
	NewStage     int32
	Destroyed    bool
	CrownSpawn   bool // crown-bearing tower just reached its terminal stage
}

// ApplyHit subtracts damage and advances the damage stage. The stage is
// clamped to one advance per resolution step: a hit larger than one
// threshold width still carries its full damage onto HP, but the visible
// stage steps a single level, catching up on subsequent hits. Stages are
// monotonic and never exceed the stage implied by cumulative damage.
func (s *Structure) ApplyHit(damage int32) HitOutcome {
	if s.Destroyed || damage <= 0 {
		return HitOutcome{NewStage: s.Stage, Destroyed: s.Destroyed}
	}
	s.HP -= damage
	if s.HP < 0 {
		s.HP = 0
	}

	maxStage := s.MaxStage()
	implied := (s.MaxHP - s.HP) * maxStage / s.MaxHP
	out := HitOutcome{NewStage: s.Stage}
	if implied > s.Stage {
		s.Stage++ // clamp: one stage per resolution step
		out.StageChanged = true
		out.NewStage = s.Stage
	}
	if s.Stage >= maxStage {
		s.Destroyed = true
		out.Destroyed = true
		if s.CrownBearing {
			out.CrownSpawn = true
		}
	}
	return out
}
