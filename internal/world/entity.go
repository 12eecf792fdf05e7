package world

import "github.com/l1jgo/simcore/internal/core/ecs"

// Kind classifies a live entity.
type Kind uint8

const (
	KindPlayer Kind = iota
	KindNPC
	KindSiegeStructure
	KindCatapult
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	case KindSiegeStructure:
		return "structure"
	case KindCatapult:
		return "catapult"
	}
	return "unknown"
}

// Position is a tile coordinate on one map.
type Position struct {
	MapID int16
	X, Y  int32
}

// Chebyshev returns the Chebyshev (king-move) distance between two positions.
// Positions on different maps are infinitely far apart.
func (p Position) Chebyshev(o Position) int32 {
	if p.MapID != o.MapID {
		return 1 << 30
	}
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	if dy > dx {
		return dy
	}
	return dx
}

// Entity holds all live state for one world object. The Store exclusively
// owns entities; the grid and synchronizer hold only IDs.
// Accessed only from the game loop goroutine, no locks.
type Entity struct {
	ID      ecs.EntityID
	Kind    Kind
	Name    string
	Pos     Position
	Heading int16

	HP    int32
	MaxHP int32
	MP    int32
	MaxMP int32

	Level int16
	STR   int16
	DEX   int16
	INT   int16
	AC    int16 // lower = better, Lineage convention
	MR    int16

	// Flat modifiers contributed by active buffs (reverted on expiry).
	HitMod int16
	DmgMod int16
	PctDmg int16 // summed percentage damage modifier

	DamageReduction int16
	WeaponMax       int32 // max roll of base weapon power (0 = unarmed)
	Ranged          bool

	Dead     bool
	Sleeping bool
	InCombat bool

	ClanID   int32
	ClanRank int16

	// Active buffs by source skill ID; expiry ordering lives in BuffHeap.
	Buffs map[int32]*ActiveBuff

	// Skill cooldowns: skillID → tick at which the skill is ready again.
	Cooldowns map[int32]int64

	// SessionID of the controlling session (players only, 0 otherwise).
	SessionID uint64

	// CharID is the database row backing this player. Zero until the
	// load-or-create on connect resolves, and always zero without a
	// database; saves skip unbound entities.
	CharID int32

	AI    *AIState  // non-nil for NPCs
	Siege *SiegeRef // non-nil for siege structures and catapults
}

// MaxWakeRadius is the default cap on per-template wake radii, so the
// player-side wake sweep can use one query radius for all NPCs. The
// scheduler's configured wake range overrides it.
const MaxWakeRadius int32 = 30

// AIState is the per-NPC behaviour state. The behaviour itself is a profile
// ID dispatched through a lookup table, not a type hierarchy.
type AIState struct {
	TemplateID  int32
	Profile     string // key into the AI profile table
	WakeRadius  int32  // tiles; player inside → NPC wakes
	AggroTarget ecs.EntityID
	AttackTimer int // ticks until next attack allowed
	MoveTimer   int // ticks until next step allowed
	WanderDist  int
	WanderDir   int16
	HomeX       int32
	HomeY       int32
	// Evaluations counts full AI evaluations; sleeping NPCs must not
	// increment it.
	Evaluations uint64
}

// SiegeRef links a structure/catapult entity to its castle-side state.
type SiegeRef struct {
	CastleID    int32
	StructureID int32 // index into the castle's structure list
}

// OnCooldown reports whether the skill is not yet ready at the given tick.
func (e *Entity) OnCooldown(skillID int32, tick int64) bool {
	if e.Cooldowns == nil {
		return false
	}
	ready, ok := e.Cooldowns[skillID]
	return ok && tick < ready
}

// SetCooldown records the tick at which the skill becomes ready again.
func (e *Entity) SetCooldown(skillID int32, readyTick int64) {
	if e.Cooldowns == nil {
		e.Cooldowns = make(map[int32]int64, 4)
	}
	e.Cooldowns[skillID] = readyTick
}

// HasBuff reports whether the entity has the given skill effect active.
func (e *Entity) HasBuff(skillID int32) bool {
	if e.Buffs == nil {
		return false
	}
	_, ok := e.Buffs[skillID]
	return ok
}
