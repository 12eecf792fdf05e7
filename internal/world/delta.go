package world

import "github.com/l1jgo/simcore/internal/core/ecs"

// DeltaKind enumerates the world-state change events the scheduler emits
// each tick for downstream distribution. The protocol layer is solely
// responsible for serializing them per recipient.
type DeltaKind uint8

const (
	DeltaEntityMoved DeltaKind = iota
	DeltaEntityAppeared
	DeltaEntityDisappeared
	DeltaHPChanged
	DeltaBuffApplied
	DeltaBuffExpired
	DeltaStructureStage
	DeltaWarState
	// DeltaChat carries local speech; Reason holds the text.
	DeltaChat
	// DeltaActionRejected reports a failed command to the originating
	// session only; it is never fanned out.
	DeltaActionRejected
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaEntityMoved:
		return "moved"
	case DeltaEntityAppeared:
		return "appeared"
	case DeltaEntityDisappeared:
		return "disappeared"
	case DeltaHPChanged:
		return "hp"
	case DeltaBuffApplied:
		return "buff+"
	case DeltaBuffExpired:
		return "buff-"
	case DeltaStructureStage:
		return "stage"
	case DeltaWarState:
		return "war"
	case DeltaChat:
		return "chat"
	case DeltaActionRejected:
		return "rejected"
	}
	return "?"
}

// Delta is a single unit of world-state change. Pos anchors the grid query
// that determines the interested session set.
type Delta struct {
	Kind   DeltaKind
	Entity ecs.EntityID
	Pos    Position
	OldPos Position // EntityMoved only

	Value    int32 // HP for HPChanged, damage stage for StructureStage, war state for WarState
	SkillID  int32 // BuffApplied/BuffExpired
	CastleID int32 // StructureStage/WarState

	// Origin is the session a rejection is addressed to; Reason carries the
	// action error. Set only for DeltaActionRejected.
	Origin uint64
	Reason string
}
