package event

import "github.com/l1jgo/simcore/internal/core/ecs"

// EntityKilled fires when any entity's HP reaches zero during combat
// resolution. KillerID may be zero (environment/timeout kills).
type EntityKilled struct {
	EntityID ecs.EntityID
	KillerID ecs.EntityID
}

// StructureDestroyed fires when a siege structure reaches its terminal
// damage stage.
type StructureDestroyed struct {
	StructureID ecs.EntityID
	CastleID    int32
}

// CrownSpawned fires exactly once per war, when the crown-bearing tower is
// destroyed. The crown entity is the capture objective.
type CrownSpawned struct {
	CrownID  ecs.EntityID
	CastleID int32
}

// WarStateChanged fires on every siege war transition.
type WarStateChanged struct {
	CastleID int32
	OldState int32
	NewState int32
}

// PlayerDisconnected fires when the synchronizer tears down a session's
// player entity.
type PlayerDisconnected struct {
	EntityID  ecs.EntityID
	SessionID uint64
}
