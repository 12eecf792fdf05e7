package gateway

import (
	"github.com/l1jgo/simcore/internal/core/ecs"
)

// Op identifies a client command kind on the wire and in the game loop.
type Op uint8

const (
	OpMove Op = iota + 1
	OpAttack
	OpCastSkill
	OpSay
	OpDeclareWar
	OpMountCatapult
	OpFireCatapult
	OpDisconnect // synthesized by the gateway, never sent by clients
)

func (o Op) String() string {
	switch o {
	case OpMove:
		return "move"
	case OpAttack:
		return "attack"
	case OpCastSkill:
		return "cast_skill"
	case OpSay:
		return "say"
	case OpDeclareWar:
		return "declare_war"
	case OpMountCatapult:
		return "mount_catapult"
	case OpFireCatapult:
		return "fire_catapult"
	case OpDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Command is one decoded client intent, stamped with the session that sent
// it. The game loop is the only consumer.
type Command struct {
	Op        Op
	SessionID uint64

	// Move
	DX, DY  int32
	Heading uint8

	// Attack / CastSkill
	Target  ecs.EntityID
	SkillID int32

	// Say
	Text string

	// DeclareWar / catapult ops
	CastleID int32
	X, Y     int32
}
