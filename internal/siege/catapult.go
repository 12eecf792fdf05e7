package siege

import (
	"fmt"

	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/world"
)

// CatapultSide constrains fire direction: defender catapults cover the
// approach outside the outer gate, attacker catapults the inner structures.
type CatapultSide uint8

const (
	SideDefender CatapultSide = iota
	SideAttacker
)

// Official catapult rules: 10 s reload (50 ticks at 200 ms), damage lands
// only on player entities, splash radius 3 tiles.
const (
	CatapultReloadTicks  = 50
	CatapultDamage       = 80
	CatapultSplashRadius = 3
	CatapultMaxHP        = 500
)

// Catapult is one siege engine slot. Only a mounted royal operator may fire;
// each shot consumes a bomb from the operator's inventory, checked by the
// caller since items are an external subsystem.
type Catapult struct {
	Index      int32
	Side       CatapultSide
	X, Y       int32
	HP         int32
	MaxHP      int32
	OperatorID ecs.EntityID
	ReadyTick  int64
	Destroyed  bool

	EntityID ecs.EntityID
}

func NewCatapult(index int32, side CatapultSide, x, y int32) *Catapult {
	return &Catapult{
		Index: index,
		Side:  side,
		X:     x,
		Y:     y,
		HP:    CatapultMaxHP,
		MaxHP: CatapultMaxHP,
	}
}

// Mount seats a royal operator. Non-royals and occupied or destroyed
// catapults are rejected.
func (c *Catapult) Mount(playerID ecs.EntityID, isRoyal bool) error {
	if c.Destroyed || !c.OperatorID.IsZero() {
		return fmt.Errorf("catapult %d: %w", c.Index, world.ErrInvalidState)
	}
	if !isRoyal {
		return fmt.Errorf("operator not royal: %w", world.ErrInvalidState)
	}
	c.OperatorID = playerID
	return nil
}

func (c *Catapult) Dismount() {
	c.OperatorID = 0
}

// Shot is a fired round: splash damage applied by the caller to player
// entities only.
type Shot struct {
	ImpactX, ImpactY int32
	Damage           int32
	SplashRadius     int32
}

// TryFire fires at the target tile. The cooldown is a tick-count
// comparison, never a sleeping timer.
func (c *Catapult) TryFire(tick int64, targetX, targetY int32, hasBomb bool) (Shot, error) {
	if c.Destroyed {
		return Shot{}, fmt.Errorf("catapult destroyed: %w", world.ErrInvalidState)
	}
	if c.OperatorID.IsZero() {
		return Shot{}, fmt.Errorf("no operator: %w", world.ErrInvalidState)
	}
	if tick < c.ReadyTick {
		return Shot{}, fmt.Errorf("reloading: %w", world.ErrOnCooldown)
	}
	if !hasBomb {
		return Shot{}, fmt.Errorf("no bomb: %w", world.ErrInsufficientResource)
	}
	c.ReadyTick = tick + CatapultReloadTicks
	return Shot{
		ImpactX:      targetX,
		ImpactY:      targetY,
		Damage:       CatapultDamage,
		SplashRadius: CatapultSplashRadius,
	}, nil
}

// ReceiveDamage reduces HP; returns true when the catapult is destroyed.
func (c *Catapult) ReceiveDamage(damage int32) bool {
	if c.Destroyed {
		return true
	}
	c.HP -= damage
	if c.HP <= 0 {
		c.HP = 0
		c.Destroyed = true
		c.OperatorID = 0
		return true
	}
	return false
}

// Repair restores the catapult to full. Runs at war start and on castle
// ownership change.
func (c *Catapult) Repair() {
	c.HP = c.MaxHP
	c.Destroyed = false
	c.OperatorID = 0
	c.ReadyTick = 0
}
