package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/combat"
	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/core/event"
	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/scripting"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/world"
)

// NpcAISystem runs NPC behaviour: Go handles wake/sleep bookkeeping, target
// detection, and command execution; a Lua profile decides the action when
// one is loaded, with built-in Go profiles as the fallback. Phase 1
// (Update).
//
// Sleeping NPCs are skipped without evaluation. Waking is driven from the
// player side: one grid sweep around each player wakes every NPC in wake
// range, so a map with thousands of idle NPCs costs nothing per tick beyond
// the sweeps.
type NpcAISystem struct {
	sch    *Scheduler
	engine *scripting.Engine // nil when scripting is disabled

	queryBuf []ecs.EntityID
	log      *zap.Logger
}

func NewNpcAISystem(sch *Scheduler, engine *scripting.Engine, log *zap.Logger) *NpcAISystem {
	s := &NpcAISystem{
		sch:      sch,
		engine:   engine,
		queryBuf: make([]ecs.EntityID, 0, 256),
		log:      log,
	}
	// Targets that die or log out stop being chased the following tick,
	// whether or not the chaser gets evaluated.
	event.Subscribe(sch.Bus, func(ev event.EntityKilled) {
		s.dropAggro(ev.EntityID)
	})
	event.Subscribe(sch.Bus, func(ev event.PlayerDisconnected) {
		s.dropAggro(ev.EntityID)
	})
	event.Subscribe(sch.Bus, func(ev event.WarStateChanged) {
		if ev.NewState == int32(siege.StateActive) {
			s.rallyGuards(ev.CastleID)
		}
	})
	return s
}

// dropAggro clears a vanished target from every NPC chasing it.
func (s *NpcAISystem) dropAggro(id ecs.EntityID) {
	s.sch.Store.Each(func(e *world.Entity) {
		if e.Kind == world.KindNPC && e.AI != nil && e.AI.AggroTarget == id {
			e.AI.AggroTarget = ecs.EntityID(0)
		}
	})
}

// rallyGuards wakes the owning clan's garrison when its castle comes under
// active siege, rather than waiting for attackers to walk into wake range.
func (s *NpcAISystem) rallyGuards(castleID int32) {
	war := s.sch.Wars[castleID]
	if war == nil || war.OwnerClan == 0 {
		return
	}
	woken := 0
	s.sch.Store.Each(func(e *world.Entity) {
		if e.Kind != world.KindNPC || e.AI == nil || e.AI.Profile != "guard" {
			return
		}
		if e.ClanID != war.OwnerClan || !e.Sleeping {
			return
		}
		e.Sleeping = false
		woken++
	})
	if woken > 0 {
		s.log.Info("garrison rallied",
			zap.Int32("castle", castleID),
			zap.Int("guards", woken),
		)
	}
}

func (s *NpcAISystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *NpcAISystem) Update(_ time.Duration) {
	s.wakeSweep()

	s.sch.Store.Each(func(e *world.Entity) {
		if e.Kind != world.KindNPC || e.AI == nil {
			return
		}
		if e.Sleeping {
			return // no evaluation, by contract
		}
		s.tickNpc(e)
	})
}

// wakeSweep wakes NPCs around every connected player. The sweep radius is
// the configured wake range, which caps every NPC template's own radius;
// per-NPC radii are checked exactly before waking.
func (s *NpcAISystem) wakeSweep() {
	grid := s.sch.Store.Grid()
	s.sch.Store.Each(func(p *world.Entity) {
		if p.Kind != world.KindPlayer || p.Dead {
			return
		}
		radiusCells := s.sch.WakeRadius/world.CellSize + 1
		s.queryBuf = grid.QueryNearby(p.Pos, radiusCells, s.queryBuf[:0])
		for _, id := range s.queryBuf {
			e, err := s.sch.Store.Get(id)
			if err != nil || e.Kind != world.KindNPC || e.AI == nil || !e.Sleeping {
				continue
			}
			if p.Pos.Chebyshev(e.Pos) <= e.AI.WakeRadius {
				e.Sleeping = false
			}
		}
	})
}

func (s *NpcAISystem) tickNpc(npc *world.Entity) {
	ai := npc.AI
	ai.Evaluations++

	if ai.AttackTimer > 0 {
		ai.AttackTimer--
	}
	if ai.MoveTimer > 0 {
		ai.MoveTimer--
	}

	target := s.currentTarget(npc)
	if target == nil {
		target = s.scanForTarget(npc)
	}
	if target == nil {
		s.idle(npc)
		return
	}

	dist := npc.Pos.Chebyshev(target.Pos)
	ctx := scripting.AIContext{
		SelfX:       npc.Pos.X,
		SelfY:       npc.Pos.Y,
		TargetX:     target.Pos.X,
		TargetY:     target.Pos.Y,
		Distance:    dist,
		HPRatio:     float64(npc.HP) / float64(maxi32(npc.MaxHP, 1)),
		HasTarget:   true,
		AttackReady: ai.AttackTimer == 0,
	}

	decision := s.decide(ai.Profile, ctx)
	switch decision.Action {
	case "attack":
		s.npcAttack(npc, target)
	case "move", "flee":
		s.npcStep(npc, decision.DX, decision.DY)
	}
}

// decide consults the Lua profile when one is loaded, otherwise the
// built-in Go profile of the same name.
func (s *NpcAISystem) decide(profile string, ctx scripting.AIContext) scripting.Decision {
	if s.engine != nil && s.engine.HasProfile(profile) {
		d, err := s.engine.Decide(profile, ctx)
		if err == nil {
			return d
		}
		s.log.Warn("lua profile error", zap.String("profile", profile), zap.Error(err))
	}
	return builtinDecide(profile, ctx)
}

// builtinDecide mirrors the bundled Lua profiles so the server runs without
// a scripts directory.
func builtinDecide(profile string, ctx scripting.AIContext) scripting.Decision {
	switch profile {
	case "passive":
		return scripting.Decision{Action: "idle"}
	case "guard":
		if ctx.Distance <= 1 && ctx.AttackReady {
			return scripting.Decision{Action: "attack"}
		}
		if ctx.Distance > 1 && ctx.Distance <= 5 {
			return scripting.Decision{Action: "move", DX: stepToward(ctx.SelfX, ctx.TargetX), DY: stepToward(ctx.SelfY, ctx.TargetY)}
		}
		return scripting.Decision{Action: "idle"}
	default: // aggressive
		if ctx.HPRatio < 0.15 {
			return scripting.Decision{Action: "flee", DX: -stepToward(ctx.SelfX, ctx.TargetX), DY: -stepToward(ctx.SelfY, ctx.TargetY)}
		}
		if ctx.Distance <= 1 {
			if ctx.AttackReady {
				return scripting.Decision{Action: "attack"}
			}
			return scripting.Decision{Action: "idle"}
		}
		return scripting.Decision{Action: "move", DX: stepToward(ctx.SelfX, ctx.TargetX), DY: stepToward(ctx.SelfY, ctx.TargetY)}
	}
}

func stepToward(from, to int32) int32 {
	switch {
	case from < to:
		return 1
	case from > to:
		return -1
	}
	return 0
}

// currentTarget revalidates the stored aggro target. Dead, despawned,
// off-map, or safety-zoned targets drop aggro.
func (s *NpcAISystem) currentTarget(npc *world.Entity) *world.Entity {
	ai := npc.AI
	if ai.AggroTarget.IsZero() {
		return nil
	}
	target, err := s.sch.Store.Get(ai.AggroTarget)
	if err != nil || target.Dead || target.Pos.MapID != npc.Pos.MapID {
		ai.AggroTarget = ecs.EntityID(0)
		return nil
	}
	if s.sch.Maps != nil && s.sch.Maps.ZoneType(target.Pos.MapID, target.Pos.X, target.Pos.Y) == data.ZoneSafety {
		ai.AggroTarget = ecs.EntityID(0)
		return nil
	}
	return target
}

// scanForTarget picks the closest live player within aggro range.
func (s *NpcAISystem) scanForTarget(npc *world.Entity) *world.Entity {
	grid := s.sch.Store.Grid()
	radiusCells := npc.AI.WakeRadius/world.CellSize + 1
	s.queryBuf = grid.QueryNearby(npc.Pos, radiusCells, s.queryBuf[:0])

	var best *world.Entity
	bestDist := int32(1 << 30)
	for _, id := range s.queryBuf {
		p, err := s.sch.Store.Get(id)
		if err != nil || p.Kind != world.KindPlayer || p.Dead {
			continue
		}
		if s.sch.Maps != nil && s.sch.Maps.ZoneType(p.Pos.MapID, p.Pos.X, p.Pos.Y) == data.ZoneSafety {
			continue
		}
		dist := npc.Pos.Chebyshev(p.Pos)
		if dist <= npc.AI.WakeRadius && dist < bestDist {
			bestDist = dist
			best = p
		}
	}
	if best != nil {
		npc.AI.AggroTarget = best.ID
	}
	return best
}

// idle wanders near home, and puts the NPC back to sleep once it has been
// alone long enough to stop paying for evaluations.
func (s *NpcAISystem) idle(npc *world.Entity) {
	ai := npc.AI
	ai.WanderDist++
	if ai.WanderDist > 50 {
		npc.Sleeping = true
		ai.WanderDist = 0
		return
	}
	if ai.MoveTimer > 0 {
		return
	}
	ai.MoveTimer = 5
	dx := s.sch.Rng.Int31n(3) - 1
	dy := s.sch.Rng.Int31n(3) - 1
	if dx == 0 && dy == 0 {
		return
	}
	// Stay within the leash range of home.
	nx, ny := npc.Pos.X+dx, npc.Pos.Y+dy
	if abs32(nx-ai.HomeX) > 8 || abs32(ny-ai.HomeY) > 8 {
		return
	}
	s.npcStep(npc, dx, dy)
}

func (s *NpcAISystem) npcStep(npc *world.Entity, dx, dy int32) {
	if npc.AI.MoveTimer > 0 || (dx == 0 && dy == 0) {
		return
	}
	old := npc.Pos
	next := world.Position{MapID: old.MapID, X: old.X + dx, Y: old.Y + dy}
	if s.sch.Maps != nil && !s.sch.Maps.IsPassable(next.MapID, next.X, next.Y) {
		return
	}
	if err := s.sch.Store.Move(npc.ID, next); err != nil {
		return
	}
	npc.AI.MoveTimer = 2
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaEntityMoved,
		Entity: npc.ID,
		Pos:    next,
		OldPos: old,
	})
}

func (s *NpcAISystem) npcAttack(npc, target *world.Entity) {
	npc.AI.AttackTimer = 10
	res := combat.ResolveNpc(s.sch.Rng, npc.Level, npc.STR, defenderStats(target))
	if !res.Hit {
		return
	}
	npc.InCombat = true
	target.InCombat = true
	s.sch.ApplyDamage(npc, target, res.Damage)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
