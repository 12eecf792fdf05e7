package system

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/combat"
	"github.com/l1jgo/simcore/internal/core/event"
	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/gateway"
	"github.com/l1jgo/simcore/internal/persist"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/skill"
	"github.com/l1jgo/simcore/internal/world"
)

// InputSystem accepts new sessions, drains the shared command queue, and
// executes each command against the world. Phase 0 (Input).
//
// Commands from sessions whose entity is gone are discarded; a command
// submitted at tick N is visible in tick N's output at the earliest, never
// retroactively.
type InputSystem struct {
	sch        *Scheduler
	sync       *gateway.Synchronizer
	newConns   <-chan *gateway.Session
	commands   <-chan gateway.Command
	executor   *skill.Executor
	charRepo   *persist.CharacterRepo // nil when running without a database
	charBinds  chan charBind
	maxPerTick int
	spawn      world.Position
	log        *zap.Logger
}

// charBind carries a finished character load-or-create back onto the game
// loop. The database round-trip runs off-loop; the bind applies at the
// start of a later tick.
type charBind struct {
	sessionID uint64
	row       persist.CharacterRow
	loaded    bool // row already existed; restore its state
}

func NewInputSystem(
	sch *Scheduler,
	sync *gateway.Synchronizer,
	newConns <-chan *gateway.Session,
	commands <-chan gateway.Command,
	executor *skill.Executor,
	charRepo *persist.CharacterRepo,
	maxPerTick int,
	spawn world.Position,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		sch:        sch,
		sync:       sync,
		newConns:   newConns,
		commands:   commands,
		executor:   executor,
		charRepo:   charRepo,
		charBinds:  make(chan charBind, 64),
		maxPerTick: maxPerTick,
		spawn:      spawn,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Apply finished character loads first, so the next command a
	// returning player sends sees the restored state.
	for {
		select {
		case b := <-s.charBinds:
			s.bindCharacter(b)
		default:
			goto doneBinds
		}
	}
doneBinds:

	// Accept new sessions
	for {
		select {
		case sess := <-s.newConns:
			s.sync.Register(sess)
			s.spawnPlayer(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Drain commands in arrival order, bounded per tick. Leftovers stay in
	// the queue for the next tick; order within a session is preserved.
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case cmd := <-s.commands:
			s.dispatch(cmd)
		default:
			return
		}
	}
}

func (s *InputSystem) spawnPlayer(sess *gateway.Session) {
	name := fmt.Sprintf("adventurer%d", sess.ID)
	e, err := s.sch.Store.Create(world.KindPlayer, name, s.spawn)
	if err != nil {
		s.log.Error("spawn failed", zap.Uint64("session", sess.ID), zap.Error(err))
		sess.Close()
		return
	}
	e.Level = 1
	e.MaxHP, e.HP = 60, 60
	e.MaxMP, e.MP = 30, 30
	e.STR, e.DEX, e.INT = 12, 12, 12
	e.AC = 8
	e.SessionID = sess.ID

	s.sync.Bind(sess.ID, e.ID)
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaEntityAppeared,
		Entity: e.ID,
		Pos:    e.Pos,
	})
	s.loadCharacter(sess.ID, e)
}

// loadCharacter resolves the entity's database row off the game loop:
// returning players load their saved row, first-timers get one inserted.
// The result comes back through charBinds.
func (s *InputSystem) loadCharacter(sessionID uint64, e *world.Entity) {
	if s.charRepo == nil {
		return
	}
	snap := persist.CharacterRow{
		Name:    e.Name,
		Level:   e.Level,
		HP:      int16(e.HP),
		MP:      int16(e.MP),
		MaxHP:   int16(e.MaxHP),
		MaxMP:   int16(e.MaxMP),
		Str:     e.STR,
		Dex:     e.DEX,
		Intel:   e.INT,
		AC:      e.AC,
		MR:      e.MR,
		X:       e.Pos.X,
		Y:       e.Pos.Y,
		MapID:   e.Pos.MapID,
		Heading: e.Heading,
	}
	repo, log, binds := s.charRepo, s.log, s.charBinds
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		row, err := repo.LoadByName(ctx, snap.Name)
		if err != nil {
			log.Error("character load failed", zap.String("name", snap.Name), zap.Error(err))
			return
		}
		if row != nil {
			binds <- charBind{sessionID: sessionID, row: *row, loaded: true}
			return
		}
		id, err := repo.Create(ctx, &snap)
		if err != nil {
			log.Error("character create failed", zap.String("name", snap.Name), zap.Error(err))
			return
		}
		snap.ID = id
		binds <- charBind{sessionID: sessionID, row: snap}
	}()
}

// bindCharacter applies a resolved row to the session's entity. A session
// that disconnected while the round-trip was in flight is dropped; its
// fresh-spawn state was never worth saving.
func (s *InputSystem) bindCharacter(b charBind) {
	sess := s.sync.Get(b.sessionID)
	if sess == nil {
		return
	}
	e, err := s.sch.Store.Get(sess.Entity)
	if err != nil {
		return
	}
	e.CharID = b.row.ID
	if !b.loaded {
		return
	}

	// Returning player: the saved sheet replaces the fresh-spawn defaults.
	e.Level = b.row.Level
	e.HP, e.MP = int32(b.row.HP), int32(b.row.MP)
	e.MaxHP, e.MaxMP = int32(b.row.MaxHP), int32(b.row.MaxMP)
	e.STR, e.DEX, e.INT = b.row.Str, b.row.Dex, b.row.Intel
	e.AC, e.MR = b.row.AC, b.row.MR
	e.Heading = b.row.Heading
	e.ClanID, e.ClanRank = b.row.ClanID, b.row.ClanRank

	old := e.Pos
	saved := world.Position{MapID: b.row.MapID, X: b.row.X, Y: b.row.Y}
	if saved != old {
		if err := s.sch.Store.Move(e.ID, saved); err == nil {
			s.sch.Emit(world.Delta{
				Kind:   world.DeltaEntityMoved,
				Entity: e.ID,
				Pos:    saved,
				OldPos: old,
			})
		}
	}
}

func (s *InputSystem) dispatch(cmd gateway.Command) {
	if cmd.Op == gateway.OpDisconnect {
		s.handleDisconnect(cmd.SessionID)
		return
	}

	sess := s.sync.Get(cmd.SessionID)
	if sess == nil {
		return // session already gone, discard
	}
	actor, err := s.sch.Store.Get(sess.Entity)
	if err != nil {
		return // entity destroyed, discard
	}
	if actor.Dead {
		s.reject(cmd.SessionID, "dead")
		return
	}

	switch cmd.Op {
	case gateway.OpMove:
		s.handleMove(cmd, actor)
	case gateway.OpAttack:
		s.handleAttack(cmd, actor)
	case gateway.OpCastSkill:
		s.handleCast(cmd, actor)
	case gateway.OpSay:
		s.handleSay(cmd, actor)
	case gateway.OpDeclareWar:
		s.handleDeclareWar(cmd, actor)
	case gateway.OpMountCatapult:
		s.handleMountCatapult(cmd, actor)
	case gateway.OpFireCatapult:
		s.handleFireCatapult(cmd, actor)
	default:
		s.log.Debug("unhandled op", zap.String("op", cmd.Op.String()))
	}
}

func (s *InputSystem) reject(sessionID uint64, reason string) {
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaActionRejected,
		Origin: sessionID,
		Reason: reason,
	})
}

func (s *InputSystem) handleMove(cmd gateway.Command, actor *world.Entity) {
	if cmd.DX < -1 || cmd.DX > 1 || cmd.DY < -1 || cmd.DY > 1 || (cmd.DX == 0 && cmd.DY == 0) {
		s.reject(cmd.SessionID, "bad step")
		return
	}
	old := actor.Pos
	next := world.Position{MapID: old.MapID, X: old.X + cmd.DX, Y: old.Y + cmd.DY}

	if s.sch.Maps != nil && !s.sch.Maps.IsPassable(next.MapID, next.X, next.Y) {
		s.reject(cmd.SessionID, "blocked")
		return
	}
	if err := s.sch.Store.Move(actor.ID, next); err != nil {
		s.reject(cmd.SessionID, "out of bounds")
		return
	}
	actor.Heading = int16(cmd.Heading)
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaEntityMoved,
		Entity: actor.ID,
		Pos:    next,
		OldPos: old,
	})
}

func (s *InputSystem) handleAttack(cmd gateway.Command, actor *world.Entity) {
	target, err := s.sch.Store.Get(cmd.Target)
	if err != nil {
		s.reject(cmd.SessionID, "no target")
		return
	}
	if target.Dead {
		s.reject(cmd.SessionID, "target dead")
		return
	}

	reach := int32(1)
	if actor.Ranged {
		reach = 8
	}
	if actor.Pos.Chebyshev(target.Pos) > reach {
		s.reject(cmd.SessionID, "out of range")
		return
	}
	if s.sch.Maps != nil && s.sch.Maps.ZoneType(target.Pos.MapID, target.Pos.X, target.Pos.Y) == data.ZoneSafety {
		s.reject(cmd.SessionID, "safety zone")
		return
	}

	// Siege structures bypass the combat roll: hits always land and the
	// war state machine owns the damage staging.
	if target.Kind == world.KindSiegeStructure {
		s.attackStructure(cmd, actor, target)
		return
	}
	if target.Kind == world.KindCatapult {
		s.attackCatapult(cmd, actor, target)
		return
	}

	res := combat.Resolve(s.sch.Rng,
		attackerStats(actor), defenderStats(target), 0)
	if !res.Hit {
		return
	}
	actor.InCombat = true
	target.InCombat = true
	s.sch.ApplyDamage(actor, target, res.Damage)

	// Melee provocation: an NPC struck while idle turns on its attacker.
	if target.AI != nil && target.AI.AggroTarget.IsZero() {
		target.AI.AggroTarget = actor.ID
		target.Sleeping = false
	}
}

func (s *InputSystem) attackStructure(cmd gateway.Command, actor *world.Entity, target *world.Entity) {
	if target.Siege == nil {
		s.reject(cmd.SessionID, "no target")
		return
	}
	war := s.sch.Wars[target.Siege.CastleID]
	if war == nil {
		s.reject(cmd.SessionID, "no war")
		return
	}

	// The crown is a capture objective, not a structure to batter down.
	if target.Siege.StructureID < 0 {
		s.captureCrown(cmd, actor, target, war)
		return
	}

	damage := s.sch.Rng.Int31n(maxi32(actor.WeaponMax, 1)) + 1 + int32(actor.DmgMod)
	out, err := war.DamageStructure(target.Siege.StructureID, damage)
	if err != nil {
		s.reject(cmd.SessionID, "war not active")
		return
	}
	if out.StageChanged {
		s.sch.Emit(world.Delta{
			Kind:     world.DeltaStructureStage,
			Entity:   target.ID,
			Pos:      target.Pos,
			Value:    out.NewStage,
			CastleID: war.CastleID,
		})
	}
	if out.Destroyed {
		event.Emit(s.sch.Bus, event.StructureDestroyed{
			StructureID: target.ID,
			CastleID:    war.CastleID,
		})
		s.sch.Kill(target, actor)
		s.sch.Store.MarkForDestruction(target.ID)
	}
	if out.CrownSpawn {
		s.spawnCrown(war, target.Pos)
	}
}

// captureCrown ends the war in the attackers' favor when a member of the
// declaring clan seizes the crown.
func (s *InputSystem) captureCrown(cmd gateway.Command, actor *world.Entity, crown *world.Entity, war *siege.War) {
	if actor.ClanID == 0 || actor.ClanID != war.DeclaringClan {
		s.reject(cmd.SessionID, "not your war")
		return
	}
	if err := war.CaptureCrown(s.sch.Tick(), s.sch.SiegeConfig.SeasonTicks); err != nil {
		s.reject(cmd.SessionID, "war not active")
		return
	}
	// The siege system observes ResolvedTick and emits the transition
	// fallout later this tick; only the crown's removal is ours.
	s.sch.Store.MarkForDestruction(crown.ID)
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaEntityDisappeared,
		Entity: crown.ID,
		Pos:    crown.Pos,
	})
}

// spawnCrown materializes the capture objective where the crown tower fell.
// The war state machine guarantees this runs at most once per war.
func (s *InputSystem) spawnCrown(war *siege.War, pos world.Position) {
	crown, err := s.sch.Store.Create(world.KindSiegeStructure, "crown", pos)
	if err != nil {
		s.log.Error("crown spawn failed", zap.Int32("castle", war.CastleID), zap.Error(err))
		return
	}
	crown.HP, crown.MaxHP = 1, 1
	crown.Siege = &world.SiegeRef{CastleID: war.CastleID, StructureID: -1}
	event.Emit(s.sch.Bus, event.CrownSpawned{CrownID: crown.ID, CastleID: war.CastleID})
	s.sch.Emit(world.Delta{
		Kind:     world.DeltaEntityAppeared,
		Entity:   crown.ID,
		Pos:      pos,
		CastleID: war.CastleID,
	})
}

func (s *InputSystem) attackCatapult(cmd gateway.Command, actor *world.Entity, target *world.Entity) {
	if target.Siege == nil {
		s.reject(cmd.SessionID, "no target")
		return
	}
	war := s.sch.Wars[target.Siege.CastleID]
	if war == nil || int(target.Siege.StructureID) >= len(war.Catapults) {
		s.reject(cmd.SessionID, "no war")
		return
	}
	cat := war.Catapults[target.Siege.StructureID]
	damage := s.sch.Rng.Int31n(maxi32(actor.WeaponMax, 1)) + 1 + int32(actor.DmgMod)
	if cat.ReceiveDamage(damage) {
		s.sch.Kill(target, actor)
		s.sch.Store.MarkForDestruction(target.ID)
	}
	target.HP = cat.HP
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaHPChanged,
		Entity: target.ID,
		Pos:    target.Pos,
		Value:  cat.HP,
	})
}

func (s *InputSystem) handleCast(cmd gateway.Command, actor *world.Entity) {
	applied, err := s.executor.Execute(s.sch.Tick(), s.sch.Rng, actor.ID, cmd.Target, cmd.SkillID)
	if err != nil {
		s.reject(cmd.SessionID, err.Error())
		return
	}
	if applied.Buff != nil {
		s.sch.Emit(world.Delta{
			Kind:    world.DeltaBuffApplied,
			Entity:  applied.Target,
			Pos:     actor.Pos,
			SkillID: applied.SkillID,
		})
		return
	}
	if applied.Healing > 0 {
		if target, err := s.sch.Store.Get(applied.Target); err == nil {
			s.sch.ApplyHeal(target, applied.Healing)
		}
		return
	}
	if applied.Damage > 0 {
		if target, err := s.sch.Store.Get(applied.Target); err == nil {
			s.sch.ApplyDamage(actor, target, applied.Damage)
		}
	}
}

func (s *InputSystem) handleSay(cmd gateway.Command, actor *world.Entity) {
	if len(cmd.Text) == 0 || len(cmd.Text) > 200 {
		return
	}
	s.sch.Emit(world.Delta{
		Kind:   world.DeltaChat,
		Entity: actor.ID,
		Pos:    actor.Pos,
		Reason: cmd.Text,
	})
}

func (s *InputSystem) handleDeclareWar(cmd gateway.Command, actor *world.Entity) {
	war := s.sch.Wars[cmd.CastleID]
	if war == nil {
		s.reject(cmd.SessionID, "no such castle")
		return
	}
	if actor.ClanID == 0 || actor.ClanRank < siege.GuardBuffMinRank {
		s.reject(cmd.SessionID, "clan rank too low")
		return
	}
	if actor.ClanID == war.OwnerClan {
		s.reject(cmd.SessionID, "own castle")
		return
	}
	cfg := s.sch.SiegeConfig
	if err := war.Declare(s.sch.Tick(), actor.ClanID, cfg.DeclareLeadTicks, cfg.WarDurationTicks); err != nil {
		s.reject(cmd.SessionID, "war already declared")
		return
	}
	s.emitWarState(war)
}

func (s *InputSystem) handleMountCatapult(cmd gateway.Command, actor *world.Entity) {
	cat := s.findCatapult(cmd.CastleID, cmd.X, cmd.Y)
	if cat == nil {
		s.reject(cmd.SessionID, "no catapult")
		return
	}
	if actor.Pos.Chebyshev(world.Position{MapID: actor.Pos.MapID, X: cat.X, Y: cat.Y}) > 2 {
		s.reject(cmd.SessionID, "out of range")
		return
	}
	// Clan leaders stand in for royalty; there is no class sheet here.
	isRoyal := actor.ClanRank >= 10
	if err := cat.Mount(actor.ID, isRoyal); err != nil {
		s.reject(cmd.SessionID, "cannot mount")
		return
	}
}

func (s *InputSystem) handleFireCatapult(cmd gateway.Command, actor *world.Entity) {
	war := s.sch.Wars[cmd.CastleID]
	if war == nil {
		s.reject(cmd.SessionID, "no such castle")
		return
	}
	var cat *siege.Catapult
	for _, c := range war.Catapults {
		if c.OperatorID == actor.ID {
			cat = c
			break
		}
	}
	if cat == nil {
		s.reject(cmd.SessionID, "not mounted")
		return
	}
	shot, err := cat.TryFire(s.sch.Tick(), cmd.X, cmd.Y, true)
	if err != nil {
		s.reject(cmd.SessionID, "not ready")
		return
	}
	s.applyShot(actor, shot)
}

// applyShot deals splash damage to players inside the impact radius.
// Catapult fire never harms NPCs or structures.
func (s *InputSystem) applyShot(shooter *world.Entity, shot siege.Shot) {
	impact := world.Position{MapID: shooter.Pos.MapID, X: shot.ImpactX, Y: shot.ImpactY}
	radiusCells := shot.SplashRadius/world.CellSize + 1
	buf := s.sch.Store.Grid().QueryNearby(impact, radiusCells, nil)
	for _, id := range buf {
		e, err := s.sch.Store.Get(id)
		if err != nil || e.Kind != world.KindPlayer || e.Dead {
			continue
		}
		if e.Pos.Chebyshev(impact) > shot.SplashRadius {
			continue
		}
		s.sch.ApplyDamage(shooter, e, shot.Damage)
	}
}

func (s *InputSystem) findCatapult(castleID int32, x, y int32) *siege.Catapult {
	war := s.sch.Wars[castleID]
	if war == nil || war.State != siege.StateActive {
		return nil
	}
	for _, c := range war.Catapults {
		if c.Destroyed {
			continue
		}
		if c.X == x && c.Y == y {
			return c
		}
	}
	return nil
}

func (s *InputSystem) emitWarState(war *siege.War) {
	s.sch.Emit(world.Delta{
		Kind:     world.DeltaWarState,
		Value:    int32(war.State),
		CastleID: war.CastleID,
	})
}

// handleDisconnect tears the session's player down: position snapshot first,
// then deferred destruction so the entity vanishes at this tick's cleanup.
func (s *InputSystem) handleDisconnect(sessionID uint64) {
	sess := s.sync.Get(sessionID)
	if sess == nil {
		return
	}
	if !sess.Entity.IsZero() {
		if e, err := s.sch.Store.Get(sess.Entity); err == nil {
			s.savePosition(e)
			event.Emit(s.sch.Bus, event.PlayerDisconnected{EntityID: e.ID, SessionID: sessionID})
			s.sch.Emit(world.Delta{
				Kind:   world.DeltaEntityDisappeared,
				Entity: e.ID,
				Pos:    e.Pos,
			})
			s.sch.Store.MarkForDestruction(e.ID)
		}
	}
	s.sync.Unregister(sessionID)
	s.log.Info("client disconnected", zap.Uint64("session", sessionID))
}

// savePosition snapshots the entity and writes it off the game loop. The
// snapshot is by-value so the write races with nothing. Entities whose row
// never resolved have nothing to update.
func (s *InputSystem) savePosition(e *world.Entity) {
	if s.charRepo == nil || e.CharID == 0 {
		return
	}
	snap := persist.CharacterRow{
		ID:      e.CharID,
		Name:    e.Name,
		X:       e.Pos.X,
		Y:       e.Pos.Y,
		MapID:   e.Pos.MapID,
		Heading: e.Heading,
		HP:      int16(e.HP),
		MP:      int16(e.MP),
	}
	repo := s.charRepo
	log := s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.SavePosition(ctx, snap.ID, snap.X, snap.Y, snap.MapID, snap.Heading, snap.HP, snap.MP); err != nil {
			log.Error("logout save failed", zap.String("name", snap.Name), zap.Error(err))
		}
	}()
}

func attackerStats(e *world.Entity) combat.AttackerStats {
	return combat.AttackerStats{
		Level:     e.Level,
		STR:       e.STR,
		DEX:       e.DEX,
		HitMod:    e.HitMod,
		DmgMod:    e.DmgMod,
		PctDmg:    e.PctDmg,
		WeaponMax: e.WeaponMax,
		Ranged:    e.Ranged,
	}
}

func defenderStats(e *world.Entity) combat.DefenderStats {
	return combat.DefenderStats{
		Level:           e.Level,
		AC:              e.AC,
		DEX:             e.DEX,
		MR:              e.MR,
		DamageReduction: e.DamageReduction,
	}
}

func maxi32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
