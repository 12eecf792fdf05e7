package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/core/event"
	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/persist"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/world"
)

// SiegeSystem advances every castle's war state machine once per tick and
// handles transition fallout: siege buffs for the defending garrison on
// activation, buff removal and audit logging on resolution. Phase 1
// (Update).
type SiegeSystem struct {
	sch       *Scheduler
	siegeRepo *persist.SiegeRepo // nil when running without a database
	log       *zap.Logger
}

func NewSiegeSystem(sch *Scheduler, siegeRepo *persist.SiegeRepo, log *zap.Logger) *SiegeSystem {
	s := &SiegeSystem{sch: sch, siegeRepo: siegeRepo, log: log}
	event.Subscribe(sch.Bus, func(ev event.StructureDestroyed) {
		s.log.Info("siege structure destroyed",
			zap.Int32("castle", ev.CastleID),
			zap.Uint64("structure", uint64(ev.StructureID)),
		)
	})
	event.Subscribe(sch.Bus, func(ev event.CrownSpawned) {
		s.log.Info("crown spawned",
			zap.Int32("castle", ev.CastleID),
			zap.Uint64("crown", uint64(ev.CrownID)),
		)
	})
	return s
}

func (s *SiegeSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *SiegeSystem) Update(_ time.Duration) {
	tick := s.sch.Tick()
	// Castle order is fixed so multi-castle ticks emit deltas
	// deterministically.
	for _, castleID := range s.sch.WarOrder() {
		war := s.sch.Wars[castleID]
		transitions := war.Advance(tick, s.sch.SiegeConfig.SeasonTicks)
		for _, tr := range transitions {
			s.onTransition(war, tr)
		}
		// Crown capture resolves inside the tick; the outcome shows up
		// here as a Resolved war that was Active when the tick started.
		if war.State == siege.StateResolved && war.ResolvedTick == tick && len(transitions) == 0 {
			s.onTransition(war, siege.Transition{From: siege.StateActive, To: siege.StateResolved})
		}
	}
}

func (s *SiegeSystem) onTransition(war *siege.War, tr siege.Transition) {
	event.Emit(s.sch.Bus, event.WarStateChanged{
		CastleID: war.CastleID,
		OldState: int32(tr.From),
		NewState: int32(tr.To),
	})
	s.sch.Emit(world.Delta{
		Kind:     world.DeltaWarState,
		Value:    int32(tr.To),
		CastleID: war.CastleID,
	})
	s.log.Info("siege war transition",
		zap.Int32("castle", war.CastleID),
		zap.String("from", tr.From.String()),
		zap.String("to", tr.To.String()),
	)

	switch tr.To {
	case siege.StateActive:
		s.applyGarrisonBuffs(war)
	case siege.StateResolved:
		s.removeGarrisonBuffs(war)
		s.logWar(war)
	}
}

// applyGarrisonBuffs grants the defense buff to every owning-clan member of
// sufficient rank inside the castle area.
func (s *SiegeSystem) applyGarrisonBuffs(war *siege.War) {
	if war.OwnerClan == 0 {
		return
	}
	expiry := war.DeadlineTick
	s.sch.Store.Each(func(e *world.Entity) {
		if e.Kind != world.KindPlayer || e.ClanID != war.OwnerClan {
			return
		}
		if e.ClanRank < siege.GuardBuffMinRank {
			return
		}
		if !war.InArea(e.Pos.MapID, e.Pos.X, e.Pos.Y) {
			return
		}
		buff := &world.ActiveBuff{
			SkillID:     siege.GuardBuffSkillID,
			ExpiryTick:  expiry,
			DeltaDmgMod: siege.GuardBuffAtkBonus,
		}
		world.ApplyBuff(e, buff)
		s.sch.Buffs.Track(e.ID, buff)
		s.sch.Emit(world.Delta{
			Kind:    world.DeltaBuffApplied,
			Entity:  e.ID,
			Pos:     e.Pos,
			SkillID: siege.GuardBuffSkillID,
		})
	})
}

// removeGarrisonBuffs strips the defense buff immediately on resolution
// rather than waiting for heap expiry.
func (s *SiegeSystem) removeGarrisonBuffs(war *siege.War) {
	s.sch.Store.Each(func(e *world.Entity) {
		if !e.HasBuff(siege.GuardBuffSkillID) {
			return
		}
		if world.RemoveBuff(e, siege.GuardBuffSkillID) {
			s.sch.Emit(world.Delta{
				Kind:    world.DeltaBuffExpired,
				Entity:  e.ID,
				Pos:     e.Pos,
				SkillID: siege.GuardBuffSkillID,
			})
		}
	})
}

// logWar writes the resolved war to the audit log off the game loop.
func (s *SiegeSystem) logWar(war *siege.War) {
	if s.siegeRepo == nil {
		return
	}
	outcome := "defended"
	if war.Outcome == siege.OutcomeCaptured {
		outcome = "captured"
	}
	rec := persist.WarRecord{
		CastleID:      war.CastleID,
		DeclaringClan: war.DeclaringClan,
		OwnerClan:     war.OwnerClan,
		Outcome:       outcome,
		DeclaredTick:  war.DeclareTick,
		ResolvedTick:  war.ResolvedTick,
	}
	repo := s.siegeRepo
	log := s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.LogWar(ctx, rec); err != nil {
			log.Error("war audit log failed", zap.Int32("castle", rec.CastleID), zap.Error(err))
		}
	}()
}
