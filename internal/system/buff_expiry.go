package system

import (
	"time"

	"github.com/l1jgo/simcore/internal/core/ecs"
	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/world"
)

// BuffExpirySystem pops due buffs off the expiry heap, reverts their stat
// deltas, and emits the expiry delta. Phase 2 (PostUpdate), after combat so
// a buff granted this tick is never expired in the same tick.
type BuffExpirySystem struct {
	sch *Scheduler
}

func NewBuffExpirySystem(sch *Scheduler) *BuffExpirySystem {
	return &BuffExpirySystem{sch: sch}
}

func (s *BuffExpirySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *BuffExpirySystem) Update(_ time.Duration) {
	resolve := func(id ecs.EntityID) *world.Entity {
		e, err := s.sch.Store.Get(id)
		if err != nil {
			return nil
		}
		return e
	}
	s.sch.Buffs.ExpireDue(s.sch.Tick(), resolve, func(e *world.Entity, b *world.ActiveBuff) {
		if !world.RemoveBuff(e, b.SkillID) {
			return
		}
		s.sch.Emit(world.Delta{
			Kind:    world.DeltaBuffExpired,
			Entity:  e.ID,
			Pos:     e.Pos,
			SkillID: b.SkillID,
		})
	})
}
