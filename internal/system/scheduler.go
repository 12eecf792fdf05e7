// Package system contains the per-tick simulation systems and the scheduler
// that drives them. Everything here runs on the single game-loop goroutine;
// crossing into other goroutines happens only through channels (commands in,
// deltas out) and fire-and-forget persistence snapshots.
package system

import (
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/config"
	"github.com/l1jgo/simcore/internal/core/event"
	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/world"
)

// Scheduler owns the simulation clock and the state every system shares.
// One RunTick call is one simulation step; systems execute in phase order.
type Scheduler struct {
	Store *world.Store
	Buffs *world.BuffHeap
	Bus   *event.Bus
	Maps  *data.MapTable
	Wars  map[int32]*siege.War
	Rng   *rand.Rand

	SiegeConfig config.SiegeConfig
	WakeRadius  int32 // tiles; NPCs beyond this of every player sleep

	runner   *coresys.Runner
	tick     int64
	deltas   []world.Delta
	warOrder []int32

	log *zap.Logger
}

func NewScheduler(store *world.Store, maps *data.MapTable, seed int64, log *zap.Logger) *Scheduler {
	return &Scheduler{
		SiegeConfig: config.Default().Siege,
		WakeRadius:  world.MaxWakeRadius,
		Store:       store,
		Buffs:       world.NewBuffHeap(),
		Bus:         event.NewBus(),
		Maps:        maps,
		Wars:        make(map[int32]*siege.War),
		Rng:         rand.New(rand.NewSource(seed)),
		runner:      coresys.NewRunner(),
		deltas:      make([]world.Delta, 0, 1024),
		log:         log,
	}
}

// Register adds a system to the phase runner.
func (sch *Scheduler) Register(s coresys.System) {
	sch.runner.Register(s)
}

// AddWar registers a castle's war record. Castle IDs are kept in a sorted
// order so per-tick war processing, and the deltas it emits, are
// deterministic regardless of registration order.
func (sch *Scheduler) AddWar(castleID int32, war *siege.War) {
	if _, ok := sch.Wars[castleID]; !ok {
		i := sort.Search(len(sch.warOrder), func(i int) bool { return sch.warOrder[i] >= castleID })
		sch.warOrder = append(sch.warOrder, 0)
		copy(sch.warOrder[i+1:], sch.warOrder[i:])
		sch.warOrder[i] = castleID
	}
	sch.Wars[castleID] = war
}

// WarOrder returns the registered castle IDs in ascending order. The slice
// is owned by the scheduler; callers must not mutate it.
func (sch *Scheduler) WarOrder() []int32 {
	return sch.warOrder
}

// Tick returns the current tick number. Tick 0 is before the first RunTick.
func (sch *Scheduler) Tick() int64 {
	return sch.tick
}

// Emit appends a delta to this tick's output batch.
func (sch *Scheduler) Emit(d world.Delta) {
	sch.deltas = append(sch.deltas, d)
}

// TakeDeltas hands the current batch to the caller and resets it. The
// returned slice is valid until the next tick.
func (sch *Scheduler) TakeDeltas() []world.Delta {
	out := sch.deltas
	sch.deltas = sch.deltas[len(sch.deltas):]
	if cap(sch.deltas) == 0 {
		sch.deltas = make([]world.Delta, 0, 1024)
	}
	return out
}

// RunTick advances the simulation one step: events emitted during the
// previous tick are dispatched first, then every system runs in phase
// order.
func (sch *Scheduler) RunTick(dt time.Duration) {
	sch.tick++
	sch.Bus.SwapBuffers()
	sch.Bus.DispatchAll()
	sch.runner.Tick(dt)
}

// ApplyDamage clamps HP, emits the HP delta, and handles death. Every
// damage path in the simulation funnels through here so the kill event and
// disappearance delta fire exactly once per entity.
func (sch *Scheduler) ApplyDamage(attacker, target *world.Entity, damage int32) {
	if target.Dead || damage <= 0 {
		return
	}
	target.HP -= damage
	if target.HP < 0 {
		target.HP = 0
	}
	sch.Emit(world.Delta{
		Kind:   world.DeltaHPChanged,
		Entity: target.ID,
		Pos:    target.Pos,
		Value:  target.HP,
	})
	if target.HP == 0 {
		sch.Kill(target, attacker)
	}
}

// ApplyHeal restores HP up to the target's maximum and emits the HP delta.
// Dead entities cannot be healed back.
func (sch *Scheduler) ApplyHeal(target *world.Entity, amount int32) {
	if target.Dead || amount <= 0 || target.HP >= target.MaxHP {
		return
	}
	target.HP += amount
	if target.HP > target.MaxHP {
		target.HP = target.MaxHP
	}
	sch.Emit(world.Delta{
		Kind:   world.DeltaHPChanged,
		Entity: target.ID,
		Pos:    target.Pos,
		Value:  target.HP,
	})
}

// Kill marks an entity dead and schedules the fallout. The entity stays in
// the store until the cleanup phase so same-tick systems still see it.
func (sch *Scheduler) Kill(target, killer *world.Entity) {
	if target.Dead {
		return
	}
	target.Dead = true
	var killerID = target.ID
	if killer != nil {
		killerID = killer.ID
	}
	event.Emit(sch.Bus, event.EntityKilled{EntityID: target.ID, KillerID: killerID})
	sch.Emit(world.Delta{
		Kind:   world.DeltaEntityDisappeared,
		Entity: target.ID,
		Pos:    target.Pos,
	})
	if target.Kind == world.KindNPC {
		sch.Store.MarkForDestruction(target.ID)
	}
	sch.log.Debug("entity killed",
		zap.Uint64("entity", uint64(target.ID)),
		zap.String("kind", target.Kind.String()),
		zap.Int64("tick", sch.tick),
	)
}

// Deltas returns the current batch without taking ownership. Test helper.
func (sch *Scheduler) Deltas() []world.Delta {
	return sch.deltas
}
