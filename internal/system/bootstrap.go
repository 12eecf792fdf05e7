package system

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/world"
)

// SpawnNpcs populates the world from a spawn list. NPCs start asleep; the
// wake sweep brings them up when a player approaches.
func SpawnNpcs(sch *Scheduler, npcs *data.NpcTable, spawns []data.SpawnEntry, log *zap.Logger) (int, error) {
	total := 0
	for _, sp := range spawns {
		tmpl := npcs.Get(sp.NpcID)
		if tmpl == nil {
			return total, fmt.Errorf("spawn references unknown npc %d: %w", sp.NpcID, world.ErrNotFound)
		}
		for i := 0; i < sp.Count; i++ {
			x, y := sp.X, sp.Y
			if sp.RandomX > 0 {
				x += sch.Rng.Int31n(sp.RandomX*2+1) - sp.RandomX
			}
			if sp.RandomY > 0 {
				y += sch.Rng.Int31n(sp.RandomY*2+1) - sp.RandomY
			}
			if _, err := spawnOneNpc(sch, tmpl, world.Position{MapID: sp.MapID, X: x, Y: y}); err != nil {
				log.Warn("npc spawn skipped",
					zap.Int32("npc", sp.NpcID),
					zap.Int32("x", x),
					zap.Int32("y", y),
					zap.Error(err),
				)
				continue
			}
			total++
		}
	}
	log.Info("npc spawn complete", zap.Int("count", total))
	return total, nil
}

func spawnOneNpc(sch *Scheduler, tmpl *data.NpcInfo, pos world.Position) (*world.Entity, error) {
	e, err := sch.Store.Create(world.KindNPC, tmpl.Name, pos)
	if err != nil {
		return nil, err
	}
	e.Level = tmpl.Level
	e.MaxHP, e.HP = tmpl.HP, tmpl.HP
	e.MaxMP, e.MP = tmpl.MP, tmpl.MP
	e.AC = tmpl.AC
	e.STR, e.DEX = tmpl.STR, tmpl.DEX
	e.MR = tmpl.MR
	e.WeaponMax = tmpl.WeaponMax
	e.Ranged = tmpl.Ranged
	e.Sleeping = true
	e.AI = &world.AIState{
		TemplateID: tmpl.NpcID,
		Profile:    tmpl.Profile,
		WakeRadius: tmpl.WakeRadius,
		HomeX:      pos.X,
		HomeY:      pos.Y,
	}
	if e.AI.WakeRadius <= 0 || e.AI.WakeRadius > sch.WakeRadius {
		e.AI.WakeRadius = sch.WakeRadius
	}
	return e, nil
}

// InitCastles builds a war state machine per castle and materializes its
// structures, catapults, and garrison guards as world entities.
func InitCastles(sch *Scheduler, castles *data.CastleTable, owners map[int32]int32, log *zap.Logger) error {
	var initErr error
	castles.Each(func(info *data.CastleInfo) {
		if initErr != nil {
			return
		}
		war := siege.NewWar(info)
		if clan, ok := owners[info.CastleID]; ok {
			war.OwnerClan = clan
		}
		sch.AddWar(info.CastleID, war)

		for i, st := range war.Structures {
			name := "gate"
			if st.Kind == siege.StructureTower {
				name = "tower"
			}
			e, err := sch.Store.Create(world.KindSiegeStructure, name,
				world.Position{MapID: info.MapID, X: st.X, Y: st.Y})
			if err != nil {
				initErr = fmt.Errorf("castle %d structure %d: %w", info.CastleID, i, err)
				return
			}
			e.MaxHP, e.HP = st.MaxHP, st.HP
			e.Siege = &world.SiegeRef{CastleID: info.CastleID, StructureID: st.Index}
			st.EntityID = e.ID
		}

		for _, cat := range war.Catapults {
			e, err := sch.Store.Create(world.KindCatapult, "catapult",
				world.Position{MapID: info.MapID, X: cat.X, Y: cat.Y})
			if err != nil {
				initErr = fmt.Errorf("castle %d catapult %d: %w", info.CastleID, cat.Index, err)
				return
			}
			e.MaxHP, e.HP = cat.MaxHP, cat.HP
			e.Siege = &world.SiegeRef{CastleID: info.CastleID, StructureID: cat.Index}
			cat.EntityID = e.ID
		}

		for _, g := range info.Guards {
			e, err := sch.Store.Create(world.KindNPC, g.Name,
				world.Position{MapID: info.MapID, X: g.X, Y: g.Y})
			if err != nil {
				log.Warn("guard spawn skipped", zap.Int32("castle", info.CastleID), zap.Error(err))
				continue
			}
			e.Level = g.Level
			e.MaxHP, e.HP = g.HP, g.HP
			e.WeaponMax = g.WeaponMax
			e.Ranged = g.Ranged
			e.ClanID = war.OwnerClan
			e.Sleeping = true
			e.AI = &world.AIState{
				Profile:    "guard",
				WakeRadius: 10,
				HomeX:      g.X,
				HomeY:      g.Y,
			}
		}

		log.Info("castle initialized",
			zap.Int32("castle", info.CastleID),
			zap.String("name", info.Name),
			zap.Int("structures", len(war.Structures)),
			zap.Int("catapults", len(war.Catapults)),
		)
	})
	return initErr
}
