package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/persist"
	"github.com/l1jgo/simcore/internal/world"
)

// PersistenceSystem periodically snapshots online players' position and
// vitals and writes them off the game loop. Phase 4 (Persist).
type PersistenceSystem struct {
	sch      *Scheduler
	charRepo *persist.CharacterRepo
	interval int // ticks between auto-saves
	counter  int
	log      *zap.Logger
}

func NewPersistenceSystem(sch *Scheduler, charRepo *persist.CharacterRepo, intervalTicks int, log *zap.Logger) *PersistenceSystem {
	return &PersistenceSystem{
		sch:      sch,
		charRepo: charRepo,
		interval: intervalTicks,
		log:      log,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.counter++
	if s.counter < s.interval {
		return
	}
	s.counter = 0
	s.SaveAllPlayers()
}

// SaveAllPlayers snapshots every live player and persists the snapshots in
// one background goroutine. Also called on graceful shutdown.
func (s *PersistenceSystem) SaveAllPlayers() {
	if s.charRepo == nil {
		return
	}
	var snaps []persist.CharacterRow
	s.sch.Store.Each(func(e *world.Entity) {
		// Players whose row never resolved have nothing to update.
		if e.Kind != world.KindPlayer || e.CharID == 0 {
			return
		}
		snaps = append(snaps, persist.CharacterRow{
			ID:      e.CharID,
			Name:    e.Name,
			X:       e.Pos.X,
			Y:       e.Pos.Y,
			MapID:   e.Pos.MapID,
			Heading: e.Heading,
			HP:      int16(e.HP),
			MP:      int16(e.MP),
		})
	})
	if len(snaps) == 0 {
		return
	}

	repo := s.charRepo
	log := s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		saved := 0
		for i := range snaps {
			c := &snaps[i]
			if err := repo.SavePosition(ctx, c.ID, c.X, c.Y, c.MapID, c.Heading, c.HP, c.MP); err != nil {
				log.Error("auto-save failed", zap.String("name", c.Name), zap.Error(err))
				continue
			}
			saved++
		}
		if saved > 0 {
			log.Info("auto-save complete", zap.Int("players", saved))
		}
	}()
}
