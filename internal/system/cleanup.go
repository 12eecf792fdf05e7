package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/simcore/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end
// and audits store/grid consistency at a low cadence. Phase 5 (Cleanup).
type CleanupSystem struct {
	sch *Scheduler
	log *zap.Logger
}

func NewCleanupSystem(sch *Scheduler, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{sch: sch, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.sch.Store.FlushDestroyQueue()

	// Full consistency sweep every ~5 minutes at the default tick rate. A
	// desynced store/grid means corrupted simulation state; crashing here
	// beats persisting garbage.
	if s.sch.Tick()%1500 == 0 {
		if err := s.sch.Store.CheckConsistency(); err != nil {
			s.log.Panic("store consistency check failed", zap.Error(err))
		}
	}
}
