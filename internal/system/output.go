package system

import (
	"time"

	coresys "github.com/l1jgo/simcore/internal/core/system"
	"github.com/l1jgo/simcore/internal/gateway"
)

// OutputSystem hands the tick's delta batch to the synchronizer for
// per-session fan-out and flushes every session once. Phase 3 (Output).
type OutputSystem struct {
	sch  *Scheduler
	sync *gateway.Synchronizer
}

func NewOutputSystem(sch *Scheduler, sync *gateway.Synchronizer) *OutputSystem {
	return &OutputSystem{sch: sch, sync: sync}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.sync.Distribute(s.sch.TakeDeltas())
}
