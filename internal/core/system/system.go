package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain command queue
	PhaseUpdate                  // 1: AI, combat, skills, siege advance
	PhasePostUpdate              // 2: buff expiry
	PhaseOutput                  // 3: hand delta batch to synchronizer
	PhasePersist                 // 4: apply completed async saves
	PhaseCleanup                 // 5: destroy queued entities
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
