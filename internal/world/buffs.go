package world

import (
	"container/heap"

	"github.com/l1jgo/simcore/internal/core/ecs"
)

// ActiveBuff tracks a single active buff/debuff on an entity: the stat
// deltas applied when it started, reversed exactly once on removal.
type ActiveBuff struct {
	SkillID    int32
	ExpiryTick int64

	DeltaAC     int16
	DeltaHitMod int16
	DeltaDmgMod int16
	DeltaMR     int16
	DeltaPctDmg int16

	seq uint64 // matches the heap entry; stale entries are skipped on pop
}

// ApplyBuff attaches a buff to the entity and applies its stat deltas.
// A replaced buff with the same skill ID is reverted first so deltas never
// stack from re-casts.
func ApplyBuff(e *Entity, b *ActiveBuff) {
	if e.Buffs == nil {
		e.Buffs = make(map[int32]*ActiveBuff, 4)
	}
	if old, ok := e.Buffs[b.SkillID]; ok {
		revertDeltas(e, old)
	}
	e.Buffs[b.SkillID] = b
	e.AC += b.DeltaAC
	e.HitMod += b.DeltaHitMod
	e.DmgMod += b.DeltaDmgMod
	e.MR += b.DeltaMR
	e.PctDmg += b.DeltaPctDmg
}

// RemoveBuff detaches the buff and reverts its deltas. Returns false if the
// buff was already gone (deltas are never reverted twice).
func RemoveBuff(e *Entity, skillID int32) bool {
	if e.Buffs == nil {
		return false
	}
	b, ok := e.Buffs[skillID]
	if !ok {
		return false
	}
	delete(e.Buffs, skillID)
	revertDeltas(e, b)
	return true
}

func revertDeltas(e *Entity, b *ActiveBuff) {
	e.AC -= b.DeltaAC
	e.HitMod -= b.DeltaHitMod
	e.DmgMod -= b.DeltaDmgMod
	e.MR -= b.DeltaMR
	e.PctDmg -= b.DeltaPctDmg
}

type buffEntry struct {
	expiry  int64
	seq     uint64
	entity  ecs.EntityID
	skillID int32
}

type buffQueue []buffEntry

func (q buffQueue) Len() int { return len(q) }
func (q buffQueue) Less(i, j int) bool {
	if q[i].expiry != q[j].expiry {
		return q[i].expiry < q[j].expiry
	}
	return q[i].seq < q[j].seq // insertion order breaks ties, deterministic
}
func (q buffQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *buffQueue) Push(x any) { *q = append(*q, x.(buffEntry)) }
func (q *buffQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// BuffHeap orders all active buffs by expiry tick so the per-tick sweep is
// O(log n) per expired buff instead of a full scan. Entries for replaced
// buffs go stale and are discarded when popped.
type BuffHeap struct {
	q   buffQueue
	seq uint64
}

func NewBuffHeap() *BuffHeap {
	return &BuffHeap{q: make(buffQueue, 0, 256)}
}

// Track registers a buff for expiry sweeping. Must be called after ApplyBuff.
func (h *BuffHeap) Track(id ecs.EntityID, b *ActiveBuff) {
	h.seq++
	b.seq = h.seq
	heap.Push(&h.q, buffEntry{expiry: b.ExpiryTick, seq: h.seq, entity: id, skillID: b.SkillID})
}

// Len returns the number of tracked entries, stale included.
func (h *BuffHeap) Len() int { return h.q.Len() }

// ExpireDue pops every entry whose expiry ≤ tick and calls fn for each buff
// that is still current on its entity. Stale entries (replaced or already
// removed buffs) are dropped silently.
func (h *BuffHeap) ExpireDue(tick int64, resolve func(ecs.EntityID) *Entity, fn func(*Entity, *ActiveBuff)) {
	for h.q.Len() > 0 && h.q[0].expiry <= tick {
		entry := heap.Pop(&h.q).(buffEntry)
		e := resolve(entry.entity)
		if e == nil || e.Buffs == nil {
			continue
		}
		b, ok := e.Buffs[entry.skillID]
		if !ok || b.seq != entry.seq {
			continue // replaced or cancelled since being queued
		}
		fn(e, b)
	}
}
