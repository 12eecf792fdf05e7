package world

import (
	"testing"

	"github.com/l1jgo/simcore/internal/core/ecs"
)

func TestApplyAndRemoveBuff(t *testing.T) {
	e := &Entity{AC: 10, DmgMod: 0}

	b := &ActiveBuff{SkillID: 26, ExpiryTick: 100, DeltaAC: -2, DeltaDmgMod: 3}
	ApplyBuff(e, b)
	if e.AC != 8 || e.DmgMod != 3 {
		t.Fatalf("deltas not applied: ac=%d dmg=%d", e.AC, e.DmgMod)
	}

	if !RemoveBuff(e, 26) {
		t.Fatal("remove returned false for present buff")
	}
	if e.AC != 10 || e.DmgMod != 0 {
		t.Fatalf("deltas not reverted: ac=%d dmg=%d", e.AC, e.DmgMod)
	}

	// Second removal must not revert again.
	if RemoveBuff(e, 26) {
		t.Fatal("remove returned true for absent buff")
	}
	if e.AC != 10 {
		t.Fatalf("deltas reverted twice: ac=%d", e.AC)
	}
}

// Re-casting the same buff replaces it; deltas never stack.
func TestApplyBuffRecastReplaces(t *testing.T) {
	e := &Entity{AC: 10}

	ApplyBuff(e, &ActiveBuff{SkillID: 26, ExpiryTick: 100, DeltaAC: -2})
	ApplyBuff(e, &ActiveBuff{SkillID: 26, ExpiryTick: 200, DeltaAC: -2})
	if e.AC != 8 {
		t.Fatalf("recast stacked deltas: ac=%d, want 8", e.AC)
	}
	RemoveBuff(e, 26)
	if e.AC != 10 {
		t.Fatalf("revert after recast: ac=%d, want 10", e.AC)
	}
}

func TestBuffHeapExpiryOrder(t *testing.T) {
	h := NewBuffHeap()
	e := &Entity{ID: ecs.NewEntityID(0, 0)}
	resolve := func(ecs.EntityID) *Entity { return e }

	first := &ActiveBuff{SkillID: 1, ExpiryTick: 10}
	second := &ActiveBuff{SkillID: 2, ExpiryTick: 20}
	third := &ActiveBuff{SkillID: 3, ExpiryTick: 30}
	for _, b := range []*ActiveBuff{third, first, second} {
		ApplyBuff(e, b)
		h.Track(e.ID, b)
	}

	var expired []int32
	expire := func(_ *Entity, b *ActiveBuff) {
		RemoveBuff(e, b.SkillID)
		expired = append(expired, b.SkillID)
	}

	h.ExpireDue(20, resolve, expire)
	if len(expired) != 2 || expired[0] != 1 || expired[1] != 2 {
		t.Fatalf("expired %v at tick 20, want [1 2]", expired)
	}
	if !e.HasBuff(3) {
		t.Fatal("buff 3 expired early")
	}

	h.ExpireDue(30, resolve, expire)
	if len(expired) != 3 || expired[2] != 3 {
		t.Fatalf("expired %v at tick 30, want [1 2 3]", expired)
	}
}

// A buff replaced by a re-cast leaves a stale heap entry behind; popping it
// must not expire the replacement.
func TestBuffHeapStaleEntrySkipped(t *testing.T) {
	h := NewBuffHeap()
	e := &Entity{ID: ecs.NewEntityID(0, 0), AC: 10}
	resolve := func(ecs.EntityID) *Entity { return e }

	old := &ActiveBuff{SkillID: 26, ExpiryTick: 10, DeltaAC: -2}
	ApplyBuff(e, old)
	h.Track(e.ID, old)

	renewed := &ActiveBuff{SkillID: 26, ExpiryTick: 50, DeltaAC: -2}
	ApplyBuff(e, renewed)
	h.Track(e.ID, renewed)

	calls := 0
	expire := func(_ *Entity, b *ActiveBuff) {
		calls++
		RemoveBuff(e, b.SkillID)
	}

	// The old entry is due, but its buff was replaced.
	h.ExpireDue(10, resolve, expire)
	if calls != 0 {
		t.Fatalf("stale entry expired the renewed buff (%d calls)", calls)
	}
	if e.AC != 8 {
		t.Fatalf("renewed buff lost its delta: ac=%d", e.AC)
	}

	h.ExpireDue(50, resolve, expire)
	if calls != 1 {
		t.Fatalf("renewed buff expired %d times, want 1", calls)
	}
	if e.AC != 10 {
		t.Fatalf("final ac=%d, want 10", e.AC)
	}
}
