// Package skill turns skill templates into applied game effects: resource
// validation, cooldown bookkeeping, damage via the combat resolver, and
// buff insertion.
package skill

import (
	"fmt"
	"math/rand"

	"github.com/l1jgo/simcore/internal/combat"
	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/world"
)

// Applied summarizes a successful cast for delta emission.
type Applied struct {
	SkillID  int32
	Target   ecs.EntityID
	Damage   int32 // 0 for buffs, heals, misses, and resists
	Healing  int32 // restored HP, healing skills only
	Resisted bool  // magic resistance blocked the effect; MP stays spent
	MPCost   int32
	Buff     *world.ActiveBuff // nil for damage skills
}

// Executor validates and applies skill casts. Single-goroutine access only
// (game loop).
type Executor struct {
	skills      *data.SkillTable
	store       *world.Store
	buffs       *world.BuffHeap
	ticksPerSec int64
}

func NewExecutor(skills *data.SkillTable, store *world.Store, buffs *world.BuffHeap, ticksPerSec int64) *Executor {
	return &Executor{skills: skills, store: store, buffs: buffs, ticksPerSec: ticksPerSec}
}

// Execute runs the full cast pipeline: validate MP (INT-reduced cost),
// cooldown, and range, then deduct MP, set the cooldown, and apply the
// effect. The cooldown is set before returning, so a second submission of
// the same cast within one tick is rejected with ErrOnCooldown; skills with
// no reuse delay charge MP independently per cast.
func (x *Executor) Execute(tick int64, rng *rand.Rand, casterID, targetID ecs.EntityID, skillID int32) (Applied, error) {
	tmpl := x.skills.Get(skillID)
	if tmpl == nil {
		return Applied{}, fmt.Errorf("skill %d: %w", skillID, world.ErrNotFound)
	}

	caster, err := x.store.Get(casterID)
	if err != nil {
		return Applied{}, fmt.Errorf("caster: %w", err)
	}
	if caster.Dead {
		return Applied{}, fmt.Errorf("caster dead: %w", world.ErrInvalidState)
	}

	if caster.OnCooldown(skillID, tick) {
		return Applied{}, fmt.Errorf("skill %d: %w", skillID, world.ErrOnCooldown)
	}

	mpCost := MpCost(tmpl.MpConsume, caster.INT)
	if caster.MP < mpCost {
		return Applied{}, fmt.Errorf("need %d mp: %w", mpCost, world.ErrInsufficientResource)
	}

	target := caster
	if targetID != casterID && !targetID.IsZero() {
		target, err = x.store.Get(targetID)
		if err != nil {
			return Applied{}, fmt.Errorf("target: %w", err)
		}
		if target.Dead {
			return Applied{}, fmt.Errorf("target dead: %w", world.ErrNotFound)
		}
	}

	if tmpl.Range > 0 && caster.Pos.Chebyshev(target.Pos) > tmpl.Range {
		return Applied{}, fmt.Errorf("skill %d: %w", skillID, world.ErrOutOfRange)
	}

	// Validation passed: commit resources and cooldown before applying the
	// effect, so re-submission in the same tick sees the cooldown.
	caster.MP -= mpCost
	if tmpl.ReuseDelayTicks > 0 {
		caster.SetCooldown(skillID, tick+tmpl.ReuseDelayTicks)
	}

	applied := Applied{SkillID: skillID, Target: target.ID, MPCost: mpCost}

	if tmpl.BuffDuration > 0 {
		buff := &world.ActiveBuff{
			SkillID:     skillID,
			ExpiryTick:  tick + int64(tmpl.BuffDuration)*x.ticksPerSec,
			DeltaAC:     tmpl.DeltaAC,
			DeltaHitMod: tmpl.DeltaHit,
			DeltaDmgMod: tmpl.DeltaDmg,
			DeltaMR:     tmpl.DeltaMR,
			DeltaPctDmg: tmpl.DeltaPctDmg,
		}
		world.ApplyBuff(target, buff)
		x.buffs.Track(target.ID, buff)
		applied.Buff = buff
		return applied, nil
	}

	// Negative damage values are healing skills.
	if tmpl.DamageValue < 0 {
		applied.Healing = HealPower(rng, tmpl, caster.INT)
		return applied, nil
	}

	// Magic resistance rolls before the attack resolves. Targets without
	// positive MR never resist and cost no roll.
	if target.MR > 0 {
		chance := combat.SpellHitChance(caster.Level, target.Level, target.MR)
		if int32(rng.Intn(100))+1 > chance {
			applied.Resisted = true
			return applied, nil
		}
	}

	power := SkillPower(rng, tmpl, caster.INT)
	res := combat.Resolve(rng,
		combat.AttackerStats{
			Level:     caster.Level,
			STR:       caster.STR,
			DEX:       caster.DEX,
			HitMod:    caster.HitMod,
			DmgMod:    caster.DmgMod,
			PctDmg:    caster.PctDmg,
			WeaponMax: caster.WeaponMax,
			Ranged:    caster.Ranged,
		},
		combat.DefenderStats{
			Level:           target.Level,
			AC:              target.AC,
			DEX:             target.DEX,
			MR:              target.MR,
			DamageReduction: target.DamageReduction,
		},
		power,
	)
	if res.Hit {
		applied.Damage = res.Damage
	}
	return applied, nil
}

// MpCost applies the intelligence-based cost reduction:
// INT ≥ 18 saves 2 MP, INT ≥ 13 saves 1, never below 1.
func MpCost(base int32, intel int16) int32 {
	reduction := int32(0)
	switch {
	case intel >= 18:
		reduction = 2
	case intel >= 13:
		reduction = 1
	}
	cost := base - reduction
	if cost < 1 {
		cost = 1
	}
	return cost
}

// HealPower rolls a healing skill's restored HP:
// |value| + dice rolls + (INT−12)/2, floor 1.
func HealPower(rng *rand.Rand, tmpl *data.SkillInfo, intel int16) int32 {
	heal := -tmpl.DamageValue
	for i := int32(0); i < tmpl.DamageDiceCount; i++ {
		if tmpl.DamageDice > 0 {
			heal += int32(rng.Intn(int(tmpl.DamageDice))) + 1
		}
	}
	if bonus := int32(intel-12) / 2; bonus > 0 {
		heal += bonus
	}
	if heal < 1 {
		heal = 1
	}
	return heal
}

// SkillPower rolls the skill's damage contribution:
// value + dice rolls + (INT−12)/2, floor 0.
func SkillPower(rng *rand.Rand, tmpl *data.SkillInfo, intel int16) int32 {
	power := tmpl.DamageValue
	for i := int32(0); i < tmpl.DamageDiceCount; i++ {
		if tmpl.DamageDice > 0 {
			power += int32(rng.Intn(int(tmpl.DamageDice))) + 1
		}
	}
	intBonus := int32(intel-12) / 2
	if intBonus > 0 {
		power += intBonus
	}
	if power < 0 {
		power = 0
	}
	return power
}
