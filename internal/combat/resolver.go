// Package combat holds the pure attack resolution formulas. Resolve has no
// state and no side effects; callers apply the returned damage themselves.
package combat

import "math/rand"

// AttackerStats is everything the resolver reads from the attacking side.
type AttackerStats struct {
	Level     int16
	STR       int16
	DEX       int16
	HitMod    int16 // flat hit bonus (weapon + buffs)
	DmgMod    int16 // flat damage bonus (weapon + buffs)
	PctDmg    int16 // summed percentage damage modifier from buffs
	WeaponMax int32 // max roll of base weapon/skill power (0 = unarmed d4)
	Ranged    bool
}

// DefenderStats is everything the resolver reads from the defending side.
type DefenderStats struct {
	Level           int16
	AC              int16 // lower = better
	DEX             int16
	MR              int16
	DamageReduction int16
	PctDmg          int16 // defender-side percentage modifier (debuffs)
}

// Result of a single attack resolution.
type Result struct {
	Hit      bool
	Damage   int32
	Critical bool
}

// critChance is the independent critical roll: 1-in-20.
const critChance = 20

// Spell penetration bounds: resistance never blocks more than 90% or less
// than 5% of casts.
const (
	spellHitFloor = 10
	spellHitCeil  = 95
)

// SpellHitChance is the percent chance a damaging spell penetrates the
// defender's magic resistance: 90 − MR + 2 per level the caster has over
// the defender, clamped to [10, 95]. Only meaningful for positive MR;
// callers skip the roll entirely for defenders without resistance.
func SpellHitChance(casterLevel, defenderLevel, mr int16) int32 {
	chance := 90 - int32(mr) + (int32(casterLevel)-int32(defenderLevel))*2
	if chance < spellHitFloor {
		chance = spellHitFloor
	}
	if chance > spellHitCeil {
		chance = spellHitCeil
	}
	return chance
}

// Resolve computes one attack. skillPower adds to the base damage roll for
// skill-driven attacks (0 for plain melee).
//
// Hit roll: d20 + HitMod + stat bonus + level/2, against the defender's
// evasion 10 − AC + (DEX−10)/3.
//
// Damage order is fixed: base roll plus flat bonuses first, then percentage
// modifiers (attacker's increase, defender's debuff), damage reduction last,
// with a floor of 1 on a landed hit.
func Resolve(rng *rand.Rand, atk AttackerStats, def DefenderStats, skillPower int32) Result {
	statBonus := meleeStatBonus(atk)

	attackRoll := int32(rng.Intn(20)+1) + int32(atk.HitMod) + statBonus + int32(atk.Level)/2
	evasion := 10 - int32(def.AC) + int32(def.DEX-10)/3
	if attackRoll < evasion {
		return Result{}
	}

	// Independent critical roll.
	critical := rng.Intn(critChance) == 0

	base := int32(1)
	if atk.WeaponMax > 0 {
		base = int32(rng.Intn(int(atk.WeaponMax))) + 1
	} else {
		base = int32(rng.Intn(4)) + 1 // unarmed
	}
	base += skillPower

	// 1. flat bonuses
	damage := base + int32(atk.DmgMod) + statBonus
	if critical {
		damage *= 2
	}

	// 2. percentage bonuses
	pct := int32(100) + int32(atk.PctDmg) + int32(def.PctDmg)
	if pct < 0 {
		pct = 0
	}
	damage = damage * pct / 100

	// 3. damage reduction, applied last
	reduction := int32(def.DamageReduction) + abs32(int32(def.AC))/3
	damage -= reduction
	if damage < 1 {
		damage = 1
	}

	return Result{Hit: true, Damage: damage, Critical: critical}
}

// ResolveNpc computes a plain NPC auto-attack:
// damage = random(level) + STR/2 + 1 − reduction, floor 1.
func ResolveNpc(rng *rand.Rand, npcLevel, npcSTR int16, def DefenderStats) Result {
	hitRoll := int32(rng.Intn(20)+1) + int32(npcLevel)/2
	evasion := 10 - int32(def.AC)
	if hitRoll < evasion {
		return Result{}
	}

	base := int32(0)
	if npcLevel > 0 {
		base = int32(rng.Intn(int(npcLevel)))
	}
	damage := base + int32(npcSTR)/2 + 1 - int32(def.DamageReduction)
	if damage < 1 {
		damage = 1
	}
	return Result{Hit: true, Damage: damage}
}

func meleeStatBonus(atk AttackerStats) int32 {
	if atk.Ranged {
		return int32(atk.DEX-10) / 2
	}
	return int32(atk.STR-10) / 2
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
