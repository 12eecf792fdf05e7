package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SkillInfo holds a single skill template. Numeric balance values are
// content, consumed as-is by the executor.
type SkillInfo struct {
	SkillID         int32
	Name            string
	MpConsume       int32
	ReuseDelayTicks int64
	BuffDuration    int32 // seconds; 0 = instant damage skill
	Range           int32 // tiles; 0 = self/touch
	DamageValue     int32
	DamageDice      int32
	DamageDiceCount int32

	// Buff stat deltas (buff skills only).
	DeltaAC     int16
	DeltaHit    int16
	DeltaDmg    int16
	DeltaMR     int16
	DeltaPctDmg int16
}

// SkillTable holds all skills indexed by SkillID.
type SkillTable struct {
	skills map[int32]*SkillInfo
}

// Get returns a skill by ID, or nil if not found.
func (t *SkillTable) Get(skillID int32) *SkillInfo {
	return t.skills[skillID]
}

// Count returns total loaded skills.
func (t *SkillTable) Count() int {
	return len(t.skills)
}

// NewSkillTable builds a table from templates (used by tests and loaders).
func NewSkillTable(infos ...*SkillInfo) *SkillTable {
	t := &SkillTable{skills: make(map[int32]*SkillInfo, len(infos))}
	for _, s := range infos {
		t.skills[s.SkillID] = s
	}
	return t
}

type skillEntry struct {
	SkillID         int32  `yaml:"skill_id"`
	Name            string `yaml:"name"`
	MpConsume       int32  `yaml:"mp_consume"`
	ReuseDelayTicks int64  `yaml:"reuse_delay_ticks"`
	BuffDuration    int32  `yaml:"buff_duration"`
	Range           int32  `yaml:"range"`
	DamageValue     int32  `yaml:"damage_value"`
	DamageDice      int32  `yaml:"damage_dice"`
	DamageDiceCount int32  `yaml:"damage_dice_count"`
	DeltaAC         int16  `yaml:"delta_ac"`
	DeltaHit        int16  `yaml:"delta_hit"`
	DeltaDmg        int16  `yaml:"delta_dmg"`
	DeltaMR         int16  `yaml:"delta_mr"`
	DeltaPctDmg     int16  `yaml:"delta_pct_dmg"`
}

// LoadSkillTable reads skill templates from a YAML file.
func LoadSkillTable(path string) (*SkillTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []skillEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t := &SkillTable{skills: make(map[int32]*SkillInfo, len(entries))}
	for _, e := range entries {
		t.skills[e.SkillID] = &SkillInfo{
			SkillID:         e.SkillID,
			Name:            e.Name,
			MpConsume:       e.MpConsume,
			ReuseDelayTicks: e.ReuseDelayTicks,
			BuffDuration:    e.BuffDuration,
			Range:           e.Range,
			DamageValue:     e.DamageValue,
			DamageDice:      e.DamageDice,
			DamageDiceCount: e.DamageDiceCount,
			DeltaAC:         e.DeltaAC,
			DeltaHit:        e.DeltaHit,
			DeltaDmg:        e.DeltaDmg,
			DeltaMR:         e.DeltaMR,
			DeltaPctDmg:     e.DeltaPctDmg,
		}
	}
	return t, nil
}
