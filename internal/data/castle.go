package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StructureSpec describes one siege structure of a castle layout.
// Gates step through six damage stages, towers through four crack stages.
type StructureSpec struct {
	Kind         string `yaml:"kind"` // "gate" or "tower"
	X            int32  `yaml:"x"`
	Y            int32  `yaml:"y"`
	HP           int32  `yaml:"hp"`
	CrownBearing bool   `yaml:"crown_bearing"`
}

// CatapultSpec places one catapult slot. Side "defender" catapults may only
// fire outward; "attacker" catapults fire toward the inner structures.
type CatapultSpec struct {
	X    int32  `yaml:"x"`
	Y    int32  `yaml:"y"`
	Side string `yaml:"side"`
}

// GuardSpec is a castle guard NPC spawned when a war activates.
type GuardSpec struct {
	Name      string `yaml:"name"`
	Level     int16  `yaml:"level"`
	HP        int32  `yaml:"hp"`
	X         int32  `yaml:"x"`
	Y         int32  `yaml:"y"`
	Ranged    bool   `yaml:"ranged"`
	WeaponMax int32  `yaml:"weapon_max"`
}

// CastleInfo is the siege layout for one castle: war area, structures,
// catapult slots, guard spawns.
type CastleInfo struct {
	CastleID   int32           `yaml:"castle_id"`
	Name       string          `yaml:"name"`
	MapID      int16           `yaml:"map_id"`
	X          int32           `yaml:"x"` // war area center
	Y          int32           `yaml:"y"`
	AreaRadius int32           `yaml:"area_radius"`
	Structures []StructureSpec `yaml:"structures"`
	Catapults  []CatapultSpec  `yaml:"catapults"`
	Guards     []GuardSpec     `yaml:"guards"`
}

// CastleTable holds all castle layouts indexed by castle ID.
type CastleTable struct {
	castles map[int32]*CastleInfo
	ids     []int32 // load order, for deterministic iteration
}

func (t *CastleTable) Get(castleID int32) *CastleInfo { return t.castles[castleID] }
func (t *CastleTable) Count() int                     { return len(t.castles) }

// Each visits castles in load order.
func (t *CastleTable) Each(fn func(*CastleInfo)) {
	for _, id := range t.ids {
		fn(t.castles[id])
	}
}

// NewCastleTable builds a table from layouts (used by tests and loaders).
func NewCastleTable(infos ...*CastleInfo) *CastleTable {
	t := &CastleTable{castles: make(map[int32]*CastleInfo, len(infos))}
	for _, c := range infos {
		t.castles[c.CastleID] = c
		t.ids = append(t.ids, c.CastleID)
	}
	return t
}

// LoadCastleTable reads castle layouts from a YAML file.
func LoadCastleTable(path string) (*CastleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []*CastleInfo
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewCastleTable(entries...), nil
}
