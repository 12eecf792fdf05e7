package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NpcInfo is an immutable NPC template shared by all instances.
type NpcInfo struct {
	NpcID      int32
	Name       string
	Profile    string // AI profile key ("melee", "ranged", "guard", or scripted)
	Level      int16
	HP         int32
	MP         int32
	AC         int16
	STR        int16
	DEX        int16
	MR         int16
	WeaponMax  int32
	Ranged     bool
	Agro       bool
	WakeRadius int32 // tiles; 0 = table default
}

// NpcTable holds all NPC templates indexed by template ID.
type NpcTable struct {
	npcs map[int32]*NpcInfo
}

func (t *NpcTable) Get(npcID int32) *NpcInfo { return t.npcs[npcID] }
func (t *NpcTable) Count() int               { return len(t.npcs) }

// NewNpcTable builds a table from templates (used by tests and loaders).
func NewNpcTable(infos ...*NpcInfo) *NpcTable {
	t := &NpcTable{npcs: make(map[int32]*NpcInfo, len(infos))}
	for _, n := range infos {
		t.npcs[n.NpcID] = n
	}
	return t
}

type npcEntry struct {
	NpcID      int32  `yaml:"npc_id"`
	Name       string `yaml:"name"`
	Profile    string `yaml:"profile"`
	Level      int16  `yaml:"level"`
	HP         int32  `yaml:"hp"`
	MP         int32  `yaml:"mp"`
	AC         int16  `yaml:"ac"`
	STR        int16  `yaml:"str"`
	DEX        int16  `yaml:"dex"`
	MR         int16  `yaml:"mr"`
	WeaponMax  int32  `yaml:"weapon_max"`
	Ranged     bool   `yaml:"ranged"`
	Agro       bool   `yaml:"agro"`
	WakeRadius int32  `yaml:"wake_radius"`
}

// LoadNpcTable reads NPC templates from a YAML file.
func LoadNpcTable(path string) (*NpcTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []npcEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t := &NpcTable{npcs: make(map[int32]*NpcInfo, len(entries))}
	for _, e := range entries {
		t.npcs[e.NpcID] = &NpcInfo{
			NpcID:      e.NpcID,
			Name:       e.Name,
			Profile:    e.Profile,
			Level:      e.Level,
			HP:         e.HP,
			MP:         e.MP,
			AC:         e.AC,
			STR:        e.STR,
			DEX:        e.DEX,
			MR:         e.MR,
			WeaponMax:  e.WeaponMax,
			Ranged:     e.Ranged,
			Agro:       e.Agro,
			WakeRadius: e.WakeRadius,
		}
	}
	return t, nil
}

// SpawnEntry places Count instances of a template around (X, Y).
type SpawnEntry struct {
	NpcID   int32 `yaml:"npc_id"`
	Count   int   `yaml:"count"`
	X       int32 `yaml:"x"`
	Y       int32 `yaml:"y"`
	MapID   int16 `yaml:"map_id"`
	RandomX int32 `yaml:"random_x"`
	RandomY int32 `yaml:"random_y"`
}

// LoadSpawnList reads the NPC spawn list from a YAML file.
func LoadSpawnList(path string) ([]SpawnEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []SpawnEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}
