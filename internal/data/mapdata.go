package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Zone flags per tile region. The on-disk map encodings are resolved by an
// external loader; the core consumes only this parsed form.
const (
	ZoneNormal = 0
	ZoneSafety = 1
	ZoneCombat = 2
)

// Rect is an inclusive tile rectangle.
type Rect struct {
	X1 int32 `yaml:"x1"`
	Y1 int32 `yaml:"y1"`
	X2 int32 `yaml:"x2"`
	Y2 int32 `yaml:"y2"`
}

func (r Rect) contains(x, y int32) bool {
	return x >= r.X1 && x <= r.X2 && y >= r.Y1 && y <= r.Y2
}

// MapEntry describes one map: its playable extent plus zone/blocked regions.
type MapEntry struct {
	MapID       int16  `yaml:"map_id"`
	Name        string `yaml:"name"`
	Width       int32  `yaml:"width"`
	Height      int32  `yaml:"height"`
	SafetyZones []Rect `yaml:"safety_zones"`
	CombatZones []Rect `yaml:"combat_zones"`
	Blocked     []Rect `yaml:"blocked"`
}

// MapTable answers bounds, passability, and zone queries. Immutable once
// loaded for a tick.
type MapTable struct {
	maps map[int16]*MapEntry
}

func (t *MapTable) Get(mapID int16) *MapEntry { return t.maps[mapID] }
func (t *MapTable) Count() int                { return len(t.maps) }

// EachEntry visits every map entry. Iteration order is unspecified.
func (t *MapTable) EachEntry(fn func(*MapEntry)) {
	for _, e := range t.maps {
		fn(e)
	}
}

// NewMapTable builds a table from entries (used by tests and loaders).
func NewMapTable(entries ...*MapEntry) *MapTable {
	t := &MapTable{maps: make(map[int16]*MapEntry, len(entries))}
	for _, e := range entries {
		t.maps[e.MapID] = e
	}
	return t
}

// IsPassable reports whether the tile can be stepped on.
func (t *MapTable) IsPassable(mapID int16, x, y int32) bool {
	m := t.maps[mapID]
	if m == nil {
		return false
	}
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	for _, r := range m.Blocked {
		if r.contains(x, y) {
			return false
		}
	}
	return true
}

// ZoneType returns the zone flag for a tile.
func (t *MapTable) ZoneType(mapID int16, x, y int32) int {
	m := t.maps[mapID]
	if m == nil {
		return ZoneNormal
	}
	for _, r := range m.SafetyZones {
		if r.contains(x, y) {
			return ZoneSafety
		}
	}
	for _, r := range m.CombatZones {
		if r.contains(x, y) {
			return ZoneCombat
		}
	}
	return ZoneNormal
}

// LoadMapTable reads map entries from a YAML file.
func LoadMapTable(path string) (*MapTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var entries []*MapEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewMapTable(entries...), nil
}
