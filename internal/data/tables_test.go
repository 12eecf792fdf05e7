package data

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMapTable(t *testing.T) {
	path := writeTemp(t, "maps.yaml", `
- map_id: 4
  name: siege field
  width: 100
  height: 80
  safety_zones:
    - { x1: 0, y1: 0, x2: 9, y2: 9 }
  combat_zones:
    - { x1: 40, y1: 40, x2: 60, y2: 60 }
  blocked:
    - { x1: 20, y1: 20, x2: 25, y2: 25 }
`)
	tbl, err := LoadMapTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count() != 1 || tbl.Get(4) == nil {
		t.Fatal("map 4 not loaded")
	}

	if !tbl.IsPassable(4, 10, 10) {
		t.Fatal("open tile reported impassable")
	}
	if tbl.IsPassable(4, 22, 22) {
		t.Fatal("blocked tile reported passable")
	}
	if tbl.IsPassable(4, 100, 0) || tbl.IsPassable(4, -1, 0) {
		t.Fatal("out-of-bounds tile reported passable")
	}
	if tbl.IsPassable(9, 5, 5) {
		t.Fatal("unknown map reported passable")
	}

	if tbl.ZoneType(4, 5, 5) != ZoneSafety {
		t.Fatal("safety zone not detected")
	}
	if tbl.ZoneType(4, 50, 50) != ZoneCombat {
		t.Fatal("combat zone not detected")
	}
	if tbl.ZoneType(4, 30, 30) != ZoneNormal {
		t.Fatal("open tile not normal")
	}
}

func TestLoadNpcAndSpawnTables(t *testing.T) {
	npcPath := writeTemp(t, "npcs.yaml", `
- npc_id: 45008
  name: werewolf
  profile: aggressive
  level: 12
  hp: 190
  ac: 2
  str: 16
  dex: 12
  weapon_max: 10
  agro: true
  wake_radius: 8
`)
	npcs, err := LoadNpcTable(npcPath)
	if err != nil {
		t.Fatal(err)
	}
	wolf := npcs.Get(45008)
	if wolf == nil {
		t.Fatal("werewolf not loaded")
	}
	if wolf.Profile != "aggressive" || wolf.HP != 190 || !wolf.Agro || wolf.WakeRadius != 8 {
		t.Fatalf("template %+v", wolf)
	}

	spawnPath := writeTemp(t, "spawns.yaml", `
- npc_id: 45008
  count: 3
  x: 120
  y: 140
  map_id: 0
  random_x: 5
  random_y: 5
`)
	spawns, err := LoadSpawnList(spawnPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(spawns) != 1 || spawns[0].Count != 3 || spawns[0].NpcID != 45008 {
		t.Fatalf("spawns %+v", spawns)
	}
}

func TestLoadSkillTable(t *testing.T) {
	path := writeTemp(t, "skills.yaml", `
- skill_id: 26
  name: shield
  mp_consume: 6
  buff_duration: 180
  delta_ac: -2
- skill_id: 1
  name: energy bolt
  mp_consume: 4
  reuse_delay_ticks: 15
  range: 8
  damage_value: 8
  damage_dice: 4
  damage_dice_count: 1
`)
	tbl, err := LoadSkillTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("loaded %d skills", tbl.Count())
	}
	shield := tbl.Get(26)
	if shield == nil || shield.BuffDuration != 180 || shield.DeltaAC != -2 {
		t.Fatalf("shield %+v", shield)
	}
	bolt := tbl.Get(1)
	if bolt == nil || bolt.ReuseDelayTicks != 15 || bolt.DamageDice != 4 {
		t.Fatalf("bolt %+v", bolt)
	}
}

func TestLoadCastleTable(t *testing.T) {
	path := writeTemp(t, "castles.yaml", `
- castle_id: 1
  name: kent castle
  map_id: 4
  x: 50
  y: 50
  area_radius: 30
  structures:
    - { kind: gate, x: 40, y: 50, hp: 5000 }
    - { kind: tower, x: 50, y: 45, hp: 4000, crown_bearing: true }
  catapults:
    - { x: 35, y: 55, side: attacker }
  guards:
    - { name: castle guard, level: 30, hp: 600, x: 48, y: 50, weapon_max: 12 }
`)
	tbl, err := LoadCastleTable(path)
	if err != nil {
		t.Fatal(err)
	}
	castle := tbl.Get(1)
	if castle == nil {
		t.Fatal("castle 1 not loaded")
	}
	if len(castle.Structures) != 2 || !castle.Structures[1].CrownBearing {
		t.Fatalf("structures %+v", castle.Structures)
	}
	if len(castle.Catapults) != 1 || castle.Catapults[0].Side != "attacker" {
		t.Fatalf("catapults %+v", castle.Catapults)
	}
	if len(castle.Guards) != 1 || castle.Guards[0].Level != 30 {
		t.Fatalf("guards %+v", castle.Guards)
	}

	// Load order drives Each.
	seen := 0
	tbl.Each(func(c *CastleInfo) { seen++ })
	if seen != 1 {
		t.Fatalf("visited %d castles", seen)
	}
}

func TestLoadersRejectMissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := LoadMapTable(missing); err == nil {
		t.Fatal("missing map file accepted")
	}
	if _, err := LoadSkillTable(missing); err == nil {
		t.Fatal("missing skill file accepted")
	}
	bad := writeTemp(t, "bad.yaml", "][ not yaml")
	if _, err := LoadNpcTable(bad); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
