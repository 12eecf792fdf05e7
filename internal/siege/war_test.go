package siege

import (
	"errors"
	"testing"

	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/world"
)

func testLayout() *data.CastleInfo {
	return &data.CastleInfo{
		CastleID: 1,
		Name:     "kent",
		Structures: []data.StructureSpec{
			{Kind: "gate", X: 10, Y: 10, HP: 600},
			{Kind: "tower", X: 20, Y: 10, HP: 400},
			{Kind: "tower", X: 15, Y: 5, HP: 400, CrownBearing: true},
		},
		Catapults: []data.CatapultSpec{
			{X: 5, Y: 15, Side: "attacker"},
		},
	}
}

func activeWar(t *testing.T) *War {
	t.Helper()
	w := NewWar(testLayout())
	w.OwnerClan = 7
	if err := w.Declare(0, 42, 100, 1000); err != nil {
		t.Fatal(err)
	}
	if tr := w.Advance(100, 5000); len(tr) != 1 || tr[0].To != StateActive {
		t.Fatalf("activation transitions: %+v", tr)
	}
	return w
}

func TestWarLifecycleDefended(t *testing.T) {
	w := NewWar(testLayout())
	w.OwnerClan = 7

	if err := w.Declare(0, 42, 100, 1000); err != nil {
		t.Fatal(err)
	}
	if w.State != StateDeclared {
		t.Fatalf("state after declare: %s", w.State)
	}

	// A second declaration is rejected in any non-inactive state.
	if err := w.Declare(5, 43, 100, 1000); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("re-declare: got %v, want ErrInvalidState", err)
	}

	if tr := w.Advance(99, 5000); len(tr) != 0 {
		t.Fatalf("early activation: %+v", tr)
	}
	w.Advance(100, 5000)
	if w.State != StateActive {
		t.Fatalf("state at start tick: %s", w.State)
	}

	// Deadline passes with the castle intact: defended, hard terminal.
	tr := w.Advance(1100, 5000)
	if len(tr) != 1 || tr[0].To != StateResolved {
		t.Fatalf("deadline transitions: %+v", tr)
	}
	if w.Outcome != OutcomeDefended {
		t.Fatalf("outcome %v, want defended", w.Outcome)
	}
	if w.OwnerClan != 7 {
		t.Fatalf("ownership changed on defense: %d", w.OwnerClan)
	}

	// Season reset returns to Inactive with structures repaired.
	w.Structures[0].HP = 0
	tr = w.Advance(1100+5000, 5000)
	if len(tr) != 1 || tr[0].To != StateInactive {
		t.Fatalf("reset transitions: %+v", tr)
	}
	if w.Structures[0].HP != w.Structures[0].MaxHP {
		t.Fatal("structures not repaired on season reset")
	}
	if err := w.Declare(7000, 42, 100, 1000); err != nil {
		t.Fatalf("declare after reset: %v", err)
	}
}

func TestWarCaptureTransfersOwnership(t *testing.T) {
	w := activeWar(t)

	// Bring down the crown-bearing tower first; the dropped crown is what
	// makes the capture possible.
	crowned := false
	for !crowned {
		out, err := w.DamageStructure(2, 150)
		if err != nil {
			t.Fatal(err)
		}
		crowned = out.CrownSpawn
	}

	if err := w.CaptureCrown(500, 5000); err != nil {
		t.Fatal(err)
	}
	if w.State != StateResolved || w.Outcome != OutcomeCaptured {
		t.Fatalf("state=%s outcome=%v after capture", w.State, w.Outcome)
	}
	if w.OwnerClan != 42 {
		t.Fatalf("owner %d, want declaring clan 42", w.OwnerClan)
	}

	// Nothing happens after resolution until the season reset.
	if err := w.CaptureCrown(501, 5000); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("double capture: got %v, want ErrInvalidState", err)
	}
	if _, err := w.DamageStructure(0, 100); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("damage after resolve: got %v, want ErrInvalidState", err)
	}
}

func TestDamageOutsideActiveRejected(t *testing.T) {
	w := NewWar(testLayout())
	if _, err := w.DamageStructure(0, 50); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("damage while inactive: got %v, want ErrInvalidState", err)
	}
	w.Declare(0, 42, 100, 1000)
	if _, err := w.DamageStructure(0, 50); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("damage while declared: got %v, want ErrInvalidState", err)
	}
}

// Stages advance at most one per hit regardless of damage size, never
// regress, and never exceed the stage implied by cumulative damage.
func TestStructureStageClamp(t *testing.T) {
	w := activeWar(t)
	gate := w.Structures[0] // 600 HP, 6 stages, 100 HP per stage

	// A huge hit takes most of the HP but only one visible stage.
	out, err := w.DamageStructure(0, 450)
	if err != nil {
		t.Fatal(err)
	}
	if !out.StageChanged || out.NewStage != 1 {
		t.Fatalf("first hit stage %d, want 1", out.NewStage)
	}

	// Small follow-ups let the stage catch up one level at a time.
	prev := out.NewStage
	for i := 0; i < 3; i++ {
		out, err = w.DamageStructure(0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if out.NewStage != prev+1 {
			t.Fatalf("catch-up hit %d: stage %d, want %d", i, out.NewStage, prev+1)
		}
		prev = out.NewStage
	}

	// Finish it: stage reaches the terminal 6 and the gate is destroyed.
	for !out.Destroyed {
		out, err = w.DamageStructure(0, 60)
		if err != nil {
			t.Fatal(err)
		}
	}
	if gate.Stage != gate.MaxStage() {
		t.Fatalf("terminal stage %d, want %d", gate.Stage, gate.MaxStage())
	}
	if out.CrownSpawn {
		t.Fatal("plain gate spawned a crown")
	}

	// Destroyed structures absorb no further stage changes.
	out, err = w.DamageStructure(0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if out.StageChanged {
		t.Fatal("destroyed structure changed stage")
	}
}

// The crown spawns exactly once per war, from the crown-bearing tower's
// terminal stage.
func TestCrownSpawnsExactlyOnce(t *testing.T) {
	w := activeWar(t)

	spawns := 0
	for i := 0; i < 20; i++ {
		out, err := w.DamageStructure(2, 150)
		if err != nil {
			t.Fatal(err)
		}
		if out.CrownSpawn {
			spawns++
		}
		if out.Destroyed {
			break
		}
	}
	if spawns != 1 {
		t.Fatalf("crown spawned %d times, want 1", spawns)
	}
}

func TestCatapultFireRules(t *testing.T) {
	cat := NewCatapult(0, SideAttacker, 5, 15)
	royal := ecs.NewEntityID(1, 0)
	commoner := ecs.NewEntityID(2, 0)

	if err := cat.Mount(commoner, false); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("commoner mount: got %v, want ErrInvalidState", err)
	}
	if err := cat.Mount(royal, true); err != nil {
		t.Fatalf("royal mount: %v", err)
	}
	// Occupied.
	if err := cat.Mount(ecs.NewEntityID(3, 0), true); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("double mount: got %v, want ErrInvalidState", err)
	}

	// No bomb, no shot.
	if _, err := cat.TryFire(100, 50, 50, false); !errors.Is(err, world.ErrInsufficientResource) {
		t.Fatalf("fire without bomb: got %v, want ErrInsufficientResource", err)
	}

	shot, err := cat.TryFire(100, 50, 50, true)
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
	if shot.Damage != CatapultDamage || shot.SplashRadius != CatapultSplashRadius {
		t.Fatalf("shot %+v, want damage %d radius %d", shot, CatapultDamage, CatapultSplashRadius)
	}

	// Reloading for the full delay.
	if _, err := cat.TryFire(100+CatapultReloadTicks-1, 60, 60, true); !errors.Is(err, world.ErrOnCooldown) {
		t.Fatalf("fire while reloading: got %v, want ErrOnCooldown", err)
	}
	if _, err := cat.TryFire(100+CatapultReloadTicks, 60, 60, true); err != nil {
		t.Fatalf("fire after reload: %v", err)
	}
}

func TestCatapultDestruction(t *testing.T) {
	cat := NewCatapult(0, SideDefender, 5, 15)
	cat.Mount(ecs.NewEntityID(1, 0), true)

	if destroyed := cat.ReceiveDamage(CatapultMaxHP - 1); destroyed {
		t.Fatal("catapult destroyed early")
	}
	if !cat.ReceiveDamage(10) {
		t.Fatal("catapult survived lethal damage")
	}
	if !cat.OperatorID.IsZero() {
		t.Fatal("operator still seated on destroyed catapult")
	}
	if _, err := cat.TryFire(0, 1, 1, true); !errors.Is(err, world.ErrInvalidState) {
		t.Fatalf("fire destroyed catapult: got %v, want ErrInvalidState", err)
	}
}

func TestWarAreaMembership(t *testing.T) {
	layout := testLayout()
	layout.MapID = 4
	layout.X, layout.Y = 100, 100
	layout.AreaRadius = 20
	w := NewWar(layout)

	cases := []struct {
		mapID int16
		x, y  int32
		want  bool
	}{
		{4, 100, 100, true},
		{4, 120, 80, true}, // corner of the square
		{4, 121, 100, false},
		{4, 100, 79, false},
		{0, 100, 100, false}, // wrong map
	}
	for _, c := range cases {
		if got := w.InArea(c.mapID, c.x, c.y); got != c.want {
			t.Errorf("InArea(%d, %d, %d) = %v, want %v", c.mapID, c.x, c.y, got, c.want)
		}
	}

	// Radius zero disables the area check entirely.
	open := NewWar(testLayout())
	if !open.InArea(9, -500, -500) {
		t.Fatal("zero-radius war rejected a position")
	}
}
