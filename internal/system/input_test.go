package system

import (
	"net"
	"testing"

	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/gateway"
	"github.com/l1jgo/simcore/internal/persist"
	"github.com/l1jgo/simcore/internal/siege"
	"github.com/l1jgo/simcore/internal/skill"
	"github.com/l1jgo/simcore/internal/world"
)

type inputHarness struct {
	sch      *Scheduler
	sync     *gateway.Synchronizer
	input    *InputSystem
	newConns chan *gateway.Session
	commands chan gateway.Command
}

func newInputHarness(t *testing.T, maxPerTick int) *inputHarness {
	t.Helper()
	sch := newTestScheduler(t)
	sync := gateway.NewSynchronizer(sch.Store, gateway.BinaryCodec{}, 20, zap.NewNop())
	h := &inputHarness{
		sch:      sch,
		sync:     sync,
		newConns: make(chan *gateway.Session, 8),
		commands: make(chan gateway.Command, 64),
	}
	skills := data.NewSkillTable(
		&data.SkillInfo{
			SkillID: 1, Name: "energy bolt", MpConsume: 4, ReuseDelayTicks: 15, Range: 8, DamageValue: 8,
		},
		&data.SkillInfo{
			SkillID: 11, Name: "heal", MpConsume: 6, ReuseDelayTicks: 15, Range: 5, DamageValue: -10,
		},
	)
	executor := skill.NewExecutor(skills, sch.Store, sch.Buffs, 5)
	spawn := world.Position{MapID: 0, X: 100, Y: 100}
	h.input = NewInputSystem(sch, sync, h.newConns, h.commands, executor, nil, maxPerTick, spawn, zap.NewNop())
	sch.Register(h.input)
	return h
}

// connect runs a session through the accept path and returns its player.
func (h *inputHarness) connect(t *testing.T, id uint64) *world.Entity {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	sess := gateway.NewSession(server, id, 16, 0, gateway.BinaryCodec{}, h.commands, zap.NewNop())
	h.newConns <- sess
	h.sch.RunTick(testDT)
	h.sch.TakeDeltas()
	e, err := h.sch.Store.Get(sess.Entity)
	if err != nil {
		t.Fatalf("session %d has no player: %v", id, err)
	}
	return e
}

func (h *inputHarness) run(t *testing.T, cmds ...gateway.Command) []world.Delta {
	t.Helper()
	for _, c := range cmds {
		h.commands <- c
	}
	h.sch.RunTick(testDT)
	return h.sch.TakeDeltas()
}

func TestConnectSpawnsPlayer(t *testing.T) {
	h := newInputHarness(t, 128)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	sess := gateway.NewSession(server, 1, 16, 0, gateway.BinaryCodec{}, h.commands, zap.NewNop())
	h.newConns <- sess

	h.sch.RunTick(testDT)
	if h.sync.Len() != 1 {
		t.Fatal("session not registered")
	}
	e, err := h.sch.Store.Get(sess.Entity)
	if err != nil {
		t.Fatal(err)
	}
	if e.Kind != world.KindPlayer || e.HP != 60 || e.Pos.X != 100 {
		t.Fatalf("spawned %+v", e)
	}
	if countDeltas(h.sch.TakeDeltas(), world.DeltaEntityAppeared) != 1 {
		t.Fatal("no appearance delta")
	}
}

func TestMoveCommandValidation(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)

	ds := h.run(t, gateway.Command{Op: gateway.OpMove, SessionID: 1, DX: 1, DY: 0, Heading: 2})
	if player.Pos.X != 101 || player.Heading != 2 {
		t.Fatalf("pos=%+v heading=%d after step", player.Pos, player.Heading)
	}
	if countDeltas(ds, world.DeltaEntityMoved) != 1 {
		t.Fatal("no move delta")
	}

	// Steps larger than one tile are rejected without moving.
	ds = h.run(t, gateway.Command{Op: gateway.OpMove, SessionID: 1, DX: 2, DY: 0})
	if player.Pos.X != 101 {
		t.Fatal("oversized step moved the player")
	}
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("oversized step not rejected")
	}

	// Zero step is a no-op command, also rejected.
	ds = h.run(t, gateway.Command{Op: gateway.OpMove, SessionID: 1})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("zero step not rejected")
	}
}

func TestAttackCommand(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)

	npc := spawnTestNpc(t, h.sch, "aggressive", player.Pos.X+1, player.Pos.Y, 8)
	npc.AC = 30 // unmissable

	ds := h.run(t, gateway.Command{Op: gateway.OpAttack, SessionID: 1, Target: npc.ID})
	if npc.HP >= npc.MaxHP {
		t.Fatal("adjacent attack dealt no damage")
	}
	if countDeltas(ds, world.DeltaHPChanged) != 1 {
		t.Fatal("no hp delta")
	}
	// Being struck provokes the idle npc.
	if npc.AI.AggroTarget != player.ID || npc.Sleeping {
		t.Fatal("npc not provoked by the hit")
	}

	// Out of reach.
	far := spawnTestNpc(t, h.sch, "passive", player.Pos.X+5, player.Pos.Y, 8)
	ds = h.run(t, gateway.Command{Op: gateway.OpAttack, SessionID: 1, Target: far.ID})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("out-of-reach attack not rejected")
	}
	if far.HP != far.MaxHP {
		t.Fatal("out-of-reach attack dealt damage")
	}
}

func TestDeadActorCommandsRejected(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)
	h.sch.Kill(player, nil)
	h.sch.TakeDeltas()

	ds := h.run(t, gateway.Command{Op: gateway.OpMove, SessionID: 1, DX: 1})
	if n := countDeltas(ds, world.DeltaActionRejected); n != 1 {
		t.Fatalf("%d rejections, want 1", n)
	}
	if player.Pos.X != 100 {
		t.Fatal("corpse moved")
	}
}

func TestCastCommand(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)
	npc := spawnTestNpc(t, h.sch, "passive", player.Pos.X+3, player.Pos.Y, 8)
	npc.AC = 30 // unmissable

	ds := h.run(t, gateway.Command{Op: gateway.OpCastSkill, SessionID: 1, SkillID: 1, Target: npc.ID})
	if player.MP != 26 {
		t.Fatalf("mp %d after cast, want 26", player.MP)
	}
	if npc.HP >= npc.MaxHP {
		t.Fatal("bolt dealt no damage")
	}
	if countDeltas(ds, world.DeltaHPChanged) != 1 {
		t.Fatal("no hp delta")
	}

	// Unknown skill is a rejection, not a silent drop.
	ds = h.run(t, gateway.Command{Op: gateway.OpCastSkill, SessionID: 1, SkillID: 999, Target: npc.ID})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("unknown skill not rejected")
	}
}

func TestCastHealCommand(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)
	player.HP = 20

	ds := h.run(t, gateway.Command{Op: gateway.OpCastSkill, SessionID: 1, SkillID: 11})
	if player.HP != 30 {
		t.Fatalf("hp %d after self-heal, want 30", player.HP)
	}
	if player.MP != 24 {
		t.Fatalf("mp %d after heal, want 24", player.MP)
	}
	if countDeltas(ds, world.DeltaHPChanged) != 1 {
		t.Fatal("no hp delta for the heal")
	}
}

func TestSayCommand(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)

	ds := h.run(t, gateway.Command{Op: gateway.OpSay, SessionID: 1, Text: "hello"})
	if countDeltas(ds, world.DeltaChat) != 1 {
		t.Fatal("no chat delta")
	}
	for _, d := range ds {
		if d.Kind == world.DeltaChat && (d.Reason != "hello" || d.Entity != player.ID) {
			t.Fatalf("chat delta %+v", d)
		}
	}

	// Empty text is dropped silently.
	ds = h.run(t, gateway.Command{Op: gateway.OpSay, SessionID: 1})
	if len(ds) != 0 {
		t.Fatalf("empty say produced %+v", ds)
	}
}

func TestDeclareWarCommand(t *testing.T) {
	h := newInputHarness(t, 128)
	leader := h.connect(t, 1)
	leader.ClanID = 42
	leader.ClanRank = 10

	war := testWar(7)
	h.sch.AddWar(1, war)

	ds := h.run(t, gateway.Command{Op: gateway.OpDeclareWar, SessionID: 1, CastleID: 1})
	if war.State != siege.StateDeclared || war.DeclaringClan != 42 {
		t.Fatalf("war %s by %d after declare", war.State, war.DeclaringClan)
	}
	if countDeltas(ds, world.DeltaWarState) != 1 {
		t.Fatal("no war-state delta")
	}

	// Double declaration.
	ds = h.run(t, gateway.Command{Op: gateway.OpDeclareWar, SessionID: 1, CastleID: 1})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("double declaration not rejected")
	}

	// Rank too low.
	recruit := h.connect(t, 2)
	recruit.ClanID = 9
	recruit.ClanRank = 2
	h.sch.AddWar(2, testWar(7))
	ds = h.run(t, gateway.Command{Op: gateway.OpDeclareWar, SessionID: 2, CastleID: 2})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("low-rank declaration not rejected")
	}

	// Owning clan cannot declare on its own castle.
	owner := h.connect(t, 3)
	owner.ClanID = 7
	owner.ClanRank = 10
	ds = h.run(t, gateway.Command{Op: gateway.OpDeclareWar, SessionID: 3, CastleID: 2})
	if countDeltas(ds, world.DeltaActionRejected) != 1 {
		t.Fatal("self-declaration not rejected")
	}
}

// Commands beyond the per-tick budget stay queued for the next tick in
// arrival order.
func TestCommandBudgetCarriesOver(t *testing.T) {
	h := newInputHarness(t, 2)
	player := h.connect(t, 1)

	var cmds []gateway.Command
	for i := 0; i < 5; i++ {
		cmds = append(cmds, gateway.Command{Op: gateway.OpMove, SessionID: 1, DX: 1})
	}
	h.run(t, cmds...)
	if player.Pos.X != 102 {
		t.Fatalf("x=%d after budgeted tick, want 102", player.Pos.X)
	}
	h.run(t)
	if player.Pos.X != 104 {
		t.Fatalf("x=%d after second tick, want 104", player.Pos.X)
	}
	h.run(t)
	if player.Pos.X != 105 {
		t.Fatalf("x=%d after third tick, want 105", player.Pos.X)
	}
}

// A resolved load-or-create binds the database row to the session's
// entity: a fresh row only attaches its ID, a loaded row also restores the
// saved sheet and position.
func TestCharacterBindRestoresSavedState(t *testing.T) {
	h := newInputHarness(t, 128)
	fresh := h.connect(t, 1)
	returning := h.connect(t, 2)

	h.input.charBinds <- charBind{
		sessionID: 1,
		row:       persist.CharacterRow{ID: 41},
	}
	h.input.charBinds <- charBind{
		sessionID: 2,
		loaded:    true,
		row: persist.CharacterRow{
			ID: 42, Level: 12,
			HP: 55, MP: 20, MaxHP: 80, MaxMP: 40,
			Str: 14, Dex: 13, Intel: 16, AC: 4, MR: 25,
			X: 120, Y: 130, MapID: 0, Heading: 4,
			ClanID: 7, ClanRank: 10,
		},
	}
	ds := h.run(t)

	if fresh.CharID != 41 {
		t.Fatalf("fresh character bound id %d, want 41", fresh.CharID)
	}
	if fresh.Level != 1 || fresh.HP != 60 {
		t.Fatalf("fresh bind overwrote spawn defaults: %+v", fresh)
	}

	if returning.CharID != 42 {
		t.Fatalf("returning character bound id %d, want 42", returning.CharID)
	}
	if returning.Level != 12 || returning.HP != 55 || returning.MaxHP != 80 {
		t.Fatalf("saved sheet not restored: level=%d hp=%d/%d",
			returning.Level, returning.HP, returning.MaxHP)
	}
	if returning.INT != 16 || returning.MR != 25 || returning.ClanID != 7 {
		t.Fatalf("saved stats not restored: %+v", returning)
	}
	if returning.Pos.X != 120 || returning.Pos.Y != 130 {
		t.Fatalf("saved position not restored: %+v", returning.Pos)
	}
	if countDeltas(ds, world.DeltaEntityMoved) != 1 {
		t.Fatal("no move delta for the restored position")
	}
}

// A bind whose session disconnected while the database round-trip was in
// flight is dropped.
func TestCharacterBindForGoneSessionDropped(t *testing.T) {
	h := newInputHarness(t, 128)
	h.connect(t, 1)
	h.run(t, gateway.Command{Op: gateway.OpDisconnect, SessionID: 1})

	h.input.charBinds <- charBind{sessionID: 1, row: persist.CharacterRow{ID: 9}}
	h.run(t)

	found := false
	h.sch.Store.Each(func(e *world.Entity) {
		if e.CharID != 0 {
			found = true
		}
	})
	if found {
		t.Fatal("stale bind attached to something")
	}
}

func TestDisconnectTearsDownPlayer(t *testing.T) {
	h := newInputHarness(t, 128)
	player := h.connect(t, 1)

	ds := h.run(t, gateway.Command{Op: gateway.OpDisconnect, SessionID: 1})
	if countDeltas(ds, world.DeltaEntityDisappeared) != 1 {
		t.Fatal("no disappearance delta")
	}
	if h.sync.Len() != 0 {
		t.Fatal("session still registered")
	}
	h.sch.Store.FlushDestroyQueue()
	if _, err := h.sch.Store.Get(player.ID); err == nil {
		t.Fatal("player entity survived disconnect")
	}
}
