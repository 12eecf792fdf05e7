// Package scripting hosts the Lua side of NPC AI: Go detects targets and
// executes commands, a script decides the action. Profiles are plain global
// Lua functions named ai_<profile>.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only
// (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all AI scripts from the given
// directory. A missing directory is not an error; built-in Go profiles
// cover the defaults.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(filepath.Join(scriptsDir, "ai")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load ai scripts: %w", err)
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// AIContext is the pre-packed view of the world handed to a profile script.
type AIContext struct {
	SelfX, SelfY     int32
	TargetX, TargetY int32
	Distance         int32
	HPRatio          float64 // 0.0–1.0
	HasTarget        bool
	AttackReady      bool
}

// Decision is what a profile script returns: the action plus a step delta
// for moves.
type Decision struct {
	Action string // "attack", "move", "idle", "flee"
	DX, DY int32
}

// HasProfile reports whether a Lua function ai_<profile> is loaded.
func (e *Engine) HasProfile(profile string) bool {
	fn := e.vm.GetGlobal("ai_" + profile)
	return fn.Type() == lua.LTFunction
}

// Decide calls the profile's Lua function with the context table and reads
// back {action, dx, dy}.
func (e *Engine) Decide(profile string, ctx AIContext) (Decision, error) {
	fn := e.vm.GetGlobal("ai_" + profile)
	if fn.Type() != lua.LTFunction {
		return Decision{}, fmt.Errorf("no lua profile %q", profile)
	}

	tbl := e.vm.NewTable()
	tbl.RawSetString("self_x", lua.LNumber(ctx.SelfX))
	tbl.RawSetString("self_y", lua.LNumber(ctx.SelfY))
	tbl.RawSetString("target_x", lua.LNumber(ctx.TargetX))
	tbl.RawSetString("target_y", lua.LNumber(ctx.TargetY))
	tbl.RawSetString("distance", lua.LNumber(ctx.Distance))
	tbl.RawSetString("hp_ratio", lua.LNumber(ctx.HPRatio))
	tbl.RawSetString("has_target", lua.LBool(ctx.HasTarget))
	tbl.RawSetString("attack_ready", lua.LBool(ctx.AttackReady))

	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, tbl); err != nil {
		return Decision{}, fmt.Errorf("profile %q: %w", profile, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	out, ok := ret.(*lua.LTable)
	if !ok {
		return Decision{}, fmt.Errorf("profile %q returned %s, want table", profile, ret.Type())
	}
	d := Decision{Action: "idle"}
	if v := out.RawGetString("action"); v.Type() == lua.LTString {
		d.Action = string(v.(lua.LString))
	}
	if v := out.RawGetString("dx"); v.Type() == lua.LTNumber {
		d.DX = int32(v.(lua.LNumber))
	}
	if v := out.RawGetString("dy"); v.Type() == lua.LTNumber {
		d.DY = int32(v.(lua.LNumber))
	}
	return d, nil
}

// Close releases the VM.
func (e *Engine) Close() {
	e.vm.Close()
}
