package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/simcore/internal/config"
	"github.com/l1jgo/simcore/internal/data"
	"github.com/l1jgo/simcore/internal/gateway"
	"github.com/l1jgo/simcore/internal/persist"
	"github.com/l1jgo/simcore/internal/scripting"
	"github.com/l1jgo/simcore/internal/skill"
	"github.com/l1jgo/simcore/internal/system"
	"github.com/l1jgo/simcore/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            simcore  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      world simulation game server         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("SIMCORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations. An empty DSN runs the
	// server in memory-only mode (no saves, no war audit log).
	var (
		db        *persist.DB
		charRepo  *persist.CharacterRepo
		siegeRepo *persist.SiegeRepo
	)
	if cfg.Database.DSN != "" {
		printSection("database")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = persist.NewDB(ctx, cfg.Database, log)
		cancel()
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		migCtx, migCancel := context.WithTimeout(context.Background(), 60*time.Second)
		err = persist.RunMigrations(migCtx, db.Pool)
		migCancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		fmt.Println()

		charRepo = persist.NewCharacterRepo(db)
		siegeRepo = persist.NewSiegeRepo(db)
	}

	// 4. Load static data tables
	printSection("data")
	dataDir := cfg.Simulation.DataDir

	mapTable, err := data.LoadMapTable(filepath.Join(dataDir, "map_list.yaml"))
	if err != nil {
		return fmt.Errorf("load map table: %w", err)
	}
	printStat("maps", mapTable.Count())

	npcTable, err := data.LoadNpcTable(filepath.Join(dataDir, "npc_list.yaml"))
	if err != nil {
		return fmt.Errorf("load npc table: %w", err)
	}
	printStat("npc templates", npcTable.Count())

	spawnList, err := data.LoadSpawnList(filepath.Join(dataDir, "spawn_list.yaml"))
	if err != nil {
		return fmt.Errorf("load spawn list: %w", err)
	}

	skillTable, err := data.LoadSkillTable(filepath.Join(dataDir, "skill_list.yaml"))
	if err != nil {
		return fmt.Errorf("load skill table: %w", err)
	}
	printStat("skills", skillTable.Count())

	castleTable, err := data.LoadCastleTable(filepath.Join(dataDir, "castle_list.yaml"))
	if err != nil {
		return fmt.Errorf("load castle table: %w", err)
	}
	printStat("castles", castleTable.Count())

	// 5. Build the world
	store := world.NewStore(world.NewGrid(mapGridBounds(mapTable)), log)
	seed := cfg.Simulation.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sch := system.NewScheduler(store, mapTable, seed, log)
	sch.SiegeConfig = cfg.Siege
	if cfg.Simulation.WakeRadius > 0 {
		sch.WakeRadius = cfg.Simulation.WakeRadius
	}

	npcCount, err := system.SpawnNpcs(sch, npcTable, spawnList, log)
	if err != nil {
		return fmt.Errorf("spawn npcs: %w", err)
	}
	printStat("npcs spawned", npcCount)

	var owners map[int32]int32
	if siegeRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		owners, err = siegeRepo.LoadOwners(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("load castle owners: %w", err)
		}
	}
	if err := system.InitCastles(sch, castleTable, owners, log); err != nil {
		return fmt.Errorf("init castles: %w", err)
	}

	// 6. Lua scripting engine
	luaEngine, err := scripting.NewEngine(cfg.Simulation.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("lua scripts loaded")
	fmt.Println()

	// 7. Gateway
	codec := gateway.BinaryCodec{}
	server, err := gateway.NewServer(
		cfg.Network.BindAddress,
		cfg.Network.CommandQueueSize,
		cfg.Network.OutQueueSize,
		cfg.Network.MaxCommandsPerSec,
		codec,
		log,
	)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	go server.AcceptLoop()

	sync := gateway.NewSynchronizer(store, codec, cfg.Simulation.ViewRadius, log)

	// 8. Systems, in phase order
	ticksPerSec := int64(time.Second / cfg.Simulation.TickRate)
	executor := skill.NewExecutor(skillTable, store, sch.Buffs, ticksPerSec)
	spawn := world.Position{MapID: 0, X: 100, Y: 100}

	persistSys := system.NewPersistenceSystem(sch, charRepo, 1500, log)
	sch.Register(system.NewInputSystem(sch, sync, server.NewSessions(), server.Commands(),
		executor, charRepo, cfg.Network.MaxCommandsPerTick, spawn, log))
	sch.Register(system.NewNpcAISystem(sch, luaEngine, log))
	sch.Register(system.NewSiegeSystem(sch, siegeRepo, log))
	sch.Register(system.NewBuffExpirySystem(sch))
	sch.Register(system.NewOutputSystem(sch, sync))
	sch.Register(persistSys)
	sch.Register(system.NewCleanupSystem(sch, log))

	// 9. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", server.Addr().String()))
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Simulation.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			sch.RunTick(cfg.Simulation.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			persistSys.SaveAllPlayers()
			server.Shutdown()
			log.Info("server stopped")
			return nil
		}
	}
}

// mapGridBounds extracts per-map bounds for the spatial grid.
func mapGridBounds(maps *data.MapTable) map[int16]world.MapBounds {
	bounds := make(map[int16]world.MapBounds)
	maps.EachEntry(func(m *data.MapEntry) {
		bounds[m.MapID] = world.MapBounds{Width: m.Width, Height: m.Height}
	})
	return bounds
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
