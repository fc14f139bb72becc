// Command tycoonsim runs the clip tycoon progression server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/clip-tycoon/internal/api"
	"github.com/talgya/clip-tycoon/internal/catalog"
	"github.com/talgya/clip-tycoon/internal/config"
	"github.com/talgya/clip-tycoon/internal/engine"
	"github.com/talgya/clip-tycoon/internal/entropy"
	"github.com/talgya/clip-tycoon/internal/persistence"
	"github.com/talgya/clip-tycoon/internal/player"
	"github.com/talgya/clip-tycoon/internal/reveal"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Clip Tycoon progression server",
		"dialect", cfg.DBDialect,
		"tick_interval", cfg.TickInterval,
		"speed", cfg.Speed,
		"autosave_ticks", cfg.AutosaveTicks,
	)

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.DBDialect, cfg.DSN())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Load or Create Player State ──────────────────────────────────
	st, startTick, restored, err := db.LoadOrNew(func() player.State {
		return player.NewState(catalog.Campaigns()...)
	})
	if err != nil {
		slog.Error("failed to load player state", "error", err)
		os.Exit(1)
	}
	if restored {
		slog.Info("player state restored",
			"tick", startTick,
			"level", st.Level,
			"followers", humanize.Comma(st.Followers),
			"money", humanize.FormatFloat("#,###.##", st.Money),
			"posts", len(st.Posts),
			"pending", reveal.Pending(&st),
		)
	} else {
		slog.Info("no saved state found, starting a new account")
	}

	// ── Simulation ────────────────────────────────────────────────────
	src := entropy.FromConfig(cfg.RandomOrgKey, cfg.Seed)
	if c, ok := src.(*entropy.Client); ok && c.Enabled() {
		slog.Info("random.org entropy enabled")
		// Prime the pool before any lock is held. Later refills run in the
		// background and draws fall back to crypto/rand while one is pending.
		primeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Refill(primeCtx); err != nil {
			slog.Warn("random.org unavailable, using crypto/rand until it recovers", "error", err)
		}
		cancel()
	}

	sim := engine.NewSimulation(st, src, engine.RealClock{})
	sim.SetLastTick(startTick)
	if restored {
		if events, err := db.RecentEvents(1000); err == nil {
			sim.RestoreEvents(events)
		} else {
			slog.Warn("failed to load events", "error", err)
		}
	}
	if bonus, ok := sim.DailyLogin(); ok {
		slog.Info("daily login bonus granted", "bonus", bonus)
	}

	// Save fresh accounts right away so a crash before the first autosave
	// does not lose the login bonus.
	if !restored {
		if err := db.SaveSimulation(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.TickInterval
	eng.AutosaveEvery = uint64(cfg.AutosaveTicks)
	eng.SetTick(startTick)
	eng.SetSpeed(cfg.Speed)

	eng.OnTick = func(tick uint64) { sim.TickSecond(tick) }
	eng.OnAutosave = func(tick uint64) {
		if err := db.SaveSimulation(sim); err != nil {
			slog.Error("autosave failed", "tick", tick, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("TYCOON_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Audience:    catalog.NewAudience(cfg.Seed),
		Port:        cfg.APIPort,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nClip Tycoon is live: level %d, %s followers, $%s.\n",
		st.Level, humanize.Comma(st.Followers), humanize.FormatFloat("#,###.##", st.Money))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d\n", startTick)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveSimulation(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Player state saved.")
}
