// Command chorale is the main entry point for the Chorale music bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/chorale/internal/app"
	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/discord"
	"github.com/MrWong99/chorale/internal/media"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/internal/session"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	reload := flag.Duration("reload-interval", 5*time.Second, "how often the config file is checked for changes")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher loads the file once up front; later changes are forwarded
	// to the application once it exists.
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if application != nil {
			application.OnConfigChange(old, new)
		}
	}, config.WithInterval(*reload))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chorale: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chorale: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(cfg.Server.LogLevel.Slog())

	slog.Info("chorale starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── External tools ────────────────────────────────────────────────────────
	if err := media.CheckTools(cfg.Media.YTDLPPath, cfg.Media.FFmpegPath); err != nil {
		slog.Error("required media tools missing", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Discord session ───────────────────────────────────────────────────────
	bridge, err := session.Dial(ctx, func(ctx context.Context) (session.Bridge, error) {
		b, err := discord.Open(ctx, cfg.Discord)
		if err != nil {
			return nil, err
		}
		return b, nil
	}, session.DialConfig{})
	if err != nil {
		slog.Error("failed to open Discord session", "err", err)
		return 1
	}
	slog.Info("discord session connected", "guild_id", cfg.Discord.GuildID)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(cfg, bridge,
		app.WithLevelVar(level),
		app.WithWatcher(watcher),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = bridge.Disconnect()
		return 1
	}

	slog.Info("bot ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil {
		if errors.Is(err, session.ErrClosed) {
			slog.Error("session ended unexpectedly", "err", err)
		} else {
			slog.Error("run error", "err", err)
		}
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Chorale - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Guild", cfg.Discord.GuildID)
	printRow("Voice channel", cfg.Discord.VoiceChannelID)
	if cfg.Discord.TextChannelID != "" {
		printRow("Text channel", cfg.Discord.TextChannelID)
	} else {
		printRow("Text channel", "(any)")
	}
	printRow("Resolver", string(cfg.Media.Resolver))
	printRow("Volume", fmt.Sprintf("%.2f", cfg.Playback.DefaultVolume))
	printRow("Play aliases", fmt.Sprintf("%d", len(cfg.Playback.Aliases)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", label, value)
}
