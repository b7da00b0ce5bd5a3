// Package app wires the Chorale subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the media chain, the
// playback orchestrator and the admin server around an established session,
// Run serves until the context ends or the session drops, and Shutdown
// tears the session down.
//
// For testing, inject mock implementations via functional options
// (WithResolver, WithDecoder, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chorale/internal/command"
	"github.com/MrWong99/chorale/internal/config"
	"github.com/MrWong99/chorale/internal/health"
	"github.com/MrWong99/chorale/internal/media"
	"github.com/MrWong99/chorale/internal/observe"
	"github.com/MrWong99/chorale/internal/playback"
	"github.com/MrWong99/chorale/internal/session"
)

// adminShutdownTimeout bounds the graceful stop of the admin server.
const adminShutdownTimeout = 5 * time.Second

// Runner is a background task tied to the application lifetime, such as
// [config.Watcher].
type Runner interface {
	Run(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	bridge session.Bridge

	metrics    *observe.Metrics
	level      *slog.LevelVar
	resolver   media.Resolver
	decoder    media.Decoder
	newEncoder func() (playback.Encoder, error)
	spawn      playback.Spawner
	watcher    Runner

	orch    *playback.Orchestrator
	handler http.Handler

	// running is true while the orchestrator loop is active.
	running atomic.Bool

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics sink shared by all subsystems. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads adjust the log level of the
// handler built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithResolver injects a media resolver instead of the yt-dlp failover chain.
func WithResolver(r media.Resolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithDecoder injects a media decoder instead of ffmpeg.
func WithDecoder(d media.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithEncoderFactory injects the packet encoder used by every pipeline.
func WithEncoderFactory(fn func() (playback.Encoder, error)) Option {
	return func(a *App) { a.newEncoder = fn }
}

// WithSpawner replaces the pipeline implementation entirely. Resolver,
// decoder and encoder options are ignored when a spawner is set.
func WithSpawner(s playback.Spawner) Option {
	return func(a *App) { a.spawn = s }
}

// WithWatcher runs w alongside the orchestrator for the lifetime of Run.
func WithWatcher(w Runner) Option {
	return func(a *App) { a.watcher = w }
}

// New creates an App serving bridge. The bridge must already be connected;
// App takes ownership and disconnects it in Shutdown.
func New(cfg *config.Config, bridge session.Bridge, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if bridge == nil {
		return nil, errors.New("app: bridge is nil")
	}
	a := &App{cfg: cfg, bridge: bridge}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.spawn == nil {
		a.spawn = a.buildPlayTask().Run
	}

	a.orch = playback.NewOrchestrator(bridge, a.spawn,
		playback.WithParser(command.NewParser(cfg.Playback.Aliases...)),
		playback.WithMetrics(a.metrics),
		playback.WithDefaultGain(cfg.Playback.DefaultVolume),
	)

	a.handler = a.buildAdminHandler()
	return a, nil
}

// buildPlayTask assembles the production pipeline from config, keeping any
// injected parts.
func (a *App) buildPlayTask() *playback.PlayTask {
	if a.resolver == nil {
		fr := media.NewResolver(a.cfg.Media, a.metrics)
		slog.Info("app: media resolver ready", "strategies", strings.Join(fr.Strategies(), ","))
		a.resolver = fr
	}
	if a.decoder == nil {
		a.decoder = &media.FFmpegDecoder{Path: a.cfg.Media.FFmpegPath}
	}
	task := playback.NewPlayTask(a.resolver, a.decoder, a.cfg.Playback, a.metrics)
	if a.newEncoder != nil {
		task.NewEncoder = a.newEncoder
	}
	return task
}

// buildAdminHandler returns the admin mux serving health probes and the
// Prometheus scrape endpoint.
func (a *App) buildAdminHandler() http.Handler {
	checks := []health.Checker{
		{
			Name: "session",
			Check: func(context.Context) error {
				if err := a.bridge.Err(); err != nil {
					return err
				}
				return nil
			},
		},
		{
			Name: "playback",
			Check: func(context.Context) error {
				if !a.running.Load() {
					return errors.New("orchestrator not running")
				}
				return nil
			},
		},
	}
	h := health.New(checks, health.WithStatus(func() any { return a.orch.Status() }))

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Orchestrator returns the playback orchestrator.
func (a *App) Orchestrator() *playback.Orchestrator {
	return a.orch
}

// Handler returns the admin HTTP handler. It is served on
// cfg.Server.ListenAddr during Run when that address is set.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves the session and blocks until ctx is cancelled (returns nil) or
// a fatal error ends the orchestrator, the admin server or the watcher.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.running.Store(true)
		defer a.running.Store(false)
		slog.Info("app: running",
			"guild", a.cfg.Discord.GuildID,
			"voice_channel", a.cfg.Discord.VoiceChannelID,
		)
		if err := a.orch.Run(gctx); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: admin server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), adminShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	return g.Wait()
}

// OnConfigChange applies a reloaded configuration. Log level and play
// aliases take effect immediately; other changes are reported and need a
// restart. It is safe to call while Run is active.
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.Slog())
		}
		slog.Info("app: log level changed", "old", old.Server.LogLevel, "new", d.NewLogLevel)
	}
	if d.AliasesChanged {
		a.orch.SetParser(command.NewParser(d.NewAliases...))
		slog.Info("app: play aliases changed", "aliases", d.NewAliases)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart to apply", "fields", strings.Join(d.RestartRequired, ","))
	}
}

// Shutdown disconnects the session. Only the first call has an effect.
// Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")

		done := make(chan error, 1)
		go func() { done <- a.bridge.Disconnect() }()

		select {
		case err := <-done:
			if err != nil {
				slog.Warn("app: session disconnect error", "err", err)
				shutdownErr = fmt.Errorf("app: disconnect: %w", err)
				return
			}
		case <-ctx.Done():
			slog.Warn("app: shutdown deadline exceeded")
			shutdownErr = ctx.Err()
			return
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
