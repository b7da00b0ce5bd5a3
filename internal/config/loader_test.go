package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/chorale/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
discord:
  token: secret
  guild_id: "100"
  voice_channel_id: "200"
  text_channel_id: "300"
  nickname: Chorale
playback:
  default_volume: 0.5
  frame_pacing: 18ms
  aliases: ["!play", "!p"]
media:
  resolver: download
  ytdlp_path: /usr/local/bin/yt-dlp
  ffmpeg_path: /usr/bin/ffmpeg
  cache_dir: /tmp/chorale
`

const minimalYAML = `
discord:
  token: secret
  guild_id: "100"
  voice_channel_id: "200"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Discord.Nickname != "Chorale" {
		t.Errorf("discord.nickname: got %q", cfg.Discord.Nickname)
	}
	if cfg.Playback.DefaultVolume != 0.5 {
		t.Errorf("playback.default_volume: got %v, want 0.5", cfg.Playback.DefaultVolume)
	}
	if cfg.Playback.FramePacing != 18*time.Millisecond {
		t.Errorf("playback.frame_pacing: got %s, want 18ms", cfg.Playback.FramePacing)
	}
	if len(cfg.Playback.Aliases) != 2 {
		t.Errorf("playback.aliases: got %v", cfg.Playback.Aliases)
	}
	if cfg.Media.Resolver != config.ResolverDownload {
		t.Errorf("media.resolver: got %q", cfg.Media.Resolver)
	}
	if cfg.Media.CacheDir != "/tmp/chorale" {
		t.Errorf("media.cache_dir: got %q", cfg.Media.CacheDir)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log level = %q", cfg.Server.LogLevel)
	}
	if cfg.Playback.DefaultVolume != config.DefaultVolume {
		t.Errorf("default volume = %v", cfg.Playback.DefaultVolume)
	}
	if cfg.Playback.FramePacing != config.DefaultFramePacing {
		t.Errorf("default pacing = %s", cfg.Playback.FramePacing)
	}
	if cfg.Media.Resolver != config.ResolverStream {
		t.Errorf("default resolver = %q", cfg.Media.Resolver)
	}
	if cfg.Media.YTDLPPath != "yt-dlp" || cfg.Media.FFmpegPath != "ffmpeg" {
		t.Errorf("default tool paths = %q, %q", cfg.Media.YTDLPPath, cfg.Media.FFmpegPath)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(minimalYAML + "bogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_EmptyFailsRequired(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, key := range []string{"discord.token", "discord.guild_id", "discord.voice_channel_id"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s, got: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"invalid log level", "server:\n  log_level: verbose\n", "log_level"},
		{"volume too high", "playback:\n  default_volume: 1.5\n", "default_volume"},
		{"volume negative", "playback:\n  default_volume: -0.1\n", "default_volume"},
		{"negative pacing", "playback:\n  frame_pacing: -1ms\n", "frame_pacing"},
		{"alias without bang", "playback:\n  aliases: [\"play\"]\n", "aliases[0]"},
		{"alias shadows stop", "playback:\n  aliases: [\"!stop\"]\n", "built-in"},
		{"duplicate alias", "playback:\n  aliases: [\"!p\", \"!p\"]\n", "duplicate"},
		{"alias with disallowed char", "playback:\n  aliases: [\"!p+lay\"]\n", "removed from chat commands"},
		{"invalid resolver", "media:\n  resolver: torrent\n", "media.resolver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(minimalYAML + tt.extra))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
