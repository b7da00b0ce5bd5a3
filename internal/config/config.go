// Package config provides the configuration schema and loader for the
// Chorale music bot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Chorale process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolverStrategy selects how a requested link is turned into something the
// decoder can read.
type ResolverStrategy string

const (
	// ResolverStream asks yt-dlp for a direct media URL and lets ffmpeg read it.
	ResolverStream ResolverStrategy = "stream"

	// ResolverDownload has yt-dlp download and transcode to a local WAV file
	// in the cache directory. The file is removed after playback.
	ResolverDownload ResolverStrategy = "download"
)

// IsValid reports whether r is a recognised resolver strategy.
func (r ResolverStrategy) IsValid() bool {
	return r == ResolverStream || r == ResolverDownload
}

// Defaults applied by [ApplyDefaults] for zero-valued fields.
const (
	DefaultVolume       = 0.2
	DefaultFramePacing  = 17 * time.Millisecond
	DefaultYTDLPPath    = "yt-dlp"
	DefaultFFmpegPath   = "ffmpeg"
	DefaultCacheDir     = "/dev/shm/chorale"
	DefaultResolverMode = ResolverStream
)

// Config is the root configuration structure for Chorale.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Playback PlaybackConfig `yaml:"playback"`
	Media    MediaConfig    `yaml:"media"`
}

// ServerConfig holds the admin HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the admin server exposing /healthz,
	// /readyz and /metrics (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the session credentials and the channels the bot
// operates in.
type DiscordConfig struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string `yaml:"token"`

	// GuildID is the guild that hosts the voice channel.
	GuildID string `yaml:"guild_id"`

	// VoiceChannelID is the voice channel audio is played into.
	VoiceChannelID string `yaml:"voice_channel_id"`

	// TextChannelID restricts command parsing to one text channel.
	// Empty accepts commands from every channel of the guild.
	TextChannelID string `yaml:"text_channel_id"`

	// Nickname is the display name set for the bot in the guild. Optional.
	Nickname string `yaml:"nickname"`
}

// PlaybackConfig tunes the audio pipeline and the chat command surface.
type PlaybackConfig struct {
	// DefaultVolume is the gain in [0, 1] used until a !volume command is
	// received. Zero means [DefaultVolume]; use a tiny positive value for
	// near-silence.
	DefaultVolume float32 `yaml:"default_volume"`

	// FramePacing is the delay between two emitted 20 ms frames. It is kept
	// slightly below real time to absorb processing jitter.
	FramePacing time.Duration `yaml:"frame_pacing"`

	// Aliases lists additional play triggers that behave like "!yt".
	Aliases []string `yaml:"aliases"`
}

// MediaConfig configures the external acquisition and decoding tools.
type MediaConfig struct {
	// Resolver selects the primary resolver strategy. The other strategy is
	// used as fallback.
	Resolver ResolverStrategy `yaml:"resolver"`

	// YTDLPPath is the yt-dlp executable name or path.
	YTDLPPath string `yaml:"ytdlp_path"`

	// FFmpegPath is the ffmpeg executable name or path.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// CacheDir holds transcoded files of the download strategy. A tmpfs
	// location keeps disk I/O off the hot path.
	CacheDir string `yaml:"cache_dir"`
}
