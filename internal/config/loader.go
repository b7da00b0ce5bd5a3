package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chorale/internal/command"
)

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Playback.DefaultVolume == 0 {
		cfg.Playback.DefaultVolume = DefaultVolume
	}
	if cfg.Playback.FramePacing == 0 {
		cfg.Playback.FramePacing = DefaultFramePacing
	}
	if cfg.Media.Resolver == "" {
		cfg.Media.Resolver = DefaultResolverMode
	}
	if cfg.Media.YTDLPPath == "" {
		cfg.Media.YTDLPPath = DefaultYTDLPPath
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Media.CacheDir == "" {
		cfg.Media.CacheDir = DefaultCacheDir
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.VoiceChannelID == "" {
		errs = append(errs, errors.New("discord.voice_channel_id is required"))
	}
	if cfg.Discord.TextChannelID == "" {
		slog.Warn("discord.text_channel_id is empty; commands are accepted from every channel of the guild")
	}

	// Playback
	if v := cfg.Playback.DefaultVolume; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("playback.default_volume %.2f is out of range [0, 1]", v))
	}
	if cfg.Playback.FramePacing < 0 {
		errs = append(errs, fmt.Errorf("playback.frame_pacing %s must not be negative", cfg.Playback.FramePacing))
	}
	aliasesSeen := make(map[string]int, len(cfg.Playback.Aliases))
	for i, alias := range cfg.Playback.Aliases {
		prefix := fmt.Sprintf("playback.aliases[%d]", i)
		if !strings.HasPrefix(alias, "!") || len(alias) < 2 {
			errs = append(errs, fmt.Errorf("%s %q must start with '!' followed by a name", prefix, alias))
			continue
		}
		if strings.ContainsAny(alias, " \t") {
			errs = append(errs, fmt.Errorf("%s %q must not contain whitespace", prefix, alias))
		} else if command.Sanitize(alias) != alias {
			// Chat text is sanitized before parsing, so such an alias never matches.
			errs = append(errs, fmt.Errorf("%s %q contains characters removed from chat commands", prefix, alias))
		}
		if alias == "!stop" || alias == "!volume" {
			errs = append(errs, fmt.Errorf("%s %q shadows a built-in command", prefix, alias))
		}
		if prev, ok := aliasesSeen[alias]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of playback.aliases[%d]", prefix, alias, prev))
		}
		aliasesSeen[alias] = i
	}

	// Media
	if cfg.Media.Resolver != "" && !cfg.Media.Resolver.IsValid() {
		errs = append(errs, fmt.Errorf("media.resolver %q is invalid; valid values: stream, download", cfg.Media.Resolver))
	}

	return errors.Join(errs...)
}
