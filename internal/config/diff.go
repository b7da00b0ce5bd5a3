package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only log level and play aliases are applied at runtime; every other
// changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	AliasesChanged bool
	NewAliases     []string

	// RestartRequired names the changed config keys that only take effect
	// after a restart (e.g. "discord", "media.resolver").
	RestartRequired []string
}

// Changed reports whether any difference was found.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AliasesChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Playback.Aliases, new.Playback.Aliases) {
		d.AliasesChanged = true
		d.NewAliases = slices.Clone(new.Playback.Aliases)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Playback.DefaultVolume != new.Playback.DefaultVolume {
		d.RestartRequired = append(d.RestartRequired, "playback.default_volume")
	}
	if old.Playback.FramePacing != new.Playback.FramePacing {
		d.RestartRequired = append(d.RestartRequired, "playback.frame_pacing")
	}
	if old.Media != new.Media {
		d.RestartRequired = append(d.RestartRequired, "media")
	}

	return d
}
