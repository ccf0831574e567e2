package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// BanDBPath is the sqlite file ban records are persisted to. Empty
	// disables persistence and keeps bans in memory only.
	BanDBPath string `mapstructure:"ban_db_path" yaml:"ban_db_path"`
	// DefaultBanLength is the fallback ban duration in minutes when a ban
	// command omits or mangles the length argument.
	DefaultBanLength int `mapstructure:"default_ban_length" yaml:"default_ban_length"`

	// MessageRateLimit caps inbound frames per connection per minute, a
	// crude flood guard. Zero disables it.
	MessageRateLimit int `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`

	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`

	// Colors is the avatar color palette. The reserved "pope" value is not
	// part of the palette; it is only reachable through the pope command.
	Colors []string `mapstructure:"colors" yaml:"colors"`

	Prefs PrefsConfig `mapstructure:"prefs" yaml:"prefs"`
}

// ReconnectConfig controls the dropped-connection grace window.
type ReconnectConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GraceWindow is how long a dropped session stays resumable: one full round
// of client retry attempts.
func (r ReconnectConfig) GraceWindow() time.Duration {
	return time.Duration(r.MaxAttempts) * r.Timeout
}

// PrefsConfig carries the preference templates rooms are created from.
type PrefsConfig struct {
	Public  RoomPrefs `mapstructure:"public" yaml:"public"`
	Private RoomPrefs `mapstructure:"private" yaml:"private"`
}

// RoomPrefs is the per-room policy template. A room receives its own copy at
// creation time; later template changes do not affect live rooms.
type RoomPrefs struct {
	RoomMax     int            `mapstructure:"room_max" yaml:"room_max"`
	DefaultName string         `mapstructure:"default_name" yaml:"default_name"`
	CharLimit   int            `mapstructure:"char_limit" yaml:"char_limit"`
	NameLimit   int            `mapstructure:"name_limit" yaml:"name_limit"`
	Pitch       RangePref      `mapstructure:"pitch" yaml:"pitch"`
	Speed       RangePref      `mapstructure:"speed" yaml:"speed"`
	Runlevel    map[string]int `mapstructure:"runlevel" yaml:"runlevel,omitempty"`
	GodWord     string         `mapstructure:"godword" yaml:"godword,omitempty"`
}

// RangePref bounds an integer voice parameter. Default is either an integer
// literal or the string "random", picked uniformly within [Min, Max].
type RangePref struct {
	Min     int    `mapstructure:"min" yaml:"min"`
	Max     int    `mapstructure:"max" yaml:"max"`
	Default string `mapstructure:"default" yaml:"default"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		BanDBPath:         "bans.db",
		DefaultBanLength:  1440,
		MessageRateLimit:  300,
		Reconnect: ReconnectConfig{
			Enabled:     true,
			MaxAttempts: 5,
			Timeout:     5 * time.Second,
		},
		Colors: []string{"purple", "blue", "green", "red", "pink", "brown", "black"},
		Prefs: PrefsConfig{
			Public: RoomPrefs{
				RoomMax:     16,
				DefaultName: "Anonymous",
				CharLimit:   250,
				NameLimit:   24,
				Pitch:       RangePref{Min: 1, Max: 100, Default: "random"},
				Speed:       RangePref{Min: 100, Max: 400, Default: "175"},
				Runlevel:    map[string]int{},
			},
			Private: RoomPrefs{
				RoomMax:     16,
				DefaultName: "Anonymous",
				CharLimit:   250,
				NameLimit:   24,
				Pitch:       RangePref{Min: 1, Max: 100, Default: "random"},
				Speed:       RangePref{Min: 100, Max: 400, Default: "175"},
				Runlevel:    map[string]int{},
				GodWord:     "",
			},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.BanDBPath != "" {
		c.BanDBPath = other.BanDBPath
	}
	if other.DefaultBanLength != 0 {
		c.DefaultBanLength = other.DefaultBanLength
	}
	if other.MessageRateLimit != 0 {
		c.MessageRateLimit = other.MessageRateLimit
	}
}
