package config

import "time"

// Relay selects how new messages fan out across server processes.
type Relay struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	NATSURL  string `mapstructure:"nats_url" yaml:"nats_url"`
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`
	Subject  string `mapstructure:"subject" yaml:"subject"`
}

const (
	RelayLocal = "local"
	RelayNATS  = "nats"
	RelayRedis = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	WSFramesPerSecond float64 `mapstructure:"ws_frames_per_second" yaml:"ws_frames_per_second"`
	WSFrameBurst      int     `mapstructure:"ws_frame_burst" yaml:"ws_frame_burst"`

	AnnouncementSeed []string `mapstructure:"announcement_seed" yaml:"announcement_seed"`

	Relay Relay `mapstructure:"relay" yaml:"relay"`

	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "practicechat.db",
		JWTSecret:         "change-me-in-production",
		JWTIssuer:         "practicechat",
		JWTAudience:       "practicechat-clients",
		JWTTTL:            24 * time.Hour,
		WSFramesPerSecond: 5,
		WSFrameBurst:      10,
		AnnouncementSeed:  []string{"Welcome to the practice announcements channel."},
		Relay: Relay{
			Backend: RelayLocal,
			Subject: "practicechat.messages",
		},
		MetricsEnabled: true,
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
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Relay.Backend != "" {
		c.Relay.Backend = other.Relay.Backend
	}
}
