package config

import "time"

// Config is the root configuration shared by the relay and cursorbot.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Relay    RelayConfig    `yaml:"relay"`
	Session  SessionConfig  `yaml:"session"`
	Presence PresenceConfig `yaml:"presence"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	WSPath            string        `yaml:"ws_path"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	StatsInterval     time.Duration `yaml:"stats_interval"` // Periodic stats log cadence
}

// RelayConfig holds per-board and per-connection limits.
type RelayConfig struct {
	MaxParticipantsPerBoard int           `yaml:"max_participants_per_board"` // 0 = unbounded
	SendBuffer              int           `yaml:"send_buffer"`
	WriteTimeout            time.Duration `yaml:"write_timeout"`
	PingInterval            time.Duration `yaml:"ping_interval"`
	PongTimeout             time.Duration `yaml:"pong_timeout"`
	MaxFrameBytes           int64         `yaml:"max_frame_bytes"`
	RateLimit               float64       `yaml:"rate_limit"` // Frames per second, 0 disables
	RateBurst               int           `yaml:"rate_burst"`
}

// SessionConfig holds client session settings used by cursorbot.
type SessionConfig struct {
	URL                       string        `yaml:"url"`
	BoardID                   string        `yaml:"board_id"`
	ReconnectPolicy           string        `yaml:"reconnect_policy"` // "fixed" or "exponential"
	ReconnectAfterClose       time.Duration `yaml:"reconnect_after_close"`
	ReconnectAfterDialFailure time.Duration `yaml:"reconnect_after_dial_failure"`
	BackoffMax                time.Duration `yaml:"backoff_max"`
	BackoffJitter             float64       `yaml:"backoff_jitter"`
	MaxAttempts               int           `yaml:"max_attempts"` // exponential only, 0 = unlimited
	DialTimeout               time.Duration `yaml:"dial_timeout"`
}

// PresenceConfig holds remote cursor expiry settings.
type PresenceConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DatabaseConfig holds the optional session audit database.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// AuditConfig holds session record batching settings.
type AuditConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxBufferSize int           `yaml:"max_buffer_size"`
}

// MetricsConfig holds Prometheus settings. Port 0 serves metrics on the
// relay listener.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether metrics are exposed. Unset means enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
