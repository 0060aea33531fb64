package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr                      = ":8080"
	DefaultWSPath                    = "/ws"
	DefaultReadHeaderTimeout         = 10 * time.Second
	DefaultShutdownTimeout           = 10 * time.Second
	DefaultStatsInterval             = time.Minute
	DefaultSendBuffer                = 256
	DefaultWriteTimeout              = 5 * time.Second
	DefaultPingInterval              = 20 * time.Second
	DefaultPongTimeout               = 60 * time.Second
	DefaultMaxFrameBytes             = 4096
	DefaultRateLimit                 = 60.0
	DefaultRateBurst                 = 30
	DefaultSessionURL                = "ws://localhost:8080/ws"
	DefaultReconnectPolicy           = PolicyFixed
	DefaultReconnectAfterClose       = 3 * time.Second
	DefaultReconnectAfterDialFailure = 5 * time.Second
	DefaultBackoffMax                = 60 * time.Second
	DefaultDialTimeout               = 10 * time.Second
	DefaultStaleAfter                = 3 * time.Second
	DefaultSweepInterval             = 1 * time.Second
	DefaultDBPort                    = 5432
	DefaultDBSSLMode                 = "prefer"
	DefaultMaxConns                  = 4
	DefaultMinConns                  = 1
	DefaultBatchSize                 = 500
	DefaultFlushInterval             = 2 * time.Second
	DefaultBufferSize                = 1024
	DefaultMaxBufferSize             = 65536
	DefaultMetricsPath               = "/metrics"
	DefaultLogLevel                  = "info"
	DefaultLogFormat                 = "text"
)

// Reconnect policy names.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.StatsInterval == 0 {
		c.Server.StatsInterval = DefaultStatsInterval
	}

	// Relay defaults. RateLimit keeps an explicit 0 only when burst is also
	// set, so an empty section still gets limiting.
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = DefaultSendBuffer
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = DefaultWriteTimeout
	}
	if c.Relay.PingInterval == 0 {
		c.Relay.PingInterval = DefaultPingInterval
	}
	if c.Relay.PongTimeout == 0 {
		c.Relay.PongTimeout = DefaultPongTimeout
	}
	if c.Relay.MaxFrameBytes == 0 {
		c.Relay.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.Relay.RateLimit == 0 && c.Relay.RateBurst == 0 {
		c.Relay.RateLimit = DefaultRateLimit
		c.Relay.RateBurst = DefaultRateBurst
	}

	// Session defaults
	if c.Session.URL == "" {
		c.Session.URL = DefaultSessionURL
	}
	if c.Session.ReconnectPolicy == "" {
		c.Session.ReconnectPolicy = DefaultReconnectPolicy
	}
	if c.Session.ReconnectAfterClose == 0 {
		c.Session.ReconnectAfterClose = DefaultReconnectAfterClose
	}
	if c.Session.ReconnectAfterDialFailure == 0 {
		c.Session.ReconnectAfterDialFailure = DefaultReconnectAfterDialFailure
	}
	if c.Session.BackoffMax == 0 {
		c.Session.BackoffMax = DefaultBackoffMax
	}
	if c.Session.DialTimeout == 0 {
		c.Session.DialTimeout = DefaultDialTimeout
	}

	// Presence defaults
	if c.Presence.StaleAfter == 0 {
		c.Presence.StaleAfter = DefaultStaleAfter
	}
	if c.Presence.SweepInterval == 0 {
		c.Presence.SweepInterval = DefaultSweepInterval
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Audit defaults
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultFlushInterval
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultBufferSize
	}
	if c.Audit.MaxBufferSize == 0 {
		c.Audit.MaxBufferSize = DefaultMaxBufferSize
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
