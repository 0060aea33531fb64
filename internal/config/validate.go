package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /, got %q", c.Server.WSPath)
	}

	if c.Relay.MaxParticipantsPerBoard < 0 {
		return errors.New("relay.max_participants_per_board must be >= 0")
	}
	if c.Relay.SendBuffer < 1 {
		return errors.New("relay.send_buffer must be >= 1")
	}
	if c.Relay.MaxFrameBytes < 64 {
		return fmt.Errorf("relay.max_frame_bytes must be >= 64, got %d", c.Relay.MaxFrameBytes)
	}
	if c.Relay.PongTimeout <= c.Relay.PingInterval {
		return fmt.Errorf("relay.pong_timeout (%s) must exceed ping_interval (%s)", c.Relay.PongTimeout, c.Relay.PingInterval)
	}
	if c.Relay.RateLimit < 0 {
		return errors.New("relay.rate_limit must be >= 0")
	}
	if c.Relay.RateLimit > 0 && c.Relay.RateBurst < 1 {
		return errors.New("relay.rate_burst must be >= 1 when rate_limit is set")
	}

	if err := c.Session.validate(); err != nil {
		return err
	}

	if c.Presence.SweepInterval > c.Presence.StaleAfter {
		return fmt.Errorf("presence.sweep_interval (%s) cannot exceed stale_after (%s)", c.Presence.SweepInterval, c.Presence.StaleAfter)
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Audit.BatchSize < 1 {
		return errors.New("audit.batch_size must be >= 1")
	}
	if c.Audit.BufferSize < 1 {
		return errors.New("audit.buffer_size must be >= 1")
	}
	if c.Audit.MaxBufferSize < c.Audit.BufferSize {
		return fmt.Errorf("audit.max_buffer_size (%d) cannot be below buffer_size (%d)", c.Audit.MaxBufferSize, c.Audit.BufferSize)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (s *SessionConfig) validate() error {
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("session.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("session.url must use ws or wss, got %q", s.URL)
	}
	switch s.ReconnectPolicy {
	case PolicyFixed, PolicyExponential:
	default:
		return fmt.Errorf("session.reconnect_policy must be %s or %s, got %q", PolicyFixed, PolicyExponential, s.ReconnectPolicy)
	}
	if s.BackoffJitter < 0 || s.BackoffJitter > 1 {
		return errors.New("session.backoff_jitter must be between 0 and 1")
	}
	if s.MaxAttempts < 0 {
		return errors.New("session.max_attempts must be >= 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
