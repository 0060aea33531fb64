package relay

import (
	"errors"
	"time"

	"github.com/rickgao/whiteboard-relay/internal/model"
	"github.com/rickgao/whiteboard-relay/internal/version"
)

// Errors
var (
	ErrPeerClosed   = errors.New("peer closed")
	ErrSlowConsumer = errors.New("peer send queue full")
)

// Query parameters carried by the WebSocket handshake.
const (
	QueryBoardID = "boardId"
	QueryUserID  = "userId"
)

// Config configures the relay transport.
type Config struct {
	Path           string        // WebSocket endpoint, default "/ws"
	AllowedOrigins []string      // Empty allows any origin
	SendBuffer     int           // Outbound frames queued per peer
	WriteTimeout   time.Duration // Per-frame write deadline
	PingInterval   time.Duration // Server ping cadence
	PongTimeout    time.Duration // Peer is dropped if no pong within this window
	MaxFrameBytes  int64         // Inbound frame size limit
	RateLimit      float64       // Inbound frames per second, 0 disables
	RateBurst      int
}

// DefaultConfig returns the settings the relay runs with when unconfigured.
func DefaultConfig() Config {
	return Config{
		Path:          "/ws",
		SendBuffer:    256,
		WriteTimeout:  5 * time.Second,
		PingInterval:  20 * time.Second,
		PongTimeout:   60 * time.Second,
		MaxFrameBytes: 4096,
		RateLimit:     60,
		RateBurst:     30,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
}

// RecordSink receives one record per finished connection.
// *buffer.Queue[model.SessionRecord] satisfies it.
type RecordSink interface {
	Push(rec model.SessionRecord) bool
}

// Stats contains runtime statistics.
type Stats struct {
	ActiveConnections int64
	Accepted          int64
	Rejected          int64
	Replaced          int64
	SlowConsumers     int64
	RateLimited       int64
}

// Health is the body served on the health endpoint.
type Health struct {
	Status       string       `json:"status"`
	Build        version.Info `json:"build"`
	Boards       int          `json:"boards"`
	Participants int          `json:"participants"`
	Connections  int64        `json:"connections"`
	Uptime       string       `json:"uptime"`
}
