package session

import (
	"errors"
	"time"

	"github.com/rickgao/whiteboard-relay/internal/model"
)

// Errors
var (
	ErrClosed           = errors.New("session closed")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrDial             = errors.New("dial relay")
)

// State is the session's connectivity.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Session.
type Config struct {
	URL           string // Relay WebSocket endpoint, e.g. ws://localhost:8080/ws
	BoardID       string
	Participant   model.Participant
	Policy        ReconnectPolicy // nil uses DefaultPolicy()
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	MessageBuffer int // Inbound envelopes buffered for Messages()
}

func (c *Config) applyDefaults() {
	if c.Policy == nil {
		c.Policy = DefaultPolicy()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MessageBuffer <= 0 {
		c.MessageBuffer = 256
	}
	if c.Participant.Color == "" {
		c.Participant.Color = model.DefaultColor(c.Participant.ID)
	}
}

// eligible reports whether the session may open a connection at all.
func (c Config) eligible() bool {
	return c.BoardID != "" && c.Participant.Valid()
}

// StateFunc observes state transitions. err is set when the transition was
// caused by a failure.
type StateFunc func(state State, err error)

// Stats contains runtime statistics.
type Stats struct {
	Dials          int64
	DialFailures   int64
	Connects       int64
	CursorsSent    int64
	CursorsDropped int64
	Received       int64
	Undecodable    int64
}
