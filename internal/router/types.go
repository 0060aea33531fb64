package router

import (
	"errors"

	"github.com/rickgao/whiteboard-relay/internal/registry"
)

// Errors
var (
	ErrMissingBoard       = errors.New("boardId is required")
	ErrMissingParticipant = errors.New("userId is required")
)

// Identity is who a connection claimed to be at handshake.
type Identity struct {
	BoardID       string
	ParticipantID string
}

// Validate checks that both identifiers are present.
func (id Identity) Validate() error {
	if id.BoardID == "" {
		return ErrMissingBoard
	}
	if id.ParticipantID == "" {
		return ErrMissingParticipant
	}
	return nil
}

// Broadcaster fans a payload out to a board. *registry.Registry implements it.
type Broadcaster interface {
	BroadcastExcept(boardID, excludeID string, payload []byte) registry.BroadcastResult
}

// Outcome is what the router did with one frame.
type Outcome int

const (
	OutcomeRouted Outcome = iota
	OutcomeMalformed
	OutcomeMismatch
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	Mismatched       int64
	UnknownMessages  int64
	Deliveries       int64
	DeliveryFailures int64
}
