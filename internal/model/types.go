package model

import (
	"time"

	"github.com/google/uuid"
)

// AnonymousParticipant is the participant id used by signed-out clients.
// Sessions never open a relay connection for it.
const AnonymousParticipant = "anonymous"

// palette is the set of colours handed out when a participant has none.
var palette = []string{"#3b82f6", "#10b981", "#f59e0b", "#ef4444", "#8b5cf6"}

// -----------------------------------------------------------------------------
// Participants
// -----------------------------------------------------------------------------

// Participant identifies one connected user session within a board.
type Participant struct {
	ID    string // Caller-supplied participant id
	Name  string // Display name
	Color string // Display colour, e.g. "#FFD700"
}

// Valid reports whether the participant can join a relay.
func (p Participant) Valid() bool {
	return p.ID != "" && p.ID != AnonymousParticipant
}

// DefaultColor derives a stable display colour from a participant id.
func DefaultColor(participantID string) string {
	sum := 0
	for _, r := range participantID {
		sum += int(r)
	}
	return palette[sum%len(palette)]
}

// RemoteCursor is the renderable view of another participant's cursor.
type RemoteCursor struct {
	ParticipantID    string
	ParticipantName  string
	ParticipantColor string
	X                float64
	Y                float64
	LastUpdated      time.Time // Local receive time, not the sender timestamp
}

// -----------------------------------------------------------------------------
// Audit Types
// -----------------------------------------------------------------------------

// SessionRecord describes one finished relay connection.
// No cursor positions are recorded.
type SessionRecord struct {
	ConnID         uuid.UUID // Connection id assigned at upgrade
	BoardID        string
	ParticipantID  string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
	CloseCode      int   // WebSocket close code observed (1006 if none)
	FramesIn       int64 // Frames read from the participant
	FramesOut      int64 // Frames written to the participant
}

// Duration returns how long the connection was open.
func (r SessionRecord) Duration() time.Duration {
	return r.DisconnectedAt.Sub(r.ConnectedAt)
}
