package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformed       = errors.New("malformed envelope")
	ErrMissingType     = errors.New("envelope type is required")
	ErrMissingPosition = errors.New("cursor_move requires a position")
)

// Kind is the envelope type tag.
type Kind string

const (
	KindJoin       Kind = "join"
	KindCursorMove Kind = "cursor_move"
)

// Header holds the fields every envelope carries.
type Header struct {
	BoardID   string
	UserID    string
	UserName  string
	UserColor string
	Timestamp int64 // Sender clock, ms since epoch
}

// Meta returns the envelope header.
func (h Header) Meta() Header { return h }

// From reports whether the header names the given board and participant.
func (h Header) From(boardID, userID string) bool {
	return h.BoardID == boardID && h.UserID == userID
}

// Envelope is one decoded relay message. The set of implementations is closed:
// Join, CursorMove and Unknown.
type Envelope interface {
	Kind() Kind
	Meta() Header
	envelope()
}

// Join announces a participant and its display metadata.
type Join struct {
	Header
}

// CursorMove announces a new cursor position. Position is kept as the raw
// JSON the sender produced so the relay never reinterprets coordinates.
type CursorMove struct {
	Header
	Position json.RawMessage
}

// Unknown is any envelope whose type the relay does not recognise.
type Unknown struct {
	Header
	Type string
}

func (Join) Kind() Kind       { return KindJoin }
func (CursorMove) Kind() Kind { return KindCursorMove }
func (u Unknown) Kind() Kind  { return Kind(u.Type) }

func (Join) envelope()       {}
func (CursorMove) envelope() {}
func (Unknown) envelope()    {}

// XY parses the position as numeric coordinates.
// ok is false when the sender used a shape clients cannot render.
func (m CursorMove) XY() (x, y float64, ok bool) {
	var p Position
	if err := json.Unmarshal(m.Position, &p); err != nil {
		return 0, 0, false
	}
	return p.X, p.Y, true
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// wireEnvelope is the JSON shape the relay and sessions emit.
type wireEnvelope struct {
	Type      string          `json:"type"`
	BoardID   string          `json:"boardId"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName,omitempty"`
	UserColor string          `json:"userColor,omitempty"`
	Position  json.RawMessage `json:"position,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// inboundEnvelope is the decode side of the wire shape. Only type, boardId,
// userId and position gate routing; metadata fields are read leniently.
type inboundEnvelope struct {
	Type      string          `json:"type"`
	BoardID   string          `json:"boardId"`
	UserID    string          `json:"userId"`
	UserName  json.RawMessage `json:"userName"`
	UserColor json.RawMessage `json:"userColor"`
	Position  json.RawMessage `json:"position"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode parses one frame into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var w inboundEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return nil, ErrMissingType
	}

	h := Header{
		BoardID:   w.BoardID,
		UserID:    w.UserID,
		UserName:  optString(w.UserName),
		UserColor: optString(w.UserColor),
		Timestamp: millis(w.Timestamp),
	}

	switch Kind(w.Type) {
	case KindJoin:
		return Join{Header: h}, nil
	case KindCursorMove:
		if !hasValue(w.Position) {
			return nil, ErrMissingPosition
		}
		return CursorMove{Header: h, Position: w.Position}, nil
	default:
		return Unknown{Header: h, Type: w.Type}, nil
	}
}

// Encode renders an envelope in wire format.
func Encode(env Envelope) ([]byte, error) {
	h := env.Meta()
	w := wireEnvelope{
		Type:      string(env.Kind()),
		BoardID:   h.BoardID,
		UserID:    h.UserID,
		UserName:  h.UserName,
		UserColor: h.UserColor,
		Timestamp: h.Timestamp,
	}
	if m, ok := env.(CursorMove); ok {
		w.Position = m.Position
	}
	return json.Marshal(w)
}

// NewCursorMove builds a cursor_move envelope for numeric coordinates.
func NewCursorMove(h Header, x, y float64) CursorMove {
	pos, _ := json.Marshal(Position{X: x, Y: y})
	return CursorMove{Header: h, Position: pos}
}

// optString returns raw as a string, or "" when it is absent or not a string.
func optString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// millis reads any JSON number as whole milliseconds. Absent or non-numeric
// values read as 0.
func millis(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return int64(f)
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
