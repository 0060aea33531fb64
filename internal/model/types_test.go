package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParticipantValid(t *testing.T) {
	tests := []struct {
		name string
		p    Participant
		want bool
	}{
		{name: "named", p: Participant{ID: "u-1", Name: "ada"}, want: true},
		{name: "empty id", p: Participant{Name: "ada"}, want: false},
		{name: "anonymous", p: Participant{ID: AnonymousParticipant}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Valid())
		})
	}
}

func TestDefaultColor(t *testing.T) {
	// "ab" = 97 + 98 = 195, 195 % 5 = 0
	assert.Equal(t, "#3b82f6", DefaultColor("ab"))
	// "b" = 98, 98 % 5 = 3
	assert.Equal(t, "#ef4444", DefaultColor("b"))
	assert.Equal(t, DefaultColor("user-42"), DefaultColor("user-42"), "stable for the same id")
	assert.Equal(t, palette[0], DefaultColor(""))
}

func TestSessionRecordDuration(t *testing.T) {
	start := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	r := SessionRecord{
		ConnID:         uuid.New(),
		BoardID:        "board-1",
		ParticipantID:  "u-1",
		ConnectedAt:    start,
		DisconnectedAt: start.Add(90 * time.Second),
		CloseCode:      1000,
	}

	assert.Equal(t, 90*time.Second, r.Duration())
}
