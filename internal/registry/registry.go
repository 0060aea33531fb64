package registry

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Errors
var (
	ErrBoardFull = errors.New("board is at participant capacity")
)

// Handle is a live connection that can receive payloads.
type Handle interface {
	// Send queues payload for delivery. It must not block on the network.
	Send(payload []byte) error
}

// Config configures a Registry.
type Config struct {
	MaxParticipantsPerBoard int // 0 = unbounded
}

// BroadcastResult summarises one fan-out.
type BroadcastResult struct {
	Recipients int // Handles targeted
	Failed     int // Handles whose Send returned an error
}

// BoardStat describes one board channel.
type BoardStat struct {
	BoardID      string `json:"board_id"`
	Participants int    `json:"participants"`
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Boards       int
	Participants int
}

// Registry maps boards to their participants' connection handles.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	boards map[string]map[string]Handle
}

// New creates an empty Registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		cfg:    cfg,
		logger: logger,
		boards: make(map[string]map[string]Handle),
	}
}

// Register maps participantID to h on boardID, creating the board if needed.
// It returns the handle that was replaced, or nil.
func (r *Registry) Register(boardID, participantID string, h Handle) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, ok := r.boards[boardID]
	if !ok {
		participants = make(map[string]Handle)
		r.boards[boardID] = participants
	}

	old, exists := participants[participantID]
	if !exists && r.cfg.MaxParticipantsPerBoard > 0 && len(participants) >= r.cfg.MaxParticipantsPerBoard {
		return nil, ErrBoardFull
	}

	participants[participantID] = h

	r.logger.Debug("participant registered",
		"board", boardID,
		"participant", participantID,
		"replaced", exists,
		"participants", len(participants),
	)

	if exists && old != h {
		return old, nil
	}
	return nil, nil
}

// Unregister removes participantID from boardID. Empty boards are dropped.
func (r *Registry) Unregister(boardID, participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(boardID, participantID, nil)
}

// UnregisterHandle removes participantID only while it is still mapped to h.
// A connection that was replaced by a newer one cannot evict its successor.
func (r *Registry) UnregisterHandle(boardID, participantID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(boardID, participantID, h)
}

// removeLocked must be called with r.mu held.
func (r *Registry) removeLocked(boardID, participantID string, h Handle) bool {
	participants, ok := r.boards[boardID]
	if !ok {
		return false
	}

	cur, ok := participants[participantID]
	if !ok || (h != nil && cur != h) {
		return false
	}

	delete(participants, participantID)
	if len(participants) == 0 {
		delete(r.boards, boardID)
		r.logger.Debug("board channel closed", "board", boardID)
	}

	return true
}

// BroadcastExcept sends payload to every handle on boardID except excludeID.
func (r *Registry) BroadcastExcept(boardID, excludeID string, payload []byte) BroadcastResult {
	r.mu.RLock()
	participants := r.boards[boardID]
	recipients := make([]Handle, 0, len(participants))
	ids := make([]string, 0, len(participants))
	for id, h := range participants {
		if id == excludeID {
			continue
		}
		recipients = append(recipients, h)
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	result := BroadcastResult{Recipients: len(recipients)}
	for i, h := range recipients {
		if err := h.Send(payload); err != nil {
			result.Failed++
			r.logger.Debug("broadcast send failed",
				"board", boardID,
				"participant", ids[i],
				"error", err,
			)
		}
	}

	return result
}

// Lookup returns the handle mapped for participantID on boardID.
func (r *Registry) Lookup(boardID, participantID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.boards[boardID][participantID]
	return h, ok
}

// HasBoard reports whether any participant is registered on boardID.
func (r *Registry) HasBoard(boardID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.boards[boardID]
	return ok
}

// ParticipantCount returns the number of participants on boardID.
func (r *Registry) ParticipantCount(boardID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.boards[boardID])
}

// Boards returns every active board sorted by id.
func (r *Registry) Boards() []BoardStat {
	r.mu.RLock()
	stats := lo.MapToSlice(r.boards, func(id string, participants map[string]Handle) BoardStat {
		return BoardStat{BoardID: id, Participants: len(participants)}
	})
	r.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].BoardID < stats[j].BoardID })
	return stats
}

// Stats returns current totals.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, participants := range r.boards {
		total += len(participants)
	}

	return Stats{
		Boards:       len(r.boards),
		Participants: total,
	}
}
