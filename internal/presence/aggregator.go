package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"

	"github.com/rickgao/whiteboard-relay/internal/model"
)

// Defaults
const (
	DefaultStaleAfter    = 3 * time.Second
	DefaultSweepInterval = time.Second
)

// Config configures an Aggregator.
type Config struct {
	SelfID        string        // Local participant, whose envelopes are ignored
	StaleAfter    time.Duration // Cursor lifetime without updates
	SweepInterval time.Duration // Cadence of Run's sweep
}

// Stats contains runtime statistics.
type Stats struct {
	Applied int64
	Ignored int64
	Expired int64
	Active  int
}

// Aggregator tracks remote cursors keyed by participant id.
type Aggregator struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	cursors map[string]model.RemoteCursor
	stats   Stats
}

// New creates an Aggregator. clk may be nil to use the wall clock.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &Aggregator{
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
		cursors: make(map[string]model.RemoteCursor),
	}
}

// Apply folds one envelope into the cursor set. It reports whether the set
// changed.
func (a *Aggregator) Apply(env model.Envelope) bool {
	h := env.Meta()
	if h.UserID == "" || h.UserID == a.cfg.SelfID {
		a.count(func(s *Stats) { s.Ignored++ })
		return false
	}

	switch e := env.(type) {
	case model.Join:
		a.upsert(h, nil)
	case model.CursorMove:
		x, y, ok := e.XY()
		if !ok {
			a.logger.Debug("cursor position not numeric", "participant", h.UserID)
			a.upsert(h, nil)
			break
		}
		a.upsert(h, &model.Position{X: x, Y: y})
	default:
		a.count(func(s *Stats) { s.Ignored++ })
		return false
	}
	return true
}

// upsert refreshes the participant's entry. Metadata is only overwritten
// when the envelope carries it, and pos is only applied when present.
func (a *Aggregator) upsert(h model.Header, pos *model.Position) {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cursors[h.UserID]
	if !ok {
		c = model.RemoteCursor{
			ParticipantID:    h.UserID,
			ParticipantColor: model.DefaultColor(h.UserID),
		}
	}
	if h.UserName != "" {
		c.ParticipantName = h.UserName
	}
	if h.UserColor != "" {
		c.ParticipantColor = h.UserColor
	}
	if pos != nil {
		c.X, c.Y = pos.X, pos.Y
	}
	c.LastUpdated = now

	a.cursors[h.UserID] = c
	a.stats.Applied++
}

// Sweep removes cursors not updated for longer than the stale threshold and
// returns how many were removed.
func (a *Aggregator) Sweep() int {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id, c := range a.cursors {
		if now.Sub(c.LastUpdated) > a.cfg.StaleAfter {
			delete(a.cursors, id)
			removed++
		}
	}
	a.stats.Expired += int64(removed)

	if removed > 0 {
		a.logger.Debug("expired stale cursors", "removed", removed, "remaining", len(a.cursors))
	}
	return removed
}

// Run sweeps on every interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := a.clock.Ticker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Sweep()
		}
	}
}

// Consume applies every envelope from in until ctx is cancelled or in closes.
func (a *Aggregator) Consume(ctx context.Context, in <-chan model.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			a.Apply(env)
		}
	}
}

// Snapshot returns the current cursors sorted by participant id.
func (a *Aggregator) Snapshot() []model.RemoteCursor {
	a.mu.RLock()
	out := lo.Values(a.cursors)
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Len returns the number of tracked cursors.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cursors)
}

// Stats returns current statistics.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.stats
	s.Active = len(a.cursors)
	return s
}

func (a *Aggregator) count(fn func(*Stats)) {
	a.mu.Lock()
	fn(&a.stats)
	a.mu.Unlock()
}
