package router

import (
	"log/slog"
	"sync"

	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/model"
)

// Router validates inbound frames and fans them out to the sender's board.
type Router interface {
	// Route handles one frame read from the connection identified by from.
	// It never returns an error: bad frames are dropped and counted.
	Route(from Identity, frame []byte) Outcome

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	out     Broadcaster
	metrics *metrics.Relay
	logger  *slog.Logger

	mu    sync.Mutex
	stats RouterStats
}

// NewRouter creates a Message Router that broadcasts through out.
func NewRouter(out Broadcaster, m *metrics.Relay, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		out:     out,
		metrics: m,
		logger:  logger,
	}
}

// Route parses and routes a single frame.
func (r *router) Route(from Identity, frame []byte) Outcome {
	r.count(func(s *RouterStats) { s.MessagesReceived++ })
	r.metrics.FrameReceived()

	env, err := model.Decode(frame)
	if err != nil {
		r.logger.Warn("dropping malformed frame",
			"board", from.BoardID,
			"participant", from.ParticipantID,
			"error", err,
		)
		r.count(func(s *RouterStats) { s.ParseErrors++ })
		r.metrics.FrameDropped(metrics.ReasonMalformed)
		return OutcomeMalformed
	}

	if !env.Meta().From(from.BoardID, from.ParticipantID) {
		r.logger.Warn("dropping frame with foreign identity",
			"board", from.BoardID,
			"participant", from.ParticipantID,
			"frame_board", env.Meta().BoardID,
			"frame_participant", env.Meta().UserID,
		)
		r.count(func(s *RouterStats) { s.Mismatched++ })
		r.metrics.FrameDropped(metrics.ReasonMismatch)
		return OutcomeMismatch
	}

	switch env.(type) {
	case model.Join, model.CursorMove:
		// Broadcast the sender's bytes untouched; coordinates stay opaque.
		result := r.out.BroadcastExcept(from.BoardID, from.ParticipantID, frame)
		r.count(func(s *RouterStats) {
			s.MessagesRouted++
			s.Deliveries += int64(result.Recipients - result.Failed)
			s.DeliveryFailures += int64(result.Failed)
		})
		r.metrics.FrameRouted(string(env.Kind()), result.Recipients, result.Failed)

		if env.Kind() == model.KindJoin {
			r.logger.Debug("participant announced",
				"board", from.BoardID,
				"participant", from.ParticipantID,
				"name", env.Meta().UserName,
				"recipients", result.Recipients,
			)
		}
		return OutcomeRouted

	default:
		r.logger.Debug("skipping message type",
			"board", from.BoardID,
			"participant", from.ParticipantID,
			"type", env.Kind(),
		)
		r.count(func(s *RouterStats) { s.UnknownMessages++ })
		r.metrics.FrameDropped(metrics.ReasonUnknownKind)
		return OutcomeIgnored
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *router) count(fn func(*RouterStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
