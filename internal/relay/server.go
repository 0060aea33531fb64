package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/model"
	"github.com/rickgao/whiteboard-relay/internal/registry"
	"github.com/rickgao/whiteboard-relay/internal/router"
	"github.com/rickgao/whiteboard-relay/internal/version"
)

// Server accepts WebSocket connections and serves the relay's HTTP endpoints.
type Server struct {
	cfg      Config
	registry *registry.Registry
	router   router.Router
	metrics  *metrics.Relay
	sink     RecordSink
	logger   *slog.Logger

	upgrader websocket.Upgrader
	mux      *http.ServeMux
	started  time.Time

	mu           sync.Mutex
	peers        map[*peer]struct{}
	shuttingDown bool
	wg           sync.WaitGroup

	accepted    atomic.Int64
	rejected    atomic.Int64
	replaced    atomic.Int64
	slow        atomic.Int64
	rateLimited atomic.Int64
}

// NewServer creates a relay server. m and sink may be nil.
func NewServer(
	cfg Config,
	reg *registry.Registry,
	rt router.Router,
	m *metrics.Relay,
	sink RecordSink,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	s := &Server{
		cfg:      cfg,
		registry: reg,
		router:   rt,
		metrics:  m,
		sink:     sink,
		logger:   logger,
		mux:      http.NewServeMux(),
		started:  time.Now(),
		peers:    make(map[*peer]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.mux.HandleFunc(cfg.Path, s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/debug/boards", s.handleBoards)

	return s
}

// Handle mounts an additional handler, such as the metrics endpoint.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Shutdown stops accepting connections, closes every peer with 1001 and waits
// for their goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	peers := lo.Keys(s.peers)
	s.mu.Unlock()

	s.logger.Info("closing peers", "count", len(peers))
	for _, p := range peers {
		p.closeWith(websocket.CloseGoingAway, "relay shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := int64(len(s.peers))
	s.mu.Unlock()

	return Stats{
		ActiveConnections: active,
		Accepted:          s.accepted.Load(),
		Rejected:          s.rejected.Load(),
		Replaced:          s.replaced.Load(),
		SlowConsumers:     s.slow.Load(),
		RateLimited:       s.rateLimited.Load(),
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	q := r.URL.Query()
	identity := router.Identity{
		BoardID:       q.Get(QueryBoardID),
		ParticipantID: q.Get(QueryUserID),
	}
	if err := identity.Validate(); err != nil {
		s.reject(conn, websocket.ClosePolicyViolation, err.Error(), metrics.RejectMissingIdentity)
		return
	}

	p := newPeer(conn, identity, s.cfg, s.logger)
	p.onSlow = func() {
		s.slow.Add(1)
		s.metrics.SlowConsumer()
	}
	p.onLimited = func() {
		s.rateLimited.Add(1)
		s.metrics.FrameDropped(metrics.ReasonRateLimited)
	}

	if !s.track(p) {
		s.reject(conn, websocket.CloseGoingAway, "relay shutting down", metrics.RejectShuttingDown)
		return
	}
	defer s.untrack(p)

	replaced, err := s.registry.Register(identity.BoardID, identity.ParticipantID, p)
	if err != nil {
		s.reject(conn, websocket.CloseTryAgainLater, err.Error(), metrics.RejectBoardFull)
		return
	}
	if old, ok := replaced.(*peer); ok {
		s.replaced.Add(1)
		old.logger.Info("connection replaced", "by", p.id.String())
		old.closeWith(websocket.CloseNormalClosure, "replaced by newer connection")
	}

	s.accepted.Add(1)
	s.metrics.ConnectionOpened()
	s.metrics.SetBoards(s.registry.Stats().Boards)

	connectedAt := time.Now()
	p.logger.Info("participant connected", "remote", r.RemoteAddr)

	go p.writePump()
	code := p.readPump(s.router.Route)

	s.registry.UnregisterHandle(identity.BoardID, identity.ParticipantID, p)
	s.metrics.ConnectionClosed()
	s.metrics.SetBoards(s.registry.Stats().Boards)

	p.closeWith(code, "")
	<-p.writerDone
	if p.closeCode != code && code == websocket.CloseAbnormalClosure {
		code = p.closeCode
	}

	rec := model.SessionRecord{
		ConnID:         p.id,
		BoardID:        identity.BoardID,
		ParticipantID:  identity.ParticipantID,
		RemoteAddr:     r.RemoteAddr,
		ConnectedAt:    connectedAt,
		DisconnectedAt: time.Now(),
		CloseCode:      code,
		FramesIn:       p.framesIn.Load(),
		FramesOut:      p.framesOut.Load(),
	}
	p.logger.Info("participant disconnected",
		"code", code,
		"duration", rec.Duration(),
		"frames_in", rec.FramesIn,
		"frames_out", rec.FramesOut,
	)

	if s.sink != nil && !s.sink.Push(rec) {
		s.metrics.AuditDropped(1)
	}
}

// reject closes a freshly upgraded connection that was never registered.
func (s *Server) reject(conn *websocket.Conn, code int, reason, metric string) {
	s.rejected.Add(1)
	s.metrics.HandshakeRejected(metric)
	s.logger.Info("handshake rejected", "remote", conn.RemoteAddr().String(), "code", code, "reason", reason)

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.cfg.WriteTimeout),
	)
	conn.Close()
}

// track adds p to the live set. It returns false once shutdown has begun.
func (s *Server) track(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return false
	}
	s.peers[p] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := "ok"
	if s.shuttingDown {
		status = "shutting_down"
	}
	conns := int64(len(s.peers))
	s.mu.Unlock()

	rs := s.registry.Stats()
	writeJSON(w, Health{
		Status:       status,
		Build:        version.Get(),
		Boards:       rs.Boards,
		Participants: rs.Participants,
		Connections:  conns,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.registry.Boards())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
