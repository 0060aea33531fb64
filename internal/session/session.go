package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/rickgao/whiteboard-relay/internal/model"
)

// Session maintains one participant's connection to the relay.
type Session interface {
	// Start opens the connection. It is a no-op for an anonymous participant
	// or an empty board. A failed first dial is returned and retried per the
	// reconnect policy. Cancelling ctx closes the session.
	Start(ctx context.Context) error

	// SendCursor emits a cursor_move if the connection is open. Updates made
	// while disconnected are dropped, never queued.
	SendCursor(x, y float64) bool

	// Close sends a normal closure, cancels any pending reconnect and makes
	// the session terminal.
	Close() error

	// Messages delivers decoded envelopes from other participants.
	Messages() <-chan model.Envelope

	// Done is closed once the session is closed.
	Done() <-chan struct{}

	// State returns the current connectivity.
	State() State

	// OnStateChange registers fn for every subsequent transition.
	OnStateChange(fn StateFunc)

	// Stats returns current statistics.
	Stats() Stats
}

// session is the internal implementation.
type session struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
	dialer websocket.Dialer

	messages chan model.Envelope
	done     chan struct{}

	mu        sync.Mutex
	ctx       context.Context
	state     State
	conn      *websocket.Conn
	gen       int // Incremented per connection so stale readers are ignored
	attempt   int // Consecutive reconnects since the last successful connect
	timer     *clock.Timer
	started   bool
	listeners []StateFunc
	stats     Stats

	writeMu sync.Mutex
}

// New creates a Session. clk may be nil to use the wall clock.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) Session {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	cfg.applyDefaults()

	return &session{
		cfg:   cfg,
		clock: clk,
		logger: logger.With(
			"board", cfg.BoardID,
			"participant", cfg.Participant.ID,
		),
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
		messages: make(chan model.Envelope, cfg.MessageBuffer),
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

func (s *session) Start(ctx context.Context) error {
	if !s.cfg.eligible() {
		s.logger.Debug("not joining relay, participant is anonymous or board is unset")
		return nil
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	context.AfterFunc(ctx, func() { s.Close() })

	return s.connect()
}

func (s *session) SendCursor(x, y float64) bool {
	s.mu.Lock()
	if s.state != StateConnected {
		s.stats.CursorsDropped++
		s.mu.Unlock()
		return false
	}
	conn := s.conn
	s.mu.Unlock()

	env := model.NewCursorMove(s.header(), x, y)
	if err := s.write(conn, env); err != nil {
		s.logger.Debug("cursor_move not sent", "error", err)
		s.count(func(st *Stats) { st.CursorsDropped++ })
		return false
	}
	s.count(func(st *Stats) { st.CursorsSent++ })
	return true
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.gen++
	notify := s.setStateLocked(StateClosed, nil)
	close(s.done)
	s.mu.Unlock()

	notify()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.cfg.WriteTimeout),
	)
	s.writeMu.Unlock()
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	s.logger.Info("session closed")
	return err
}

func (s *session) Messages() <-chan model.Envelope {
	return s.messages
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) OnStateChange(fn StateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// connect performs one dial and either installs the connection or schedules
// the next attempt.
func (s *session) connect() error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	ctx := s.ctx
	s.stats.Dials++
	notify := s.setStateLocked(StateConnecting, nil)
	s.mu.Unlock()
	notify()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.endpoint(), nil)
	cancel()

	// The join goes out before the session reports Connected, so no
	// cursor_move can precede it on this connection.
	if err == nil {
		if werr := s.write(conn, model.Join{Header: s.header()}); werr != nil {
			conn.Close()
			conn = nil
			err = fmt.Errorf("join: %w", werr)
		}
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}

	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDial, err)
		s.stats.DialFailures++
		s.logger.Warn("relay dial failed", "error", err)
		notify := s.setStateLocked(StateDisconnected, err)
		more := s.scheduleLocked(CauseDialFailed)
		s.mu.Unlock()
		notify()
		more()
		return err
	}

	s.conn = conn
	s.gen++
	gen := s.gen
	s.attempt = 0
	s.stats.Connects++
	notify = s.setStateLocked(StateConnected, nil)
	s.mu.Unlock()

	s.logger.Info("connected to relay", "url", s.cfg.URL)
	notify()

	go s.readLoop(conn, gen)
	return nil
}

// readLoop decodes inbound frames until the connection ends.
func (s *session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.disconnected(gen, err)
			return
		}

		env, err := model.Decode(data)
		if err != nil {
			s.logger.Debug("dropping undecodable frame", "error", err)
			s.count(func(st *Stats) { st.Undecodable++ })
			continue
		}
		s.count(func(st *Stats) { st.Received++ })

		select {
		case s.messages <- env:
		case <-s.done:
			return
		default:
			s.logger.Warn("message buffer full, dropping envelope", "type", env.Kind())
		}
	}
}

// disconnected handles the end of connection gen.
func (s *session) disconnected(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.conn.Close()
	s.conn = nil

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	if code == websocket.CloseNormalClosure {
		s.logger.Info("relay closed connection normally")
		notify := s.setStateLocked(StateDisconnected, nil)
		s.mu.Unlock()
		notify()
		return
	}

	s.logger.Warn("relay connection lost", "code", code, "error", err)
	notify := s.setStateLocked(StateDisconnected, err)
	more := s.scheduleLocked(CauseClosed)
	s.mu.Unlock()
	notify()
	more()
}

// scheduleLocked arms the reconnect timer. The returned func reports
// exhaustion and must be called after mu is released.
func (s *session) scheduleLocked(cause Cause) func() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.attempt++
	delay, ok := s.cfg.Policy.Next(s.attempt, cause)
	if !ok {
		s.logger.Error("giving up on relay", "attempts", s.attempt-1)
		return s.setStateLocked(StateDisconnected, ErrRetriesExhausted)
	}

	s.logger.Info("reconnect scheduled", "delay", delay, "attempt", s.attempt)
	s.timer = s.clock.AfterFunc(delay, s.reconnect)
	return func() {}
}

func (s *session) reconnect() {
	s.mu.Lock()
	if s.state != StateDisconnected || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.connect()
}

// setStateLocked records the transition and returns the listener dispatch,
// which must run after mu is released.
func (s *session) setStateLocked(state State, err error) func() {
	s.state = state
	listeners := append([]StateFunc(nil), s.listeners...)
	return func() {
		for _, fn := range listeners {
			fn(state, err)
		}
	}
}

func (s *session) header() model.Header {
	p := s.cfg.Participant
	return model.Header{
		BoardID:   s.cfg.BoardID,
		UserID:    p.ID,
		UserName:  p.Name,
		UserColor: p.Color,
		Timestamp: s.clock.Now().UnixMilli(),
	}
}

func (s *session) write(conn *websocket.Conn, env model.Envelope) error {
	data, err := model.Encode(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// endpoint adds the handshake query parameters to the configured URL.
func (s *session) endpoint() string {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return s.cfg.URL
	}
	q := u.Query()
	q.Set("boardId", s.cfg.BoardID)
	q.Set("userId", s.cfg.Participant.ID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *session) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
