package relay

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/whiteboard-relay/internal/router"
)

// peer is one accepted connection. It implements registry.Handle.
type peer struct {
	id       uuid.UUID
	identity router.Identity
	conn     *websocket.Conn
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger

	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	writerDone  chan struct{}

	framesIn  atomic.Int64
	framesOut atomic.Int64
	dropped   atomic.Int64

	onSlow    func()
	onLimited func()
}

func newPeer(conn *websocket.Conn, identity router.Identity, cfg Config, logger *slog.Logger) *peer {
	id := uuid.New()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &peer{
		id:         id,
		identity:   identity,
		conn:       conn,
		cfg:        cfg,
		limiter:    limiter,
		logger:     logger.With("conn_id", id.String(), "board", identity.BoardID, "participant", identity.ParticipantID),
		send:       make(chan []byte, cfg.SendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// Send queues payload for the write pump without blocking. A full queue
// closes the peer.
func (p *peer) Send(payload []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- payload:
		return nil
	default:
		p.logger.Warn("send queue full, closing slow peer", "queued", len(p.send))
		if p.onSlow != nil {
			p.onSlow()
		}
		p.closeWith(websocket.CloseTryAgainLater, "too slow")
		return ErrSlowConsumer
	}
}

// closeWith stops the peer. The first call wins and its code is what the
// write pump sends and what the session record reports.
func (p *peer) closeWith(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closeCode = code
		p.closeReason = reason
		close(p.done)
	})
}

// closed reports whether closeWith has been called.
func (p *peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// writePump owns all writes to conn, apart from handshake rejections that
// happen before the pump starts.
func (p *peer) writePump() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
		close(p.writerDone)
	}()

	for {
		select {
		case payload := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				p.logger.Debug("write failed", "error", err)
				p.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
			p.framesOut.Add(1)

		case <-ticker.C:
			deadline := time.Now().Add(p.cfg.WriteTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				p.logger.Debug("failed to send ping", "error", err)
				p.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-p.done:
			if p.closeCode != websocket.CloseAbnormalClosure && p.closeCode != websocket.CloseNoStatusReceived {
				deadline := time.Now().Add(time.Second)
				p.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(p.closeCode, p.closeReason),
					deadline,
				)
			}
			return
		}
	}
}

// readPump reads frames until the connection fails and hands each one to
// route. It returns the close code the connection ended with.
func (p *peer) readPump(route func(router.Identity, []byte) router.Outcome) int {
	p.conn.SetReadLimit(p.cfg.MaxFrameBytes)
	p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return p.readCloseCode(err)
		}
		p.framesIn.Add(1)
		p.conn.SetReadDeadline(time.Now().Add(p.cfg.PongTimeout))

		if p.limiter != nil && !p.limiter.Allow() {
			p.dropped.Add(1)
			if p.onLimited != nil {
				p.onLimited()
			}
			continue
		}
		route(p.identity, data)
	}
}

// readCloseCode maps a read error to the code recorded for the session.
func (p *peer) readCloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		p.logger.Debug("peer closed connection", "code", ce.Code, "text", ce.Text)
		return ce.Code
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		p.logger.Warn("frame exceeds size limit", "limit", p.cfg.MaxFrameBytes)
		return websocket.CloseMessageTooBig
	}
	if p.closed() {
		return p.closeCode
	}
	p.logger.Debug("read failed", "error", err)
	return websocket.CloseAbnormalClosure
}
