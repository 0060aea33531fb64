package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/whiteboard-relay/internal/model"
)

// fakeRelay accepts connections and hands them to the test.
type fakeRelay struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	dials atomic.Int32
	query chan string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	r := &fakeRelay{
		conns: make(chan *websocket.Conn, 8),
		query: make(chan string, 8),
	}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.dials.Add(1)
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.query <- req.URL.RawQuery
		r.conns <- conn
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

func (r *fakeRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-r.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (model.Envelope, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := model.Decode(data)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return env, raw
}

func newSession(relay *fakeRelay, mock *clock.Mock, p model.Participant) Session {
	return New(Config{
		URL:         relay.url(),
		BoardID:     "board-1",
		Participant: p,
	}, mock, nil)
}

// waitState blocks until s reaches want.
func waitState(t *testing.T, s Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s", want)
}

// advance moves the mock clock and gives fired timers a moment to run.
func advance(mock *clock.Mock, d time.Duration) {
	mock.Add(d)
	time.Sleep(20 * time.Millisecond)
}

func TestSession_StartIsNoOpForAnonymous(t *testing.T) {
	relay := newFakeRelay(t)
	mock := clock.NewMock()

	tests := []struct {
		name  string
		board string
		id    string
	}{
		{"anonymous", "board-1", model.AnonymousParticipant},
		{"empty participant", "board-1", ""},
		{"empty board", "", "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{
				URL:         relay.url(),
				BoardID:     tt.board,
				Participant: model.Participant{ID: tt.id},
			}, mock, nil)

			require.NoError(t, s.Start(context.Background()))
			assert.Equal(t, StateDisconnected, s.State())
			assert.False(t, s.SendCursor(1, 1))
		})
	}

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, relay.dials.Load())
}

func TestSession_SendsJoinOnConnect(t *testing.T) {
	relay := newFakeRelay(t)
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))

	s := newSession(relay, mock, model.Participant{ID: "u1", Name: "Uma", Color: "#FFD700"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn := relay.accept(t)
	assert.Equal(t, "boardId=board-1&userId=u1", <-relay.query)

	env, raw := readEnvelope(t, conn)
	require.Equal(t, model.KindJoin, env.Kind())
	h := env.Meta()
	assert.Equal(t, "board-1", h.BoardID)
	assert.Equal(t, "u1", h.UserID)
	assert.Equal(t, "Uma", h.UserName)
	assert.Equal(t, "#FFD700", h.UserColor)
	assert.EqualValues(t, 1_700_000_000_000, h.Timestamp)
	assert.NotContains(t, raw, "position")

	assert.Equal(t, StateConnected, s.State())
}

func TestSession_DefaultColorWhenUnset(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "ab"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	env, _ := readEnvelope(t, relay.accept(t))
	assert.Equal(t, model.DefaultColor("ab"), env.Meta().UserColor)
}

func TestSession_SendCursor(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})

	assert.False(t, s.SendCursor(1, 2), "must drop before connecting")

	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	conn := relay.accept(t)
	readEnvelope(t, conn) // join

	require.True(t, s.SendCursor(12.5, 40))

	env, _ := readEnvelope(t, conn)
	move, ok := env.(model.CursorMove)
	require.True(t, ok, "got %T", env)
	x, y, ok := move.XY()
	require.True(t, ok)
	assert.Equal(t, 12.5, x)
	assert.Equal(t, 40.0, y)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.CursorsSent)
	assert.EqualValues(t, 1, stats.CursorsDropped)
}

func TestSession_DeliversInboundEnvelopes(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn := relay.accept(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"cursor_move","boardId":"board-1","userId":"u2","position":{"x":3,"y":4},"timestamp":1}`)))

	select {
	case env := <-s.Messages():
		assert.Equal(t, model.KindCursorMove, env.Kind())
		assert.Equal(t, "u2", env.Meta().UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope delivered")
	}

	require.Eventually(t, func() bool { return s.Stats().Undecodable == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_NoReconnectAfterNormalClose(t *testing.T) {
	relay := newFakeRelay(t)
	mock := clock.NewMock()
	s := newSession(relay, mock, model.Participant{ID: "u1"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn := relay.accept(t)
	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))

	waitState(t, s, StateDisconnected)
	advance(mock, 10*time.Second)

	assert.EqualValues(t, 1, relay.dials.Load())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_ReconnectsOnceAfterAbnormalClose(t *testing.T) {
	relay := newFakeRelay(t)
	mock := clock.NewMock()
	s := newSession(relay, mock, model.Participant{ID: "u1"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	conn := relay.accept(t)
	readEnvelope(t, conn)
	conn.UnderlyingConn().Close()

	waitState(t, s, StateDisconnected)

	advance(mock, 2999*time.Millisecond)
	assert.EqualValues(t, 1, relay.dials.Load(), "reconnected before 3000ms")

	mock.Add(1 * time.Millisecond)
	require.Eventually(t, func() bool { return relay.dials.Load() == 2 },
		2*time.Second, 5*time.Millisecond)

	advance(mock, 100*time.Millisecond)
	assert.EqualValues(t, 2, relay.dials.Load())

	waitState(t, s, StateConnected)
	env, _ := readEnvelope(t, relay.accept(t))
	assert.Equal(t, model.KindJoin, env.Kind(), "join must be re-sent after reconnect")

	advance(mock, 10*time.Second)
	assert.EqualValues(t, 2, relay.dials.Load())
}

func TestSession_CloseCancelsPendingReconnect(t *testing.T) {
	relay := newFakeRelay(t)
	mock := clock.NewMock()
	s := newSession(relay, mock, model.Participant{ID: "u1"})
	require.NoError(t, s.Start(context.Background()))

	conn := relay.accept(t)
	conn.UnderlyingConn().Close()
	waitState(t, s, StateDisconnected)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	advance(mock, 10*time.Second)
	assert.EqualValues(t, 1, relay.dials.Load())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)
}

func TestSession_CloseSendsNormalClosure(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})
	require.NoError(t, s.Start(context.Background()))

	conn := relay.accept(t)
	readEnvelope(t, conn)

	require.NoError(t, s.Close())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.False(t, s.SendCursor(1, 1))
}

func TestSession_ContextCancelCloses(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	relay.accept(t)

	cancel()
	waitState(t, s, StateClosed)
}

func TestSession_DialFailureRetriesAfterFiveSeconds(t *testing.T) {
	relay := newFakeRelay(t)
	url := relay.url()
	relay.srv.Close()

	mock := clock.NewMock()
	s := New(Config{URL: url, BoardID: "b", Participant: model.Participant{ID: "u1"}}, mock, nil)
	defer s.Close()

	err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrDial)
	assert.Equal(t, StateDisconnected, s.State())

	advance(mock, 4999*time.Millisecond)
	assert.EqualValues(t, 1, s.Stats().Dials)

	mock.Add(time.Millisecond)
	require.Eventually(t, func() bool { return s.Stats().Dials == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestSession_ReportsRetriesExhausted(t *testing.T) {
	relay := newFakeRelay(t)
	url := relay.url()
	relay.srv.Close()

	mock := clock.NewMock()
	s := New(Config{
		URL:         url,
		BoardID:     "b",
		Participant: model.Participant{ID: "u1"},
		Policy:      ExponentialPolicy{Base: time.Second, MaxAttempts: 1},
	}, mock, nil)
	defer s.Close()

	var mu sync.Mutex
	var errs []error
	s.OnStateChange(func(_ State, err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})

	s.Start(context.Background())
	advance(mock, time.Second)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, err := range errs {
			if err == ErrRetriesExhausted {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	advance(mock, time.Minute)
	assert.EqualValues(t, 2, s.Stats().Dials)
}

func TestSession_StateTransitions(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})

	var mu sync.Mutex
	var seen []State
	s.OnStateChange(func(st State, _ error) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))
	relay.accept(t)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateClosed}, seen)
}

func TestSession_JoinPrecedesCursorOnConnect(t *testing.T) {
	relay := newFakeRelay(t)
	s := newSession(relay, clock.NewMock(), model.Participant{ID: "u1"})

	sent := make(chan bool, 1)
	s.OnStateChange(func(st State, _ error) {
		if st == StateConnected {
			sent <- s.SendCursor(3, 4)
		}
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	conn := relay.accept(t)
	require.True(t, <-sent)

	first, _ := readEnvelope(t, conn)
	assert.Equal(t, model.KindJoin, first.Kind())
	second, _ := readEnvelope(t, conn)
	assert.Equal(t, model.KindCursorMove, second.Kind())
}
