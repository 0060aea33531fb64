package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/registry"
	"github.com/rickgao/whiteboard-relay/internal/router"
)

func TestServer_RecordsMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := metrics.NewRelay(promReg)

	reg := registry.New(registry.Config{}, nil)
	srv := NewServer(Config{}, reg, router.NewRouter(reg, m, nil), m, nil, discardLogger())
	srv.Handle("/metrics", metrics.Handler(promReg))

	hs := httptest.NewServer(srv)
	defer hs.Close()
	base := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"

	bad, _, err := websocket.DefaultDialer.Dial(base+"?boardId=x", nil)
	require.NoError(t, err)
	defer bad.Close()
	assert.Equal(t, websocket.ClosePolicyViolation, readCloseCode(t, bad))

	expected := `
# HELP cursor_relay_handshake_rejected_total Connections closed during handshake, by reason.
# TYPE cursor_relay_handshake_rejected_total counter
cursor_relay_handshake_rejected_total{reason="missing_identity"} 1
`
	require.NoError(t, testutil.GatherAndCompare(promReg, strings.NewReader(expected),
		"cursor_relay_handshake_rejected_total"))

	good, _, err := websocket.DefaultDialer.Dial(base+"?boardId=x&userId=a", nil)
	require.NoError(t, err)
	defer good.Close()
	require.Eventually(t, func() bool { return reg.HasBoard("x") }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(hs.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "cursor_relay_connections_total 1")
	assert.Contains(t, string(body), "cursor_relay_active_boards 1")
}
