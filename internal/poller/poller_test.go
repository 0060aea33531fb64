package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/registry"
	"github.com/rickgao/whiteboard-relay/internal/relay"
	"github.com/rickgao/whiteboard-relay/internal/router"
)

type nopHandle struct{}

func (nopHandle) Send([]byte) error { return nil }

type fixedRouter struct {
	stats atomic.Pointer[router.RouterStats]
}

func (f *fixedRouter) Stats() router.RouterStats { return *f.stats.Load() }

func (f *fixedRouter) set(s router.RouterStats) { f.stats.Store(&s) }

type fixedRelay struct{ stats relay.Stats }

func (f fixedRelay) Stats() relay.Stats { return f.stats }

func TestPoller_Poll(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	reg.Register("x", "a", nopHandle{})
	reg.Register("x", "b", nopHandle{})
	reg.Register("y", "c", nopHandle{})

	rt := &fixedRouter{}
	rt.set(router.RouterStats{MessagesReceived: 10, MessagesRouted: 8})

	promReg := prometheus.NewRegistry()
	m := metrics.NewRelay(promReg)

	p := New(Config{Interval: time.Hour}, reg, rt, fixedRelay{relay.Stats{ActiveConnections: 3}}, m, nil, nil)

	s := p.poll()

	assert.Equal(t, 2, s.Registry.Boards)
	assert.Equal(t, 3, s.Registry.Participants)
	assert.EqualValues(t, 8, s.Router.MessagesRouted)
	assert.EqualValues(t, 3, s.Relay.ActiveConnections)
	assert.Equal(t, s.At, p.Last().At, "Last() returns the latest sample")

	n, err := testutil.GatherAndCount(promReg, "cursor_relay_active_boards")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPoller_NilRelaySource(t *testing.T) {
	rt := &fixedRouter{}
	rt.set(router.RouterStats{})

	p := New(Config{}, registry.New(registry.Config{}, nil), rt, nil, nil, nil, nil)
	s := p.poll()

	assert.Equal(t, relay.Stats{}, s.Relay)
	assert.Equal(t, time.Minute, p.cfg.Interval)
}

func TestPoller_StartStop(t *testing.T) {
	rt := &fixedRouter{}
	rt.set(router.RouterStats{})

	var samples atomic.Int32
	handler := SampleHandlerFunc(func(Sample) { samples.Add(1) })

	p := New(Config{Interval: 10 * time.Millisecond}, registry.New(registry.Config{}, nil), rt, nil, nil, handler, nil)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return samples.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	after := samples.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, samples.Load(), "poller kept sampling after Stop")
}
