package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/registry"
	"github.com/rickgao/whiteboard-relay/internal/relay"
	"github.com/rickgao/whiteboard-relay/internal/router"
)

// RegistrySource reports registry totals. *registry.Registry satisfies it.
type RegistrySource interface {
	Stats() registry.Stats
}

// RouterSource reports router counters. router.Router satisfies it.
type RouterSource interface {
	Stats() router.RouterStats
}

// RelaySource reports transport counters. *relay.Server satisfies it.
type RelaySource interface {
	Stats() relay.Stats
}

// Sample is one observation of every source.
type Sample struct {
	At       time.Time
	Registry registry.Stats
	Router   router.RouterStats
	Relay    relay.Stats
}

// SampleHandler receives each sample after it is logged.
type SampleHandler interface {
	HandleSample(s Sample)
}

// SampleHandlerFunc is a function adapter for SampleHandler.
type SampleHandlerFunc func(Sample)

func (f SampleHandlerFunc) HandleSample(s Sample) {
	f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Sample interval (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Poller periodically samples relay statistics.
type Poller struct {
	cfg      Config
	registry RegistrySource
	router   RouterSource
	relay    RelaySource
	metrics  *metrics.Relay
	handler  SampleHandler
	logger   *slog.Logger

	mu   sync.Mutex
	last Sample

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Poller. rs, m and handler may be nil.
func New(
	cfg Config,
	reg RegistrySource,
	rt RouterSource,
	rs RelaySource,
	m *metrics.Relay,
	handler SampleHandler,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:      cfg,
		registry: reg,
		router:   rt,
		relay:    rs,
		metrics:  m,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stats poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stats poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the most recent sample.
func (p *Poller) Last() Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll takes one sample, logs it and hands it on.
func (p *Poller) poll() Sample {
	s := Sample{
		At:       time.Now(),
		Registry: p.registry.Stats(),
		Router:   p.router.Stats(),
	}
	if p.relay != nil {
		s.Relay = p.relay.Stats()
	}

	p.mu.Lock()
	prev := p.last
	p.last = s
	p.mu.Unlock()

	p.metrics.SetBoards(s.Registry.Boards)

	p.logger.Info("relay stats",
		"boards", s.Registry.Boards,
		"participants", s.Registry.Participants,
		"connections", s.Relay.ActiveConnections,
		"frames", s.Router.MessagesReceived-prev.Router.MessagesReceived,
		"routed", s.Router.MessagesRouted-prev.Router.MessagesRouted,
		"deliveries", s.Router.Deliveries-prev.Router.Deliveries,
		"parse_errors", s.Router.ParseErrors-prev.Router.ParseErrors,
		"rejected", s.Relay.Rejected-prev.Relay.Rejected,
	)

	if p.handler != nil {
		p.handler.HandleSample(s)
	}
	return s
}
