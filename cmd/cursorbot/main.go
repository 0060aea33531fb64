// cursorbot drives simulated participants against a relay and logs what an
// observer on the same board sees.
//
// Usage: go run ./cmd/cursorbot --config configs/relay.example.yaml --bots 5
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/whiteboard-relay/internal/config"
	"github.com/rickgao/whiteboard-relay/internal/model"
	"github.com/rickgao/whiteboard-relay/internal/presence"
	"github.com/rickgao/whiteboard-relay/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	url := flag.String("url", "", "relay WebSocket URL, overrides session.url")
	board := flag.String("board", "", "board id, overrides session.board_id")
	bots := flag.Int("bots", 3, "number of simulated participants")
	hz := flag.Float64("hz", 20, "cursor updates per second per bot")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	report := flag.Duration("report", 2*time.Second, "observer snapshot interval")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *url != "" {
		cfg.Session.URL = *url
	}
	if *board != "" {
		cfg.Session.BoardID = *board
	}
	if cfg.Session.BoardID == "" {
		cfg.Session.BoardID = "demo-" + uuid.NewString()[:8]
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("starting cursorbot",
		"url", cfg.Session.URL,
		"board", cfg.Session.BoardID,
		"bots", *bots,
		"hz", *hz,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return observe(gctx, cfg, *report, logger)
	})

	for i := 0; i < *bots; i++ {
		i := i
		g.Go(func() error {
			return drive(gctx, cfg, i, *hz, logger)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("cursorbot failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cursorbot stopped")
}

func newSession(cfg *config.Config, p model.Participant, logger *slog.Logger) session.Session {
	return session.New(session.Config{
		URL:         cfg.Session.URL,
		BoardID:     cfg.Session.BoardID,
		Participant: p,
		Policy:      buildPolicy(cfg.Session),
		DialTimeout: cfg.Session.DialTimeout,
	}, nil, logger)
}

func buildPolicy(cfg config.SessionConfig) session.ReconnectPolicy {
	if cfg.ReconnectPolicy == config.PolicyExponential {
		return session.ExponentialPolicy{
			Base:        cfg.ReconnectAfterClose,
			Max:         cfg.BackoffMax,
			Jitter:      cfg.BackoffJitter,
			MaxAttempts: cfg.MaxAttempts,
		}
	}
	return session.FixedPolicy{
		AfterClose:       cfg.ReconnectAfterClose,
		AfterDialFailure: cfg.ReconnectAfterDialFailure,
	}
}

// drive moves one bot's cursor along a Lissajous curve until ctx ends.
func drive(ctx context.Context, cfg *config.Config, n int, hz float64, logger *slog.Logger) error {
	p := model.Participant{
		ID:   fmt.Sprintf("bot-%d", n),
		Name: fmt.Sprintf("Bot %d", n),
	}
	log := logger.With("participant", p.ID)

	s := newSession(cfg, p, log)
	s.OnStateChange(func(st session.State, err error) {
		if err != nil {
			log.Warn("bot state changed", "state", st, "error", err)
		}
	})
	if err := s.Start(ctx); err != nil {
		log.Warn("initial dial failed, retrying", "error", err)
	}
	defer s.Close()

	// Consume relayed frames so the session buffer never fills.
	go func() {
		for {
			select {
			case <-s.Done():
				return
			case <-s.Messages():
			}
		}
	}()

	a, b := float64(1+n%3), float64(2+n%2)
	phase := float64(n) * math.Pi / 4

	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			st := s.Stats()
			log.Info("bot done", "sent", st.CursorsSent, "dropped", st.CursorsDropped, "connects", st.Connects)
			return nil
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			x := 500 + 400*math.Sin(a*t+phase)
			y := 400 + 300*math.Sin(b*t)
			s.SendCursor(math.Round(x), math.Round(y))
		}
	}
}

// observe joins the board as a silent participant and logs the cursors its
// presence aggregator would render.
func observe(ctx context.Context, cfg *config.Config, every time.Duration, logger *slog.Logger) error {
	p := model.Participant{ID: "observer-" + uuid.NewString()[:8], Name: "Observer"}
	log := logger.With("participant", p.ID)

	s := newSession(cfg, p, log)
	agg := presence.New(presence.Config{
		SelfID:        p.ID,
		StaleAfter:    cfg.Presence.StaleAfter,
		SweepInterval: cfg.Presence.SweepInterval,
	}, nil, log)

	if err := s.Start(ctx); err != nil {
		log.Warn("initial dial failed, retrying", "error", err)
	}
	defer s.Close()

	go agg.Run(ctx)
	go agg.Consume(ctx, s.Messages())

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := agg.Snapshot()
			attrs := []any{"state", s.State(), "cursors", len(snap)}
			for _, c := range snap {
				attrs = append(attrs, c.ParticipantID, fmt.Sprintf("%s (%.0f,%.0f)", c.ParticipantName, c.X, c.Y))
			}
			log.Info("presence", attrs...)
		}
	}
}
