package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/whiteboard-relay/internal/buffer"
	"github.com/rickgao/whiteboard-relay/internal/config"
	"github.com/rickgao/whiteboard-relay/internal/database"
	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/model"
	"github.com/rickgao/whiteboard-relay/internal/poller"
	"github.com/rickgao/whiteboard-relay/internal/registry"
	"github.com/rickgao/whiteboard-relay/internal/relay"
	"github.com/rickgao/whiteboard-relay/internal/router"
	"github.com/rickgao/whiteboard-relay/internal/version"
	"github.com/rickgao/whiteboard-relay/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env-file", ".env", "optional .env file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"addr", cfg.Server.Addr,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		promReg *prometheus.Registry
		m       *metrics.Relay
	)
	if cfg.Metrics.IsEnabled() {
		promReg = metrics.NewRegistry()
		m = metrics.NewRelay(promReg)
	}

	reg := registry.New(registry.Config{
		MaxParticipantsPerBoard: cfg.Relay.MaxParticipantsPerBoard,
	}, logger.With("component", "registry"))

	rt := router.NewRouter(reg, m, logger.With("component", "router"))

	// Session records are only collected when something will persist them.
	var sink relay.RecordSink
	var sessionWriter *writer.SessionWriter
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		records := buffer.New[model.SessionRecord](cfg.Audit.BufferSize, cfg.Audit.MaxBufferSize)
		sink = records
		sessionWriter = writer.NewSessionWriter(writer.WriterConfig{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, records, pool, m, logger.With("component", "session_writer"))

		if err := sessionWriter.Start(ctx); err != nil {
			return fmt.Errorf("start session writer: %w", err)
		}
		logger.Info("session audit enabled")
	}

	srv := relay.NewServer(relayConfig(cfg), reg, rt, m, sink, logger.With("component", "relay"))

	var metricsServer *http.Server
	if promReg != nil {
		if cfg.Metrics.Port == 0 {
			srv.Handle(cfg.Metrics.Path, metrics.Handler(promReg))
		} else {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metrics.Handler(promReg))
			metricsServer = &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
				Handler:           mux,
				ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			}
		}
	}

	stats := poller.New(poller.Config{Interval: cfg.Server.StatsInterval},
		reg, rt, srv, m, nil, logger.With("component", "stats"))
	if err := stats.Start(ctx); err != nil {
		return fmt.Errorf("start stats poller: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("relay listening", "addr", cfg.Server.Addr, "ws_path", cfg.Server.WSPath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Peers first so every session record reaches the writer.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("peers did not close in time", "error", err)
		}
		httpServer.Shutdown(shutdownCtx)
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		if sessionWriter != nil {
			sessionWriter.Stop(shutdownCtx)
		}
		stats.Stop(shutdownCtx)

		st := srv.Stats()
		logger.Info("relay totals",
			"accepted", st.Accepted,
			"rejected", st.Rejected,
			"replaced", st.Replaced,
			"slow_consumers", st.SlowConsumers,
			"rate_limited", st.RateLimited,
		)
		return nil
	})

	return g.Wait()
}

func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Path:           cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendBuffer:     cfg.Relay.SendBuffer,
		WriteTimeout:   cfg.Relay.WriteTimeout,
		PingInterval:   cfg.Relay.PingInterval,
		PongTimeout:    cfg.Relay.PongTimeout,
		MaxFrameBytes:  cfg.Relay.MaxFrameBytes,
		RateLimit:      cfg.Relay.RateLimit,
		RateBurst:      cfg.Relay.RateBurst,
	}
}
