package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/synquot/internal/api/router"
	"github.com/wolfman30/synquot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/synquot/internal/config"
	"github.com/wolfman30/synquot/internal/conversation"
	"github.com/wolfman30/synquot/internal/observability/metrics"
	"github.com/wolfman30/synquot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting synquot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("server stopped")
}

// setupMetrics registers the engine collectors plus the Go runtime ones on a
// private registry.
func setupMetrics() (*prometheus.Registry, http.Handler, *metrics.EngineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewEngineMetrics(reg)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// sessionRepository prefers redis and falls back to process memory.
func sessionRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.SessionRepository, func()) {
	client := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if client == nil {
		logger.Warn("sessions are kept in memory; they will not survive a restart")
		return conversation.NewMemorySessionStore(), func() {}
	}
	return conversation.NewSessionStore(client, cfg.SessionTTL, nil), func() { _ = client.Close() }
}

func newServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*http.Server, func(), error) {
	reg, metricsHandler, m := setupMetrics()

	sessions, closeSessions := sessionRepository(ctx, cfg, logger)

	// The response cache shares the session redis when one is reachable.
	var store *conversation.SessionStore
	if s, ok := sessions.(*conversation.SessionStore); ok {
		store = s
	}
	engine, err := bootstrap.BuildEngine(ctx, cfg, store.Client(), m, logger, false)
	if err != nil {
		closeSessions()
		return nil, nil, err
	}

	mode := "rule-based"
	if engine.Backend != nil {
		mode = engine.Backend.Provider
	}

	handler := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine.Engine, sessions, logger),
		MetricsHandler:      metricsHandler,
		StatsGatherer:       reg,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		TrustProxyHeaders:   cfg.TrustProxyHeaders,
		LLMMode:             mode,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close llm backend", "error", err)
		}
		closeSessions()
	}
	return srv, cleanup, nil
}
