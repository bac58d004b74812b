package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Onepiecedad/skyland-command-center/internal/config"
	"github.com/Onepiecedad/skyland-command-center/internal/gateway"
	"github.com/Onepiecedad/skyland-command-center/internal/health"
	"github.com/Onepiecedad/skyland-command-center/internal/memory"
	"github.com/Onepiecedad/skyland-command-center/internal/metrics"
	"github.com/Onepiecedad/skyland-command-center/internal/ops"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("gateway_url", cfg.GatewayURL).
		Str("ops_addr", cfg.OpsListenAddr).
		Bool("memory_enabled", cfg.MemoryEnabled()).
		Msg("starting command center")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Metrics and health
	collector := metrics.New()
	checker := health.NewChecker(logger)

	// Gateway session client
	client := gateway.New(gateway.Config{
		URL:             cfg.GatewayURL,
		Token:           cfg.GatewayToken,
		ClientID:        cfg.ClientID,
		Scopes:          cfg.ScopeList(),
		Locale:          cfg.Locale,
		ConnectDebounce: cfg.ConnectDebounce,
		BackoffFloor:    cfg.BackoffFloor,
		BackoffFactor:   cfg.BackoffFactor,
		BackoffCeiling:  cfg.BackoffCeiling,
	}, gateway.Callbacks{
		OnStatusChange: func(s gateway.Status) {
			logger.Info().Str("status", string(s)).Msg("gateway status changed")
		},
		OnHello: func(payload json.RawMessage) {
			if len(payload) == 0 {
				payload = json.RawMessage("{}")
			}
			logger.Info().RawJSON("hello", payload).Msg("gateway hello")
		},
		OnError: func(msg string) {
			logger.Warn().Str("error", msg).Msg("gateway error")
		},
	}, collector, logger)

	checker.Register("gateway", func(ctx context.Context) health.Status {
		switch client.Status() {
		case gateway.StatusConnected:
			return health.StatusOK
		case gateway.StatusConnecting:
			return health.StatusDegraded
		default:
			return health.StatusDown
		}
	})

	// Memory side channel (optional)
	if cfg.MemoryEnabled() {
		memClient := memory.NewClient(cfg.APIURL, collector, logger)
		checker.Register("memory", func(ctx context.Context) health.Status {
			// Soft dependency: degraded, never down.
			if err := memClient.Ping(ctx); err != nil {
				return health.StatusDegraded
			}
			return health.StatusOK
		})
		logger.Info().Str("api_url", cfg.APIURL).Msg("memory side channel enabled")
	} else {
		logger.Info().Msg("memory side channel not configured — skipping")
	}

	client.Start()

	var wg sync.WaitGroup

	// Metrics server (plain net/http, separate from the ops surface)
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	metricsServer := &http.Server{
		Addr:         cfg.MetricsListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("metrics server starting")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server error")
		}
	}()

	// Ops server (probes + status)
	opsServer := ops.NewServer(ops.ServerConfig{
		ListenAddr:  cfg.OpsListenAddr,
		CORSOrigins: cfg.CORSOrigins,
	}, client, checker, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := opsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	client.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
	if err := opsServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("command center stopped")
}
