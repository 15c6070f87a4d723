package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jbandu/bag-sub001/internal/adapters/httpjson"
	"github.com/jbandu/bag-sub001/internal/api"
	"github.com/jbandu/bag-sub001/internal/cache"
	"github.com/jbandu/bag-sub001/internal/gateway"
	"github.com/jbandu/bag-sub001/pkg/config"
	"github.com/jbandu/bag-sub001/pkg/health"
	"github.com/jbandu/bag-sub001/pkg/logging"
	"github.com/jbandu/bag-sub001/pkg/metrics"
	"github.com/jbandu/bag-sub001/pkg/resilience"
)

// adapterSpec describes one external system in the adapters file along with
// its optional per-target resilience overrides.
type adapterSpec struct {
	httpjson.Config
	RateLimit *resilience.RateLimitConfig      `json:"rate_limit"`
	Cache     *cache.Config                    `json:"cache"`
	Breaker   *resilience.CircuitBreakerConfig `json:"breaker"`
	Retry     *resilience.RetryPolicy          `json:"retry"`
}

func main() {
	// Load .env file if present (development convenience)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "bag-gateway",
		Version:     "1.0.0",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(&metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Enabled:   cfg.Metrics.Enabled,
	})

	gw := gateway.NewService(&gateway.Config{
		DefaultTimeout: cfg.Gateway.DefaultTimeout,
		DefaultRetry: resilience.RetryPolicy{
			MaxRetries:       cfg.Gateway.MaxRetries,
			BaseDelay:        cfg.Gateway.RetryBaseDelay,
			MaxDelay:         cfg.Gateway.RetryMaxDelay,
			Exponential:      true,
			RetryRateLimited: true,
		},
		FailureThreshold: cfg.Gateway.FailureThreshold,
		SuccessThreshold: cfg.Gateway.SuccessThreshold,
		BreakerCooldown:  cfg.Gateway.BreakerCooldown,
		SweepInterval:    cfg.Gateway.CacheSweepInterval,
	}, m)

	healthSvc := health.NewService(logger, health.DefaultConfig())
	healthSvc.RegisterChecker("gateway", health.NewGatewayChecker(gw, "gateway"))

	if cfg.Gateway.AdaptersFile != "" {
		if err := registerAdapters(cfg, gw, healthSvc); err != nil {
			logger.Error("Failed to register adapters", "error", err.Error())
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		logger.Error("Failed to start gateway", "error", err.Error())
		os.Exit(1)
	}
	defer gw.Stop()

	router := api.NewRouter(cfg, gw, healthSvc, m)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting gateway server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}

	logger.Info("Server exited")
}

// registerAdapters loads the adapters file and registers each external
// system with the gateway, filling per-target policies from the global
// defaults where the file leaves them out.
func registerAdapters(cfg *config.Config, gw *gateway.Service, healthSvc *health.Service) error {
	data, err := os.ReadFile(cfg.Gateway.AdaptersFile)
	if err != nil {
		return fmt.Errorf("read adapters file: %w", err)
	}

	var specs []adapterSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("parse adapters file: %w", err)
	}

	logger := logging.GetLogger()
	for i := range specs {
		spec := &specs[i]

		a, err := httpjson.New(&spec.Config)
		if err != nil {
			return fmt.Errorf("adapter %q: %w", spec.Name, err)
		}

		opts := &gateway.TargetOptions{
			Breaker: spec.Breaker,
			Retry:   spec.Retry,
		}
		opts.RateLimit = spec.RateLimit
		if opts.RateLimit == nil && cfg.Gateway.RateLimitRequests > 0 {
			opts.RateLimit = &resilience.RateLimitConfig{
				MaxRequests: cfg.Gateway.RateLimitRequests,
				Window:      cfg.Gateway.RateLimitWindow,
				Algorithm:   resilience.Algorithm(cfg.Gateway.RateLimitAlgorithm),
			}
		}
		opts.Cache = spec.Cache
		if opts.Cache == nil && cfg.Gateway.CacheMaxEntries > 0 {
			opts.Cache = &cache.Config{
				MaxEntries: cfg.Gateway.CacheMaxEntries,
				DefaultTTL: cfg.Gateway.CacheTTL,
			}
		}

		if err := gw.Register(a, opts); err != nil {
			return fmt.Errorf("register %q: %w", spec.Name, err)
		}
		healthSvc.RegisterChecker(spec.Name, health.NewAdapterChecker(gw, spec.Name))

		logger.Info("Registered adapter", "target", spec.Name, "base_url", spec.BaseURL)
	}
	return nil
}
