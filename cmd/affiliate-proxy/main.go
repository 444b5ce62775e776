// cmd/affiliate-proxy/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"affiliate-signup/internal/common/config"
	"affiliate-signup/internal/common/database"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/common/observability"
	"affiliate-signup/internal/common/tapfiliate"
	"affiliate-signup/internal/ledger"
	"affiliate-signup/internal/notify"
	"affiliate-signup/internal/proxy"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting affiliate proxy...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.TraceSampleRatio)
	defer obs.Shutdown()

	ctx := context.Background()
	deps := proxy.ServiceDependencies{Logger: log, Observability: obs}
	var readiness []func(context.Context) error

	// --- PostgreSQL ledger ---
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		readiness = append(readiness, pg.Ping)
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Ledger.Enabled {
			l, err := ledger.New(pg.GetDB())
			if err != nil {
				zapLog.Fatal("ledger init failed", zap.Error(err))
			}
			if cfg.Ledger.AutoMigrate {
				if err := l.Migrate(ctx); err != nil {
					zapLog.Fatal("ledger migration failed", zap.Error(err))
				}
			}
			deps.Ledger = l
		}
	}

	// --- Redis idempotency cache ---
	if cfg.Database.Redis.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		readiness = append(readiness, rdb.Ping)
		zapLog.Info("Redis connected successfully")

		if cfg.Idempotency.Enabled {
			deps.Idempotency = proxy.NewRedisIdempotency(rdb.GetClient(), config.GetDuration(cfg.Idempotency.TTL))
			if deps.Ledger == nil {
				zapLog.Warn("Idempotency cache enabled without the ledger; staged affiliates will not be reused")
			}
		}
	}

	// --- External clients ---
	upstream, err := tapfiliate.NewClient(tapfiliate.Options{
		BaseURL:       cfg.Tapfiliate.BaseURL,
		APIKey:        cfg.Tapfiliate.APIKey,
		Timeout:       config.GetDuration(cfg.Tapfiliate.Timeout),
		Logger:        log,
		Observability: obs,
	})
	if err != nil {
		zapLog.Fatal("tapfiliate client init failed", zap.Error(err))
	}
	deps.Upstream = upstream

	notifier, err := notify.NewFromConfig(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}
	if notifier != nil {
		deps.Alerter = notifier
	}

	handler, err := proxy.NewHandler(proxy.HandlerOptions{
		AppConfig:    cfg,
		Logger:       log,
		Dependencies: deps,
	})
	if err != nil {
		zapLog.Fatal("proxy handler init failed", zap.Error(err))
	}

	// --- HTTP server ---
	var limits []commonhttp.Middleware
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter, err := commonhttp.NewRateLimiter(cfg.Server.RateLimitPerMinute, nil)
		if err != nil {
			zapLog.Fatal("rate limiter init failed", zap.Error(err))
		}
		defer limiter.Close()
		limits = append(limits, limiter.Middleware)
	}

	mux := http.NewServeMux()
	mux.Handle(proxy.Path, handler.Routes(limits...))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", "")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range readiness {
			if err := check(checkCtx); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, "not ready", err.Error())
				return
			}
		}
		writeStatus(w, http.StatusOK, "ready", "")
	})
	mux.Handle("/metrics", promhttp.Handler())

	root := commonhttp.Chain(mux, commonhttp.Recover(log), commonhttp.RequestID(log))

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      root,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
		IdleTimeout:  config.GetDuration(cfg.Server.IdleTimeout),
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		zapLog.Error("HTTP server failed", zap.Error(err))
	case <-sigCh:
		zapLog.Info("Shutdown signal received, draining requests...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Affiliate proxy stopped")
}

func writeStatus(w http.ResponseWriter, status int, state, detail string) {
	body := map[string]string{"status": state}
	if detail != "" {
		body["error"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
