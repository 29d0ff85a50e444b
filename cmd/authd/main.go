// Command authd serves the tenantauth HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/config"
	"github.com/MrEthical07/tenantauth/internal/httpapi"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.MustLoad()
	log := logging.New(cfg.Env, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("authd stopped", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting authd",
		slog.String("env", cfg.Env),
		slog.String("refresh_store", cfg.RefreshStore.Driver),
		slog.String("users", cfg.Users.Source),
	)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	store, closeStore, err := openRefreshStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, closeUsers, err := openUsers(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeUsers()

	b := tenantauth.New().
		WithConfig(cfg.ToEngineConfig()).
		WithUserProvider(provider).
		WithLogger(log)
	if rdb != nil {
		b.WithRedis(rdb)
	}
	if store != nil {
		b.WithRefreshStore(store)
	}
	if cfg.Audit.Enabled {
		sink, closeSink := auditSink(cfg, log)
		// Deferred before engine.Close so pending events are flushed into it.
		defer closeSink()
		b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = prometheus.NewExporter(engine).Handler()
	}

	e := httpapi.New(engine, httpapi.Options{
		Logger:           log,
		TenantHeader:     cfg.HTTP.TenantHeader,
		TrustForwarded:   cfg.HTTP.TrustForwarded,
		NewTokenHeader:   engine.Config().SilentRefresh.HeaderName,
		MetricsPath:      cfg.Metrics.Path,
		MetricsHandler:   metricsHandler,
		ExposeResetToken: cfg.Env == logging.EnvLocal,
	})
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("address", cfg.HTTP.Address))
		if err := e.Start(cfg.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
