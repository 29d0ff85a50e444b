package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/config"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/redis/go-redis/v9"
)

// openRefreshStore returns nil for the redis driver; the engine builds its
// Redis store from the client.
func openRefreshStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (refresh.Store, func(), error) {
	noop := func() {}

	switch cfg.RefreshStore.Driver {
	case config.StoreRedis:
		if rdb == nil {
			return nil, noop, errors.New("refresh store redis requires redis.addr")
		}
		return nil, noop, nil

	case config.StoreSQLite, config.StorePostgres:
		db, err := refresh.OpenGorm(cfg.RefreshStore.Driver, cfg.RefreshStore.DSN)
		if err != nil {
			return nil, noop, err
		}
		store := refresh.NewGormStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.StoreMongo:
		store, err := refresh.NewMongoStore(ctx, cfg.RefreshStore.MongoURI, cfg.RefreshStore.MongoDatabase)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	}
	return nil, noop, fmt.Errorf("unknown refresh store driver %q", cfg.RefreshStore.Driver)
}

func openUsers(ctx context.Context, cfg *config.Config, log *slog.Logger) (tenantauth.UserProvider, func(), error) {
	if cfg.Users.Source == config.UsersPostgres {
		db, err := users.OpenPostgres(ctx, cfg.Users.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Users.Migrate {
			if err := users.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
		}
		return users.NewPostgresRepository(db), func() { _ = db.Close() }, nil
	}

	repo, err := users.NewMemoryRepositoryFromSeed(cfg.Auth.DefaultTenant, cfg.Users.Seed)
	if err != nil {
		return nil, nil, err
	}
	if repo.Len() == 0 {
		log.Warn("no users seeded, every login will fail")
	}
	return repo, func() {}, nil
}

// auditSink publishes to Kafka when brokers are configured and writes JSON
// lines to the log output otherwise.
func auditSink(cfg *config.Config, log *slog.Logger) (tenantauth.AuditSink, func()) {
	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink := tenantauth.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, log)
		return sink, func() {
			if err := sink.Close(); err != nil {
				log.Warn("close kafka audit sink", logging.Err(err))
			}
		}
	}
	return tenantauth.NewJSONWriterSink(logWriter{log: log}), func() {}
}

// logWriter turns each audit JSON line into an info record.
type logWriter struct {
	log *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Info("audit", slog.Any("event", json.RawMessage(bytes.TrimSpace(p))))
	return len(p), nil
}
