//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret    = "integration-secret-0123456789abcdef"
	alicePassword = "alice-password-123"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seededUsers(t *testing.T) *users.MemoryRepository {
	t.Helper()
	digest, err := bcrypt.GenerateFromPassword([]byte(alicePassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	repo, err := users.NewMemoryRepositoryFromSeed("default", []users.Seed{
		{ID: "u-alice", Username: "alice", PasswordHash: string(digest)},
		{ID: "u-bob", Username: "bob", PasswordHash: string(digest), Roles: "ADMIN"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo
}

func integrationConfig() tenantauth.Config {
	cfg := tenantauth.DefaultConfig()
	cfg.JWT.SecretKey = []byte(testSecret)
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Password.UpgradeOnLogin = false
	return cfg
}

type engineOpts struct {
	redis  redis.UniversalClient
	store  refresh.Store
	clock  *clock
	mutate func(*tenantauth.Config)
}

func newEngine(t *testing.T, opts engineOpts) (*tenantauth.Engine, *users.MemoryRepository) {
	t.Helper()

	cfg := integrationConfig()
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}
	repo := seededUsers(t)

	b := tenantauth.New().WithConfig(cfg).WithUserProvider(repo)
	if opts.redis != nil {
		b.WithRedis(opts.redis)
	}
	if opts.store != nil {
		b.WithRefreshStore(opts.store)
	}
	if opts.clock != nil {
		b.WithClock(opts.clock.Now)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, repo
}

// backend is one refresh store the suites run against.
type backend struct {
	name  string
	setup func(t *testing.T, c *clock) engineOpts
}

// backends returns miniredis and in-memory SQLite always, plus a real Redis
// when REDIS_ADDR is set.
func backends(t *testing.T) []backend {
	t.Helper()

	out := []backend{
		{
			name: "miniredis",
			setup: func(t *testing.T, c *clock) engineOpts {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return engineOpts{redis: rdb, clock: c}
			},
		},
		{
			name: "sqlite",
			setup: func(t *testing.T, c *clock) engineOpts {
				db, err := refresh.OpenGorm("sqlite", ":memory:")
				if err != nil {
					t.Fatalf("OpenGorm: %v", err)
				}
				var opts []refresh.Option
				if c != nil {
					opts = append(opts, refresh.WithClock(c.Now))
				}
				store := refresh.NewGormStore(db, opts...)
				if err := store.Migrate(context.Background()); err != nil {
					t.Fatalf("Migrate: %v", err)
				}
				t.Cleanup(func() { _ = store.Close() })
				return engineOpts{store: store, clock: c}
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "redis:" + addr,
			setup: func(t *testing.T, c *clock) engineOpts {
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return engineOpts{redis: rdb, clock: c}
			},
		})
	}
	return out
}
