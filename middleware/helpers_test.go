package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine *tenantauth.Engine
	users  *users.MemoryRepository
	clock  *manualClock
}

func digest(t *testing.T, plaintext string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.MinCost)
	require.NoError(t, err)
	return string(out)
}

// newFixture builds an engine with alice (USER) and root (ADMIN, USER) in
// the default tenant.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := users.NewMemoryRepositoryFromSeed("default", []users.Seed{
		{ID: "u-alice", Username: "alice", PasswordHash: digest(t, "alice-password"), Roles: "USER"},
		{ID: "u-root", Username: "root", PasswordHash: digest(t, "root-password"), Roles: "ADMIN,USER"},
	})
	require.NoError(t, err)

	cfg := tenantauth.DefaultConfig()
	cfg.JWT.SecretKey = []byte(testSecret)
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = bcrypt.MinCost
	cfg.Password.UpgradeOnLogin = false

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := tenantauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(repo).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &fixture{engine: engine, users: repo, clock: clock}
}

func (f *fixture) login(t *testing.T, username, plaintext string) string {
	t.Helper()
	pair, err := f.engine.Login(context.Background(), username, plaintext)
	require.NoError(t, err)
	return pair.AccessToken
}
