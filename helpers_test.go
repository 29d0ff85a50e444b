package tenantauth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testClock is a settable clock shared by the engine and the refresh store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryUsers is a UserProvider and PasswordUpdater backed by a map.
type memoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]*User
	hasher  *password.Argon2
	updates int
	failing error
}

func newMemoryUsers(t testing.TB) *memoryUsers {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return &memoryUsers{byID: make(map[string]*User), hasher: h}
}

func (m *memoryUsers) add(t testing.TB, id, tenantID, username, plaintext string, roles ...string) {
	t.Helper()
	digest, err := m.hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("hash %s: %v", username, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id] = &User{
		ID:           id,
		Username:     username,
		TenantID:     tenantID,
		PasswordHash: digest,
		Roles:        NewRoleSet(roles...),
	}
}

func (m *memoryUsers) update(id string, fn func(*User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		fn(u)
	}
}

func (m *memoryUsers) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *memoryUsers) passwordHash(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.byID[id]; ok {
		return u.PasswordHash
	}
	return ""
}

func (m *memoryUsers) FindByUsername(_ context.Context, tenantID, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failing != nil {
		return nil, m.failing
	}
	for _, u := range m.byID {
		if u.TenantID == tenantID && u.Username == username {
			out := *u
			out.Roles = u.Roles.clone()
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func (m *memoryUsers) FindByID(_ context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failing != nil {
		return nil, m.failing
	}
	u, ok := m.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	out := *u
	out.Roles = u.Roles.clone()
	return &out, nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, userID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = digest
	m.updates++
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Password.Workers = 4
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type testEnv struct {
	engine *Engine
	users  *memoryUsers
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
}

// newTestEngine builds an engine over miniredis with alice (USER) and
// root (ADMIN, USER) in the default tenant.
func newTestEngine(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	mr, rdb := newTestRedis(t)
	users := newMemoryUsers(t)
	users.add(t, "u-alice", "default", "alice", "correct-password-123", RoleUser)
	users.add(t, "u-root", "default", "root", "root-password-123", RoleAdmin, RoleUser)
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, mr: mr, rdb: rdb, clock: clock}
}

func mustLogin(t testing.TB, ctx context.Context, e *Engine, username, plaintext string) *TokenPair {
	t.Helper()
	pair, err := e.Login(ctx, username, plaintext)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return pair
}

func mustBcryptDigest(t testing.TB, plaintext string) string {
	t.Helper()
	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatal(err)
	}
	digest, err := bc.Hash(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	return digest
}
