package tenantauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoginIssuesPair(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")

	if pair.TokenType != "bearer" {
		t.Fatalf("token type = %q", pair.TokenType)
	}
	if pair.ExpiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("expires_in = %d", pair.ExpiresIn)
	}
	if pair.UserID != "u-alice" || pair.Username != "alice" {
		t.Fatalf("unexpected identity %q/%q", pair.UserID, pair.Username)
	}
	if len(pair.Roles) != 1 || pair.Roles[0] != RoleUser {
		t.Fatalf("roles = %v", pair.Roles)
	}
	if pair.RefreshToken == "" || pair.AccessToken == "" {
		t.Fatal("expected both tokens")
	}

	result, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.UserID != "u-alice" || result.TenantID != "default" {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := result.ExpiresAt.Sub(result.IssuedAt); got != 30*time.Minute {
		t.Fatalf("exp - iat = %v", got)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEngine(t, func(c *Config) { c.RateLimit.Enabled = false })
	env.users.update("u-root", func(u *User) { u.Disabled = true })
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "mallory", "whatever-123"},
		{"wrong password", "alice", "wrong-password"},
		{"disabled account", "root", "root-password-123"},
		{"empty password", "alice", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Login(ctx, tc.username, tc.password)
			if err != ErrAuthFailed {
				t.Fatalf("expected ErrAuthFailed, got %v", err)
			}
		})
	}
}

func TestLoginIsTenantScoped(t *testing.T) {
	env := newTestEngine(t, nil)
	env.users.add(t, "u-acme-alice", "acme", "alice", "acme-password-123", RoleUser)

	acme := WithTenantID(context.Background(), "acme")
	if _, err := env.engine.Login(acme, "alice", "correct-password-123"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("default tenant password accepted in acme: %v", err)
	}
	pair := mustLogin(t, acme, env.engine, "alice", "acme-password-123")
	if pair.UserID != "u-acme-alice" {
		t.Fatalf("user = %q", pair.UserID)
	}

	if _, err := env.engine.VerifyAccessToken(acme, pair.AccessToken); err != nil {
		t.Fatalf("verify in acme: %v", err)
	}
	other := WithTenantID(context.Background(), "default")
	if _, err := env.engine.VerifyAccessToken(other, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected cross-tenant rejection, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEngine(t, func(c *Config) { c.RateLimit.MaxLoginAttempts = 3 })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "alice", "nope"); err != ErrAuthFailed {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := env.engine.Login(ctx, "alice", "correct-password-123"); err != ErrLoginRateLimited {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	// Unknown usernames are limited the same way.
	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "ghost", "nope")
	}
	if _, err := env.engine.Login(ctx, "ghost", "nope"); err != ErrLoginRateLimited {
		t.Fatalf("expected ErrLoginRateLimited for unknown user, got %v", err)
	}

	env.mr.FastForward(16 * time.Minute)
	mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	env := newTestEngine(t, func(c *Config) { c.RateLimit.MaxLoginAttempts = 3 })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice", "nope")
	}
	mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, "alice", "nope")
	}
	mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
}

func TestLoginLimiterOutage(t *testing.T) {
	env := newTestEngine(t, nil)
	env.mr.Close()

	_, err := env.engine.Login(context.Background(), "alice", "correct-password-123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("outage reported as throttling: %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginRateLimited] != 0 || snap.Counters[MetricStoreError] != 1 {
		t.Fatalf("counters = %v", snap.Counters)
	}
}

func TestLoginBackendFailure(t *testing.T) {
	env := newTestEngine(t, nil)
	env.users.failing = errors.New("connection refused")

	_, err := env.engine.Login(context.Background(), "alice", "correct-password-123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestLoginRehashesLegacyDigest(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	bc := mustBcryptDigest(t, "legacy-password-1")
	env.users.add(t, "u-bob", "default", "bob", "placeholder", RoleUser)
	env.users.update("u-bob", func(u *User) { u.PasswordHash = bc })

	mustLogin(t, ctx, env.engine, "bob", "legacy-password-1")

	if got := env.users.passwordHash("u-bob"); !strings.HasPrefix(got, "$argon2id$") {
		t.Fatalf("digest not upgraded: %q", got)
	}
	mustLogin(t, ctx, env.engine, "bob", "legacy-password-1")
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehash]; got != 1 {
		t.Fatalf("rehash metric = %d", got)
	}
}

func TestRefreshRotates(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")

	env.clock.Advance(time.Minute)
	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken || next.AccessToken == pair.AccessToken {
		t.Fatal("expected fresh tokens")
	}
	if next.UserID != "u-alice" {
		t.Fatalf("user = %q", next.UserID)
	}

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("replayed token accepted: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("successor refresh: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		env := newTestEngine(t, nil)
		if _, err := env.engine.Refresh(context.Background(), "not-a-token"); err != ErrInvalidRefresh {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("expired", func(t *testing.T) {
		env := newTestEngine(t, nil)
		ctx := context.Background()
		pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
		env.clock.Advance(7*24*time.Hour + time.Second)
		if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != ErrInvalidRefresh {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("disabled owner", func(t *testing.T) {
		env := newTestEngine(t, nil)
		ctx := context.Background()
		pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
		env.users.update("u-alice", func(u *User) { u.Disabled = true })
		if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != ErrInvalidRefresh {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("deleted owner", func(t *testing.T) {
		env := newTestEngine(t, nil)
		ctx := context.Background()
		pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
		env.users.remove("u-alice")
		if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != ErrInvalidRefresh {
			t.Fatalf("got %v", err)
		}
	})
	t.Run("redis down", func(t *testing.T) {
		env := newTestEngine(t, nil)
		ctx := context.Background()
		pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")
		env.mr.Close()
		_, err := env.engine.Refresh(ctx, pair.RefreshToken)
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
		if errors.Is(err, ErrInvalidRefresh) {
			t.Fatalf("outage must not look like a rejected token: %v", err)
		}
	})
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidRefresh):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")

	if err := env.engine.Logout(ctx, pair.RefreshToken, "u-root"); err != ErrInvalidRefresh {
		t.Fatalf("foreign logout: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.RefreshToken, "u-alice"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.RefreshToken, "u-alice"); err != ErrInvalidRefresh {
		t.Fatalf("second logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != ErrInvalidRefresh {
		t.Fatalf("refresh after logout: %v", err)
	}
	// Access tokens stay valid until expiry.
	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("access after logout: %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	var pairs []*TokenPair
	for i := 0; i < 3; i++ {
		pairs = append(pairs, mustLogin(t, ctx, env.engine, "alice", "correct-password-123"))
	}
	rootPair := mustLogin(t, ctx, env.engine, "root", "root-password-123")

	n, err := env.engine.LogoutAll(ctx, "u-alice")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}
	for _, p := range pairs {
		if _, err := env.engine.Refresh(ctx, p.RefreshToken); err != ErrInvalidRefresh {
			t.Fatalf("refresh after logout all: %v", err)
		}
	}
	if _, err := env.engine.Refresh(ctx, rootPair.RefreshToken); err != nil {
		t.Fatalf("other user's session affected: %v", err)
	}
	if n, err := env.engine.LogoutAll(ctx, "u-alice"); err != nil || n != 0 {
		t.Fatalf("second logout all = %d, %v", n, err)
	}
}

func TestVerifyAccessTokenFailures(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	pair := mustLogin(t, ctx, env.engine, "alice", "correct-password-123")

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := env.engine.VerifyAccessToken(ctx, tampered); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrTokenBadSignature) {
		t.Fatalf("tampered: %v", err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, "a.b"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("malformed: %v", err)
	}

	env.clock.Advance(31 * time.Minute)
	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricAccessRejected] != 3 {
		t.Fatalf("rejected metric = %d", snap.Counters[MetricAccessRejected])
	}
}

func TestAuthorize(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	alice, err := env.engine.VerifyAccessToken(ctx, mustLogin(t, ctx, env.engine, "alice", "correct-password-123").AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	root, err := env.engine.VerifyAccessToken(ctx, mustLogin(t, ctx, env.engine, "root", "root-password-123").AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	if err := env.engine.Authorize(ctx, alice, RoleAdmin); err != ErrPermissionDenied {
		t.Fatalf("alice as admin: %v", err)
	}
	if err := env.engine.Authorize(ctx, alice, RoleAdmin, RoleUser); err != nil {
		t.Fatalf("alice any-of: %v", err)
	}
	if err := env.engine.Authorize(ctx, root, RoleAdmin); err != nil {
		t.Fatalf("root as admin: %v", err)
	}
	if err := env.engine.Authorize(ctx, root, "AUDITOR"); err != ErrPermissionDenied {
		t.Fatalf("admin must not bypass: %v", err)
	}
	if err := env.engine.Authorize(ctx, nil, RoleUser); err != ErrUnauthorized {
		t.Fatalf("nil result: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPermissionDenied]; got != 2 {
		t.Fatalf("permission denied metric = %d", got)
	}
}

func TestMe(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	pair := mustLogin(t, ctx, env.engine, "root", "root-password-123")
	result, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.engine.Me(ctx, result)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if user.Username != "root" || user.PasswordHash != "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if !user.Roles.Has(RoleAdmin) {
		t.Fatalf("roles = %v", user.Roles)
	}

	env.users.remove("u-root")
	if _, err := env.engine.Me(ctx, result); err != ErrNotFound {
		t.Fatalf("deleted user: %v", err)
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a", "b"); err != ErrEngineNotReady {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.VerifyAccessToken(context.Background(), "x"); err != ErrEngineNotReady {
		t.Fatalf("verify: %v", err)
	}
	if tok, ok := e.SilentRefresh(context.Background(), "x"); ok || tok != "" {
		t.Fatal("silent refresh on nil engine")
	}
}

func TestBuilderRequirements(t *testing.T) {
	users := newMemoryUsers(t)

	if _, err := New().WithConfig(testConfig()).WithUserProvider(users).Build(); err == nil {
		t.Fatal("expected error without refresh store or redis")
	}

	_, rdb := newTestRedis(t)
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without user provider")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserProvider(users)
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
