package tenantauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder collects the engine's collaborators. A Builder builds one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	refreshStore refresh.Store
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis refresh store (unless WithRefreshStore is also
// used), login rate limiting and password reset.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefreshStore overrides the refresh token backend.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token timestamps and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.Algorithm = strings.ToUpper(cfg.JWT.Algorithm)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.refreshStore == nil && b.redis == nil {
		return nil, errors.New("refresh store or redis client required")
	}
	if cfg.PasswordReset.Enabled && b.redis == nil {
		return nil, errors.New("PasswordReset requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		now:          now,
		userProvider: b.userProvider,
		refreshStore: b.refreshStore,
		metrics:      NewMetrics(cfg.Metrics),
	}
	if updater, ok := b.userProvider.(PasswordUpdater); ok {
		engine.passwordUpdater = updater
	}

	// -------- REDIS BACKED PARTS --------
	if b.redis != nil {
		if engine.refreshStore == nil {
			engine.refreshStore = refresh.NewRedisStore(b.redis, cfg.Redis.KeyPrefix, refresh.WithClock(now))
		}
		if cfg.RateLimit.Enabled {
			engine.rateLimiter = rate.New(b.redis, rate.Config{
				Prefix:           cfg.Redis.KeyPrefix,
				MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
				Window:           cfg.RateLimit.LoginCooldown,
				EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			})
		}
		if cfg.PasswordReset.Enabled {
			engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.Redis.KeyPrefix)
		}
	}

	// -------- PASSWORD HASHING --------
	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	dummy, err := dummyDigest(hasher)
	if err != nil {
		return nil, err
	}
	engine.dummyDigest = dummy

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.SecretKey),
		Algorithm: jwt.Algorithm(cfg.JWT.Algorithm),
		Issuer:    cfg.JWT.Issuer,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}

func newHasher(cfg PasswordConfig) (*password.Hasher, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	pool := password.NewPool(cfg.Workers)
	if cfg.Algorithm == PasswordBcrypt {
		return password.NewHasher(pool, bc, argon), nil
	}
	return password.NewHasher(pool, argon, bc), nil
}

// dummyDigest hashes a random secret nobody knows. Logins for unknown users
// verify against it so they cost as much as real ones.
func dummyDigest(h *password.Hasher) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("dummy digest: %w", err)
	}
	digest, err := h.Hash(context.Background(), base64.RawURLEncoding.EncodeToString(buf))
	if err != nil {
		return "", fmt.Errorf("dummy digest: %w", err)
	}
	return digest, nil
}
