package tenantauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every engine option. It is copied by Builder.Build and never
// read from the caller's value again.
type Config struct {
	JWT           JWTConfig
	Refresh       RefreshConfig
	SilentRefresh SilentRefreshConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Tenant        TenantConfig
	Redis         RedisConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	SecretKey      []byte
	Algorithm      string // HS256 (default), HS384 or HS512
	Issuer         string
	AccessTokenTTL time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	TTL time.Duration
}

// SilentRefreshConfig controls access token extension on authenticated
// requests. A token with less than Threshold left gets a replacement.
type SilentRefreshConfig struct {
	Enabled    bool
	Threshold  time.Duration
	HeaderName string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures credential hashing. Digests of the other
// algorithm keep verifying; UpgradeOnLogin rewrites them on the next
// successful login when the provider implements PasswordUpdater.
type PasswordConfig struct {
	Algorithm        string // "argon2id" (default) or "bcrypt"
	Memory           uint32 // argon2 KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	BcryptCost       int
	Workers          int // concurrent hash computations, 0 = GOMAXPROCS
	UpgradeOnLogin   bool
}

// PasswordResetConfig configures single-use reset tokens. Requires Redis.
type PasswordResetConfig struct {
	Enabled           bool
	TTL               time.Duration
	MinPasswordLength int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig throttles failed logins per tenant and username, and
// optionally per client IP. It only takes effect when Redis is configured.
type RateLimitConfig struct {
	Enabled          bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	EnableIPThrottle bool
}

/*
====================================
TENANT / REDIS CONFIG
====================================
*/

type TenantConfig struct {
	Default string
}

type RedisConfig struct {
	KeyPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	PasswordArgon2id = "argon2id"
	PasswordBcrypt   = "bcrypt"
)

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended configuration. JWT.SecretKey is
// empty and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Algorithm:      string(jwt.HS256),
			AccessTokenTTL: 30 * time.Minute,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		SilentRefresh: SilentRefreshConfig{
			Enabled:    true,
			Threshold:  5 * time.Minute,
			HeaderName: "X-New-Access-Token",
		},
		Password: PasswordConfig{
			Algorithm:      PasswordArgon2id,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:           false,
			TTL:               15 * time.Minute,
			MinPasswordLength: 8,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
			EnableIPThrottle: false,
		},
		Tenant: TenantConfig{
			Default: "default",
		},
		Redis: RedisConfig{
			KeyPrefix: "ta",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SecretKey = cloneBytes(cfg.JWT.SecretKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.SecretKey) < jwt.MinSecretLength {
		return fmt.Errorf("JWT SecretKey must be at least %d bytes", jwt.MinSecretLength)
	}
	switch jwt.Algorithm(strings.ToUpper(c.JWT.Algorithm)) {
	case jwt.HS256, jwt.HS384, jwt.HS512:
		// valid
	default:
		return errors.New("JWT Algorithm must be HS256, HS384 or HS512")
	}
	if c.JWT.AccessTokenTTL < time.Second {
		return errors.New("JWT AccessTokenTTL must be >= 1s")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTokenTTL {
		return errors.New("Refresh TTL must be longer than JWT AccessTokenTTL")
	}

	// Silent refresh
	if c.SilentRefresh.Enabled {
		if c.SilentRefresh.Threshold <= 0 {
			return errors.New("SilentRefresh Threshold must be > 0")
		}
		if c.SilentRefresh.Threshold >= c.JWT.AccessTokenTTL {
			return errors.New("SilentRefresh Threshold must be shorter than JWT AccessTokenTTL")
		}
		if c.SilentRefresh.HeaderName == "" {
			return errors.New("SilentRefresh HeaderName is required")
		}
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordArgon2id, PasswordBcrypt:
		// valid
	default:
		return errors.New("Password Algorithm must be argon2id or bcrypt")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("Password BcryptCost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Password.Workers < 0 {
		return errors.New("Password Workers must be >= 0")
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset TTL must be > 0")
		}
		if c.PasswordReset.MinPasswordLength < 1 {
			return errors.New("PasswordReset MinPasswordLength must be >= 1")
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return errors.New("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldown <= 0 {
			return errors.New("RateLimit LoginCooldown must be > 0")
		}
	}

	if strings.TrimSpace(c.Tenant.Default) == "" {
		return errors.New("Tenant Default is required")
	}
	if strings.ContainsAny(c.Redis.KeyPrefix, " :") {
		return errors.New("Redis KeyPrefix must not contain spaces or ':'")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
