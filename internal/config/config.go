// Package config loads the authd configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	UsersSeed     = "seed"
	UsersPostgres = "postgres"
)

type Config struct {
	Env           string              `yaml:"env" env:"ENV" env-default:"local"`
	HTTP          HTTPConfig          `yaml:"http"`
	Auth          AuthConfig          `yaml:"auth"`
	Password      PasswordConfig      `yaml:"password"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	PasswordReset PasswordResetConfig `yaml:"password_reset"`
	Redis         RedisConfig         `yaml:"redis"`
	RefreshStore  RefreshStoreConfig  `yaml:"refresh_store"`
	Users         UsersConfig         `yaml:"users"`
	Audit         AuditConfig         `yaml:"audit"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
	TenantHeader    string        `yaml:"tenant_header" env-default:"X-Tenant-ID"`
	TrustForwarded  bool          `yaml:"trust_forwarded" env:"HTTP_TRUST_FORWARDED"`
}

// AuthConfig keeps the setting names of the service this engine replaced,
// so existing deployments can reuse their environment.
type AuthConfig struct {
	SecretKey                     string `yaml:"secret_key" env:"SECRET_KEY" env-required:"true"`
	Algorithm                     string `yaml:"algorithm" env:"ALGORITHM" env-default:"HS256"`
	Issuer                        string `yaml:"issuer" env:"JWT_ISSUER"`
	AccessTokenTTLMinutes         int    `yaml:"access_token_ttl_minutes" env:"ACCESS_TOKEN_TTL_MINUTES" env-default:"30"`
	RefreshTokenTTLDays           int    `yaml:"refresh_token_ttl_days" env:"REFRESH_TOKEN_TTL_DAYS" env-default:"7"`
	SilentRefreshEnabled          bool   `yaml:"silent_refresh_enabled" env:"SILENT_REFRESH_ENABLED" env-default:"true"`
	SilentRefreshThresholdMinutes int    `yaml:"silent_refresh_threshold_minutes" env:"SILENT_REFRESH_THRESHOLD_MINUTES" env-default:"5"`
	DefaultTenant                 string `yaml:"default_tenant" env:"DEFAULT_TENANT" env-default:"default"`
}

type PasswordConfig struct {
	Algorithm   string `yaml:"algorithm" env:"PASSWORD_ALGORITHM" env-default:"argon2id"`
	MemoryKiB   uint32 `yaml:"memory_kib" env-default:"65536"`
	Time        uint32 `yaml:"time" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env-default:"2"`
	BcryptCost  int    `yaml:"bcrypt_cost" env-default:"12"`
	Workers     int    `yaml:"workers" env:"PASSWORD_WORKERS"`
}

type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	MaxLoginAttempts int  `yaml:"max_login_attempts" env-default:"5"`
	CooldownMinutes  int  `yaml:"cooldown_minutes" env-default:"15"`
	IPThrottle       bool `yaml:"ip_throttle"`
}

type PasswordResetConfig struct {
	Enabled           bool `yaml:"enabled" env:"PASSWORD_RESET_ENABLED"`
	TTLMinutes        int  `yaml:"ttl_minutes" env-default:"15"`
	MinPasswordLength int  `yaml:"min_password_length" env-default:"8"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env-default:"ta"`
}

// RefreshStoreConfig selects where refresh tokens live. DSN is used by the
// sqlite and postgres drivers, MongoURI and MongoDatabase by mongo.
type RefreshStoreConfig struct {
	Driver        string `yaml:"driver" env:"REFRESH_STORE" env-default:"redis"`
	DSN           string `yaml:"dsn" env:"REFRESH_STORE_DSN"`
	MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"tenantauth"`
}

type UsersConfig struct {
	Source      string       `yaml:"source" env:"USERS_SOURCE" env-default:"seed"`
	PostgresDSN string       `yaml:"postgres_dsn" env:"USERS_DATABASE_DSN"`
	Migrate     bool         `yaml:"migrate" env:"USERS_MIGRATE"`
	Seed        []users.Seed `yaml:"seed"`
}

type AuditConfig struct {
	Enabled      bool     `yaml:"enabled" env:"AUDIT_ENABLED"`
	BufferSize   int      `yaml:"buffer_size" env-default:"1024"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"AUDIT_KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"AUDIT_KAFKA_TOPIC" env-default:"tenantauth.audit"`
}

type MetricsConfig struct {
	Enabled           bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	LatencyHistograms bool   `yaml:"latency_histograms"`
	Path              string `yaml:"path" env-default:"/metrics"`
}

// MustLoad is Load with the path taken from the -config flag or CONFIG_PATH.
// It panics on error.
func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file, then path (when non-empty) and finally
// the environment, which overrides both.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: .env: %w", op, err)
	}

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: config file: %w", op, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// fetchConfigPath prefers the -config flag over CONFIG_PATH.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}

// Validate checks the choices the engine config cannot check itself.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StoreRedis, StoreSQLite, StorePostgres, StoreMongo}, c.RefreshStore.Driver) {
		return fmt.Errorf("unknown refresh store driver %q", c.RefreshStore.Driver)
	}
	switch c.RefreshStore.Driver {
	case StoreSQLite, StorePostgres:
		if c.RefreshStore.DSN == "" {
			return fmt.Errorf("refresh store %s requires dsn", c.RefreshStore.Driver)
		}
	case StoreMongo:
		if c.RefreshStore.MongoURI == "" {
			return errors.New("refresh store mongo requires mongo_uri")
		}
	}

	switch c.Users.Source {
	case UsersSeed:
	case UsersPostgres:
		if c.Users.PostgresDSN == "" {
			return errors.New("users source postgres requires postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown users source %q", c.Users.Source)
	}

	if c.Audit.Enabled && len(c.Audit.KafkaBrokers) > 0 && strings.TrimSpace(c.Audit.KafkaTopic) == "" {
		return errors.New("audit kafka requires a topic")
	}
	return nil
}

// ToEngineConfig converts c into an engine configuration. The result still
// goes through tenantauth.Config.Validate at Build.
func (c *Config) ToEngineConfig() tenantauth.Config {
	cfg := tenantauth.DefaultConfig()

	cfg.JWT.SecretKey = []byte(c.Auth.SecretKey)
	cfg.JWT.Algorithm = c.Auth.Algorithm
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.AccessTokenTTL = time.Duration(c.Auth.AccessTokenTTLMinutes) * time.Minute
	cfg.Refresh.TTL = time.Duration(c.Auth.RefreshTokenTTLDays) * 24 * time.Hour
	cfg.SilentRefresh.Enabled = c.Auth.SilentRefreshEnabled
	cfg.SilentRefresh.Threshold = time.Duration(c.Auth.SilentRefreshThresholdMinutes) * time.Minute
	cfg.Tenant.Default = c.Auth.DefaultTenant

	cfg.Password.Algorithm = c.Password.Algorithm
	cfg.Password.Memory = c.Password.MemoryKiB
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.Password.BcryptCost = c.Password.BcryptCost
	cfg.Password.Workers = c.Password.Workers

	cfg.RateLimit.Enabled = c.RateLimit.Enabled
	cfg.RateLimit.MaxLoginAttempts = c.RateLimit.MaxLoginAttempts
	cfg.RateLimit.LoginCooldown = time.Duration(c.RateLimit.CooldownMinutes) * time.Minute
	cfg.RateLimit.EnableIPThrottle = c.RateLimit.IPThrottle

	cfg.PasswordReset.Enabled = c.PasswordReset.Enabled
	cfg.PasswordReset.TTL = time.Duration(c.PasswordReset.TTLMinutes) * time.Minute
	cfg.PasswordReset.MinPasswordLength = c.PasswordReset.MinPasswordLength

	cfg.Redis.KeyPrefix = c.Redis.KeyPrefix

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.LatencyHistograms

	return cfg
}
