package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix           string
	MaxLoginAttempts int
	Window           time.Duration
	EnableIPThrottle bool
}

// Limiter counts failed logins in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ta"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) userKey(tenantID, username string) string {
	return l.config.Prefix + ":rl:" + tenantID + ":" + username
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":rli:" + ip
}

func (l *Limiter) keys(tenantID, username, ip string) []string {
	keys := []string{l.userKey(tenantID, username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

// CheckLogin returns ErrRateLimited when the account name (or IP) has used
// up its failure budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, tenantID, username, ip string) error {
	for _, key := range l.keys(tenantID, username, ip) {
		if err := l.checkCounter(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure counts a failed login. It returns ErrRateLimited when this
// failure spent the last attempt of the window.
func (l *Limiter) RecordFailure(ctx context.Context, tenantID, username, ip string) error {
	limited := false
	for _, key := range l.keys(tenantID, username, ip) {
		count, err := l.incrementWithTTL(ctx, key, l.config.Window)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxLoginAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the account name counter after a successful login.
// The IP counter is left alone so one valid account cannot launder
// guesses against others from the same address.
func (l *Limiter) ResetLogin(ctx context.Context, tenantID, username string) error {
	if err := l.redis.Del(ctx, l.userKey(tenantID, username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failures counted for an account name in the current
// window. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, tenantID, username string) (int, error) {
	count, err := l.redis.Get(ctx, l.userKey(tenantID, username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
