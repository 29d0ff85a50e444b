package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetRecord is the payload kept for an outstanding reset token.
type PasswordResetRecord struct {
	UserID    string `json:"uid"`
	TenantID  string `json:"tid"`
	ExpiresAt int64  `json:"exp"` // unix milliseconds
}

type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "ta"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(tokenHash string) string {
	return s.prefix + ":pr:" + tokenHash
}

// Save stores record under tokenHash. The key TTL bounds how long a
// forgotten ticket stays in Redis; callers still check ExpiresAt.
func (s *PasswordResetStore) Save(ctx context.Context, tokenHash string, record *PasswordResetRecord, ttl time.Duration) error {
	if tokenHash == "" || record == nil {
		return errors.New("reset record and token hash are required")
	}
	if ttl <= 0 {
		return errors.New("reset ttl must be positive")
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode reset record: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(tokenHash), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume atomically reads and deletes the record for tokenHash.
func (s *PasswordResetStore) Consume(ctx context.Context, tokenHash string) (*PasswordResetRecord, error) {
	if tokenHash == "" {
		return nil, ErrResetNotFound
	}

	data, err := s.redis.GetDel(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	var record PasswordResetRecord
	if err := json.Unmarshal(data, &record); err != nil || record.UserID == "" {
		// An undecodable ticket is as good as absent; it is already deleted.
		return nil, ErrResetNotFound
	}
	return &record, nil
}
