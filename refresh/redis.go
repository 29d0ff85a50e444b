package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusInvalid   int64 = 0
	rotateStatusRotated   int64 = 1
	rotateStatusCollision int64 = 2
)

// Token hashes live at <prefix>:rt:<hash> with fields id, user_id,
// tenant_id, created_at, expires_at (unix ms) and revoked ("0"/"1").
// <prefix>:rtu:<user> indexes the hashes a user currently holds.

const createTokenScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "user_id", ARGV[2], "tenant_id", ARGV[3], "created_at", ARGV[4], "expires_at", ARGV[5], "revoked", "0")
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("SADD", KEYS[2], ARGV[7])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[6]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[6])
end
return 1
`

var createTokenLua = redis.NewScript(createTokenScript)

const revokeTokenScript = `
local v = redis.call("HMGET", KEYS[1], "user_id", "revoked", "expires_at")
if not v[1] or v[1] ~= ARGV[1] or v[2] ~= "0" then
  return 0
end
if tonumber(v[3]) <= tonumber(ARGV[2]) then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("SREM", KEYS[2], ARGV[3])
return 1
`

var revokeTokenLua = redis.NewScript(revokeTokenScript)

const revokeAllScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, h in ipairs(members) do
  local key = ARGV[2] .. h
  local v = redis.call("HMGET", key, "revoked", "expires_at")
  if v[1] == "0" and tonumber(v[2]) > tonumber(ARGV[1]) then
    redis.call("HSET", key, "revoked", "1")
    count = count + 1
  end
end
redis.call("DEL", KEYS[1])
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const rotateTokenScript = `
local v = redis.call("HMGET", KEYS[1], "user_id", "tenant_id", "revoked", "expires_at")
if not v[1] or v[1] ~= ARGV[1] or v[3] ~= "0" then
  return {0}
end
if tonumber(v[4]) <= tonumber(ARGV[2]) then
  return {0}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {2}
end
redis.call("HSET", KEYS[1], "revoked", "1")
redis.call("SREM", KEYS[3], ARGV[7])
redis.call("HSET", KEYS[2], "id", ARGV[3], "user_id", v[1], "tenant_id", v[2] or "", "created_at", ARGV[2], "expires_at", ARGV[4], "revoked", "0")
redis.call("PEXPIRE", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[3], ARGV[6])
if redis.call("PTTL", KEYS[3]) < tonumber(ARGV[5]) then
  redis.call("PEXPIRE", KEYS[3], ARGV[5])
end
return {1, v[2] or ""}
`

var rotateTokenLua = redis.NewScript(rotateTokenScript)

// RedisStore keeps refresh tokens in Redis. Every state change runs as a
// single Lua script, which makes Rotate a compare-and-swap on the revoked
// flag.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store using keys under prefix. The client is owned
// by the caller.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = "ta"
	}
	o := buildOptions(opts)
	return &RedisStore{redis: client, prefix: prefix, now: o.now}
}

func (s *RedisStore) tokenKeyPrefix() string {
	return s.prefix + ":rt:"
}

func (s *RedisStore) tokenKey(hash string) string {
	return s.tokenKeyPrefix() + hash
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, owner Owner, ttl time.Duration) (string, error) {
	if err := validateTTL(ttl); err != nil {
		return "", err
	}
	if owner.UserID == "" {
		return "", errors.New("refresh owner user id is required")
	}

	now := s.now()
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		value, err := NewValue()
		if err != nil {
			return "", err
		}
		hash := HashValue(value)

		created, err := createTokenLua.Run(ctx, s.redis,
			[]string{s.tokenKey(hash), s.userKey(owner.UserID)},
			uuid.NewString(),
			owner.UserID,
			owner.TenantID,
			now.UnixMilli(),
			now.Add(ttl).UnixMilli(),
			ttl.Milliseconds(),
			hash,
		).Int64()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if created == 1 {
			return value, nil
		}
	}
	return "", ErrCollision
}

// FindValid implements Store.
func (s *RedisStore) FindValid(ctx context.Context, value string) (*Record, error) {
	if value == "" {
		return nil, ErrNotFound
	}
	hash := HashValue(value)

	fields, err := s.redis.HMGet(ctx, s.tokenKey(hash),
		"id", "user_id", "tenant_id", "created_at", "expires_at", "revoked",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, ok := recordFromFields(hash, fields)
	if !ok || !rec.Valid(s.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Revoke implements Store.
func (s *RedisStore) Revoke(ctx context.Context, value, userID string) (bool, error) {
	if value == "" || userID == "" {
		return false, nil
	}
	hash := HashValue(value)

	revoked, err := revokeTokenLua.Run(ctx, s.redis,
		[]string{s.tokenKey(hash), s.userKey(userID)},
		userID,
		s.now().UnixMilli(),
		hash,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return revoked == 1, nil
}

// RevokeAll implements Store.
func (s *RedisStore) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	count, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.now().UnixMilli(),
		s.tokenKeyPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

// Rotate implements Store.
func (s *RedisStore) Rotate(ctx context.Context, value string, ttl time.Duration) (string, *Record, error) {
	if err := validateTTL(ttl); err != nil {
		return "", nil, err
	}
	if value == "" {
		return "", nil, ErrNotFound
	}
	oldHash := HashValue(value)
	oldKey := s.tokenKey(oldHash)

	// The owner is needed up front to name the index key; the script
	// re-checks it so a concurrent change cannot slip through.
	userID, err := s.redis.HGet(ctx, oldKey, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		next, err := NewValue()
		if err != nil {
			return "", nil, err
		}
		nextHash := HashValue(next)
		id := uuid.NewString()

		result, err := rotateTokenLua.Run(ctx, s.redis,
			[]string{oldKey, s.tokenKey(nextHash), s.userKey(userID)},
			userID,
			now.UnixMilli(),
			id,
			expiresAt.UnixMilli(),
			ttl.Milliseconds(),
			nextHash,
			oldHash,
		).Result()
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		parts, ok := result.([]interface{})
		if !ok || len(parts) == 0 {
			return "", nil, fmt.Errorf("%w: invalid rotate script response", ErrUnavailable)
		}
		code, ok := parts[0].(int64)
		if !ok {
			return "", nil, fmt.Errorf("%w: invalid rotate script status", ErrUnavailable)
		}

		switch code {
		case rotateStatusInvalid:
			return "", nil, ErrNotFound
		case rotateStatusCollision:
			continue
		case rotateStatusRotated:
			var tenantID string
			if len(parts) > 1 {
				tenantID, _ = parts[1].(string)
			}
			return next, &Record{
				ID:        id,
				TokenHash: nextHash,
				UserID:    userID,
				TenantID:  tenantID,
				CreatedAt: time.UnixMilli(now.UnixMilli()),
				ExpiresAt: time.UnixMilli(expiresAt.UnixMilli()),
			}, nil
		default:
			return "", nil, fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
		}
	}
	return "", nil, ErrCollision
}

// Ping checks Redis availability.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func recordFromFields(hash string, fields []interface{}) (*Record, bool) {
	if len(fields) != 6 {
		return nil, false
	}
	str := make([]string, len(fields))
	for i, f := range fields {
		s, ok := f.(string)
		if !ok {
			return nil, false
		}
		str[i] = s
	}

	createdMs, err := strconv.ParseInt(str[3], 10, 64)
	if err != nil {
		return nil, false
	}
	expiresMs, err := strconv.ParseInt(str[4], 10, 64)
	if err != nil {
		return nil, false
	}

	return &Record{
		ID:        str[0],
		TokenHash: hash,
		UserID:    str[1],
		TenantID:  str[2],
		CreatedAt: time.UnixMilli(createdMs),
		ExpiresAt: time.UnixMilli(expiresMs),
		Revoked:   str[5] != "0",
	}, true
}
