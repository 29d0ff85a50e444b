package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound covers unknown, revoked and expired tokens alike.
	ErrNotFound = errors.New("refresh token not found")
	// ErrCollision is returned when freshly generated values keep colliding
	// with stored ones.
	ErrCollision = errors.New("refresh token value collision")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("refresh store unavailable")
)

// maxCreateAttempts bounds the retry loop on value collisions.
const maxCreateAttempts = 3

// Owner identifies who a refresh token belongs to.
type Owner struct {
	UserID   string
	TenantID string
}

// Record is the persisted form of a refresh token.
type Record struct {
	ID        string
	TokenHash string
	UserID    string
	TenantID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Valid reports whether the record can still be exchanged at now.
func (r *Record) Valid(now time.Time) bool {
	return r != nil && !r.Revoked && r.ExpiresAt.After(now)
}

// Store is the refresh token persistence contract shared by all backends.
type Store interface {
	// Create persists a new unrevoked token for owner and returns its value.
	Create(ctx context.Context, owner Owner, ttl time.Duration) (string, error)
	// FindValid returns the record for value when it is unrevoked and
	// unexpired, ErrNotFound otherwise.
	FindValid(ctx context.Context, value string) (*Record, error)
	// Revoke revokes value if userID owns it and it is still valid. It
	// reports whether this call performed the revocation.
	Revoke(ctx context.Context, value, userID string) (bool, error)
	// RevokeAll revokes every valid token of userID and returns how many.
	RevokeAll(ctx context.Context, userID string) (int, error)
	// Rotate revokes value and creates its successor for the same owner in
	// one atomic step. The returned record describes the successor.
	Rotate(ctx context.Context, value string, ttl time.Duration) (string, *Record, error)
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("refresh ttl must be positive")
	}
	return nil
}
