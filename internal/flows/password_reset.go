package flows

import (
	"context"
	"time"
	"unicode/utf8"
)

// PasswordResetFailureKind classifies password reset failures.
type PasswordResetFailureKind int

const (
	PasswordResetFailureNone PasswordResetFailureKind = iota
	PasswordResetFailureDisabled
	PasswordResetFailureNotReady
	PasswordResetFailureInvalid
	PasswordResetFailurePolicy
	PasswordResetFailureUserLookup
	PasswordResetFailureStore
	PasswordResetFailureHash
	PasswordResetFailureUpdate
	PasswordResetFailureRevoke
)

// PasswordResetRecord is what the reset store keeps under a token hash.
type PasswordResetRecord struct {
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}

// PasswordResetResult reports the outcome of a reset step. Token is only
// set by a successful request for an existing, enabled account.
type PasswordResetResult struct {
	Failure  PasswordResetFailureKind
	Err      error
	Token    string
	UserID   string
	TenantID string
	Revoked  int
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	Enabled           bool
	TTL               time.Duration
	MinPasswordLength int
	Now               func() time.Time

	FindUser       func(ctx context.Context, tenantID, username string) (UserRecord, error)
	FindUserByID   func(ctx context.Context, userID string) (UserRecord, error)
	IsUserNotFound func(error) bool

	NewToken     func() (string, error)
	HashToken    func(string) string
	Save         func(ctx context.Context, tokenHash string, rec PasswordResetRecord, ttl time.Duration) error
	Consume      func(ctx context.Context, tokenHash string) (PasswordResetRecord, error)
	IsNotFound   func(error) bool
	HashPassword func(ctx context.Context, password string) (string, error)
	// UpdatePasswordHash is nil when the user collaborator is read-only.
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	RevokeAll          func(ctx context.Context, userID string) (int, error)
}

// RunRequestPasswordReset issues a single-use reset token. Unknown and
// disabled accounts get an empty result without error so callers answer
// every request the same way.
func RunRequestPasswordReset(ctx context.Context, tenantID, username string, deps PasswordResetDeps) PasswordResetResult {
	if !deps.Enabled {
		return PasswordResetResult{Failure: PasswordResetFailureDisabled, TenantID: tenantID}
	}
	if deps.Save == nil || deps.UpdatePasswordHash == nil {
		return PasswordResetResult{Failure: PasswordResetFailureNotReady, TenantID: tenantID}
	}
	if username == "" {
		return PasswordResetResult{Failure: PasswordResetFailureInvalid, TenantID: tenantID}
	}

	user, err := deps.FindUser(ctx, tenantID, username)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return PasswordResetResult{TenantID: tenantID}
		}
		return PasswordResetResult{Failure: PasswordResetFailureUserLookup, Err: err, TenantID: tenantID}
	}
	if user.Disabled {
		return PasswordResetResult{UserID: user.ID, TenantID: tenantID}
	}

	token, err := deps.NewToken()
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureStore, Err: err, UserID: user.ID, TenantID: tenantID}
	}
	rec := PasswordResetRecord{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		ExpiresAt: deps.Now().Add(deps.TTL),
	}
	if err := deps.Save(ctx, deps.HashToken(token), rec, deps.TTL); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureStore, Err: err, UserID: user.ID, TenantID: tenantID}
	}

	return PasswordResetResult{Token: token, UserID: user.ID, TenantID: tenantID}
}

// RunConfirmPasswordReset consumes token, stores the new password hash and
// revokes every refresh token of the account.
func RunConfirmPasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) PasswordResetResult {
	if !deps.Enabled {
		return PasswordResetResult{Failure: PasswordResetFailureDisabled}
	}
	if deps.Consume == nil || deps.UpdatePasswordHash == nil {
		return PasswordResetResult{Failure: PasswordResetFailureNotReady}
	}
	if token == "" {
		return PasswordResetResult{Failure: PasswordResetFailureInvalid}
	}
	// Policy is checked before the token is consumed so a typo does not burn it.
	if utf8.RuneCountInString(newPassword) < deps.MinPasswordLength {
		return PasswordResetResult{Failure: PasswordResetFailurePolicy}
	}

	rec, err := deps.Consume(ctx, deps.HashToken(token))
	if err != nil {
		if deps.IsNotFound(err) {
			return PasswordResetResult{Failure: PasswordResetFailureInvalid, Err: err}
		}
		return PasswordResetResult{Failure: PasswordResetFailureStore, Err: err}
	}
	if !rec.ExpiresAt.After(deps.Now()) {
		return PasswordResetResult{Failure: PasswordResetFailureInvalid, UserID: rec.UserID, TenantID: rec.TenantID}
	}

	user, err := deps.FindUserByID(ctx, rec.UserID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return PasswordResetResult{Failure: PasswordResetFailureInvalid, Err: err, UserID: rec.UserID, TenantID: rec.TenantID}
		}
		return PasswordResetResult{Failure: PasswordResetFailureUserLookup, Err: err, UserID: rec.UserID, TenantID: rec.TenantID}
	}
	if user.Disabled || user.TenantID != rec.TenantID {
		return PasswordResetResult{Failure: PasswordResetFailureInvalid, UserID: rec.UserID, TenantID: rec.TenantID}
	}

	digest, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureHash, Err: err, UserID: user.ID, TenantID: user.TenantID}
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureUpdate, Err: err, UserID: user.ID, TenantID: user.TenantID}
	}

	revoked, err := deps.RevokeAll(ctx, user.ID)
	if err != nil {
		return PasswordResetResult{Failure: PasswordResetFailureRevoke, Err: err, UserID: user.ID, TenantID: user.TenantID}
	}
	return PasswordResetResult{UserID: user.ID, TenantID: user.TenantID, Revoked: revoked}
}
