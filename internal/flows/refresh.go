package flows

import (
	"context"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureNotFound: unknown, revoked or expired token, or a
	// rotation lost to a concurrent one.
	RefreshFailureNotFound
	RefreshFailureOwnerMissing
	RefreshFailureOwnerDisabled
	RefreshFailureTenantMismatch
	RefreshFailureUserLookup
	RefreshFailureStore
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	TenantID     string
	User         UserRecord
	Access       IssuedAccess
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	FindValid         func(ctx context.Context, token string) (RefreshRecord, error)
	Rotate            func(ctx context.Context, token string) (string, RefreshRecord, error)
	IsRefreshNotFound func(error) bool

	FindUserByID   func(ctx context.Context, userID string) (UserRecord, error)
	IsUserNotFound func(error) bool

	IssueAccess func(user UserRecord) (IssuedAccess, error)
}

// RunRefresh exchanges a refresh token for a new pair. The owner is checked
// before rotating so a disabled account cannot mint tokens, and the access
// token is signed before rotating so a signing failure never burns the
// presented refresh token.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureNotFound}
	}

	rec, err := deps.FindValid(ctx, refreshToken)
	if err != nil {
		if deps.IsRefreshNotFound(err) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}

	user, err := deps.FindUserByID(ctx, rec.UserID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return RefreshResult{Failure: RefreshFailureOwnerMissing, Err: err, UserID: rec.UserID, TenantID: rec.TenantID}
		}
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, UserID: rec.UserID, TenantID: rec.TenantID}
	}
	if user.Disabled {
		return RefreshResult{Failure: RefreshFailureOwnerDisabled, UserID: rec.UserID, TenantID: rec.TenantID}
	}
	if user.TenantID != rec.TenantID {
		return RefreshResult{Failure: RefreshFailureTenantMismatch, UserID: rec.UserID, TenantID: rec.TenantID}
	}

	access, err := deps.IssueAccess(user)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, UserID: user.ID, TenantID: user.TenantID}
	}

	next, _, err := deps.Rotate(ctx, refreshToken)
	if err != nil {
		if deps.IsRefreshNotFound(err) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, UserID: user.ID, TenantID: user.TenantID}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: user.ID, TenantID: user.TenantID}
	}

	return RefreshResult{
		UserID:       user.ID,
		TenantID:     user.TenantID,
		User:         user,
		Access:       access,
		RefreshToken: next,
	}
}
