package flows

import (
	"context"
	"time"
)

// SilentRefreshSkip says why no replacement token was minted.
type SilentRefreshSkip int

const (
	SilentRefreshIssued SilentRefreshSkip = iota
	SilentRefreshSkipNoToken
	SilentRefreshSkipInvalid
	SilentRefreshSkipFresh
	SilentRefreshSkipUserMissing
	SilentRefreshSkipUserLookup
	SilentRefreshSkipUserDisabled
	SilentRefreshSkipTenantMismatch
	SilentRefreshSkipIssue
)

// AccessClaims is the flow-local view of a verified access token.
type AccessClaims struct {
	Subject   string
	TenantID  string
	ExpiresAt time.Time
}

// SilentRefreshResult carries the replacement token, if any.
type SilentRefreshResult struct {
	Skip      SilentRefreshSkip
	Err       error
	UserID    string
	TenantID  string
	Remaining time.Duration
	Access    IssuedAccess
}

// SilentRefreshDeps captures silent refresh dependencies.
type SilentRefreshDeps struct {
	Verify         func(token string) (AccessClaims, error)
	Now            func() time.Time
	Threshold      time.Duration
	FindUserByID   func(ctx context.Context, userID string) (UserRecord, error)
	IsUserNotFound func(error) bool
	IssueAccess    func(user UserRecord) (IssuedAccess, error)
}

// RunSilentRefresh mints a replacement access token when the presented one is
// valid and close to expiry. It never touches refresh tokens.
func RunSilentRefresh(ctx context.Context, accessToken string, deps SilentRefreshDeps) SilentRefreshResult {
	if accessToken == "" {
		return SilentRefreshResult{Skip: SilentRefreshSkipNoToken}
	}

	claims, err := deps.Verify(accessToken)
	if err != nil {
		return SilentRefreshResult{Skip: SilentRefreshSkipInvalid, Err: err}
	}

	remaining := claims.ExpiresAt.Sub(deps.Now())
	result := SilentRefreshResult{
		UserID:    claims.Subject,
		TenantID:  claims.TenantID,
		Remaining: remaining,
	}
	if remaining >= deps.Threshold {
		result.Skip = SilentRefreshSkipFresh
		return result
	}

	user, err := deps.FindUserByID(ctx, claims.Subject)
	if err != nil {
		result.Err = err
		result.Skip = SilentRefreshSkipUserLookup
		if deps.IsUserNotFound(err) {
			result.Skip = SilentRefreshSkipUserMissing
		}
		return result
	}
	if user.Disabled {
		result.Skip = SilentRefreshSkipUserDisabled
		return result
	}
	if user.TenantID != claims.TenantID {
		result.Skip = SilentRefreshSkipTenantMismatch
		return result
	}

	access, err := deps.IssueAccess(user)
	if err != nil {
		result.Err = err
		result.Skip = SilentRefreshSkipIssue
		return result
	}
	result.Access = access
	return result
}
