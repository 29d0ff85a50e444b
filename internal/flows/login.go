package flows

import (
	"context"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	// LoginFailureCredentials covers unknown user, wrong password and
	// disabled account. Callers must not tell them apart.
	LoginFailureCredentials
	LoginFailureUserLookup
	LoginFailureVerify
	LoginFailureIssueAccess
	LoginFailureCreateRefresh
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Reason       string
	TenantID     string
	User         UserRecord
	Access       IssuedAccess
	RefreshToken string
}

// LoginDeps captures login flow dependencies. The limiter hooks are optional.
type LoginDeps struct {
	FindUser       func(ctx context.Context, tenantID, username string) (UserRecord, error)
	IsUserNotFound func(error) bool
	VerifyPassword func(ctx context.Context, password, digest string) (bool, error)
	// DummyDigest is verified when the user does not exist so that the
	// response time does not reveal it.
	DummyDigest string

	CheckRateLimit func(ctx context.Context, tenantID, username string) error
	RecordFailure  func(ctx context.Context, tenantID, username string) error
	ResetRateLimit func(ctx context.Context, tenantID, username string) error

	IssueAccess    func(user UserRecord) (IssuedAccess, error)
	CreateRefresh  func(ctx context.Context, userID, tenantID string) (string, error)
	RehashPassword func(ctx context.Context, user UserRecord, password string)
}

// RunLogin verifies credentials and issues a token pair.
func RunLogin(ctx context.Context, tenantID, username, password string, deps LoginDeps) LoginResult {
	if deps.CheckRateLimit != nil {
		if err := deps.CheckRateLimit(ctx, tenantID, username); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err, TenantID: tenantID}
		}
	}

	fail := func(reason string, err error) LoginResult {
		if deps.RecordFailure != nil {
			if limitErr := deps.RecordFailure(ctx, tenantID, username); limitErr != nil && err == nil {
				err = limitErr
			}
		}
		return LoginResult{Failure: LoginFailureCredentials, Err: err, Reason: reason, TenantID: tenantID}
	}

	user, err := deps.FindUser(ctx, tenantID, username)
	if err != nil {
		if !deps.IsUserNotFound(err) {
			return LoginResult{Failure: LoginFailureUserLookup, Err: err, TenantID: tenantID}
		}
		if _, verr := deps.VerifyPassword(ctx, password, deps.DummyDigest); verr != nil && ctx.Err() != nil {
			return LoginResult{Failure: LoginFailureVerify, Err: verr, TenantID: tenantID}
		}
		return fail("unknown_user", nil)
	}

	ok, err := deps.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return LoginResult{Failure: LoginFailureVerify, Err: err, TenantID: tenantID, User: user}
		}
		// An unreadable digest is indistinguishable from a wrong password.
		return fail("bad_digest", err)
	}
	if !ok {
		return fail("bad_password", nil)
	}
	if user.Disabled {
		return fail("disabled", nil)
	}

	if deps.ResetRateLimit != nil {
		_ = deps.ResetRateLimit(ctx, tenantID, username)
	}
	if deps.RehashPassword != nil {
		deps.RehashPassword(ctx, user, password)
	}

	access, err := deps.IssueAccess(user)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueAccess, Err: err, TenantID: tenantID, User: user}
	}
	refreshToken, err := deps.CreateRefresh(ctx, user.ID, user.TenantID)
	if err != nil {
		return LoginResult{Failure: LoginFailureCreateRefresh, Err: err, TenantID: tenantID, User: user}
	}

	return LoginResult{
		TenantID:     tenantID,
		User:         user,
		Access:       access,
		RefreshToken: refreshToken,
	}
}
