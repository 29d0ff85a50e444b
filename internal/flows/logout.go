package flows

import (
	"context"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Revoke    func(ctx context.Context, token, userID string) (bool, error)
	RevokeAll func(ctx context.Context, userID string) (int, error)
}

// LogoutResult reports whether the token was revoked by this call.
type LogoutResult struct {
	Revoked bool
	Err     error
}

// RunLogout revokes one refresh token on behalf of its owner.
func RunLogout(ctx context.Context, refreshToken, userID string, deps LogoutDeps) LogoutResult {
	if refreshToken == "" || userID == "" {
		return LogoutResult{}
	}
	revoked, err := deps.Revoke(ctx, refreshToken, userID)
	return LogoutResult{Revoked: revoked, Err: err}
}

// RunLogoutAll revokes every valid refresh token of userID.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if userID == "" {
		return 0, nil
	}
	return deps.RevokeAll(ctx, userID)
}
