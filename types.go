package tenantauth

import (
	"context"
	"time"
)

// User is an account as the engine sees it.
type User struct {
	ID           string
	Username     string
	TenantID     string
	PasswordHash string
	Disabled     bool
	Roles        RoleSet
}

// UserProvider looks up accounts. Both methods return an error matching
// ErrNotFound (errors.Is) when no such user exists; any other error is
// treated as a backend failure.
type UserProvider interface {
	FindByUsername(ctx context.Context, tenantID, username string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)
}

// PasswordUpdater is implemented by providers that can persist a new
// password digest. It enables password reset and rehash-on-login.
type PasswordUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// TokenType is the OAuth2 token_type of every issued pair.
const TokenType = "bearer"

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	UserID       string   `json:"user_id"`
	Username     string   `json:"username"`
	Roles        []string `json:"roles"`
}

// AuthResult is the verified identity carried by an access token.
type AuthResult struct {
	UserID    string
	Username  string
	TenantID  string
	Roles     RoleSet
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RequireRoles succeeds when r holds at least one of roles. There is no
// implicit superuser: ADMIN only passes checks that list ADMIN.
func (r *AuthResult) RequireRoles(roles ...string) error {
	if r == nil || r.UserID == "" {
		return ErrUnauthorized
	}
	if !r.Roles.HasAny(roles...) {
		return ErrPermissionDenied
	}
	return nil
}
