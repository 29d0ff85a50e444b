package flows

import "time"

// UserRecord is the flow-local view of an account.
type UserRecord struct {
	ID           string
	Username     string
	TenantID     string
	PasswordHash string
	Disabled     bool
	Roles        []string
}

// IssuedAccess describes a freshly signed access token.
type IssuedAccess struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the token lifetime in whole seconds.
func (a IssuedAccess) ExpiresIn() int64 {
	return int64(a.ExpiresAt.Sub(a.IssuedAt) / time.Second)
}

// RefreshRecord is the flow-local view of a stored refresh token.
type RefreshRecord struct {
	UserID    string
	TenantID  string
	ExpiresAt time.Time
}
