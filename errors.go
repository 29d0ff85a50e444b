package tenantauth

import (
	"errors"

	"github.com/MrEthical07/tenantauth/jwt"
)

var (
	// ErrAuthFailed covers unknown user, wrong password and disabled account.
	ErrAuthFailed = errors.New("invalid credentials")
	// ErrInvalidRefresh covers unknown, revoked, expired and foreign refresh tokens.
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
	// ErrUnauthorized wraps every access token rejection.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied is returned when the caller holds none of the required roles.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned by UserProvider implementations for missing users.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps backend failures (refresh store, Redis, user database).
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrLoginRateLimited = errors.New("login rate limited")

	ErrPasswordResetDisabled    = errors.New("password reset disabled")
	ErrPasswordResetInvalid     = errors.New("password reset token invalid")
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	ErrPasswordPolicy           = errors.New("password policy violation")
)

// Access token decode failures, matched through ErrUnauthorized chains.
var (
	ErrTokenMalformed      = jwt.ErrMalformed
	ErrTokenBadSignature   = jwt.ErrBadSignature
	ErrTokenExpired        = jwt.ErrExpired
	ErrTokenWrongAlgorithm = jwt.ErrWrongAlgorithm
)
