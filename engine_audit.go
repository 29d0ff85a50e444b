package tenantauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/jwt"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventPermissionDenied     = "permission_denied"
	auditEventSilentRefresh        = "silent_refresh"
	auditEventPasswordRehash       = "password_rehash"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
)

// AuditErrorCode is the stable, non-sensitive error label put on audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrAuthFailed       AuditErrorCode = "invalid_credentials"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInvalidRefresh   AuditErrorCode = "invalid_refresh"
	auditErrTokenExpired     AuditErrorCode = "token_expired"
	auditErrTokenInvalid     AuditErrorCode = "invalid_token"
	auditErrPermissionDenied AuditErrorCode = "permission_denied"
	auditErrNotFound         AuditErrorCode = "not_found"
	auditErrPasswordPolicy   AuditErrorCode = "password_policy"
	auditErrResetInvalid     AuditErrorCode = "reset_invalid"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = e.tenantID(ctx)
	}

	// Metadata is only built when an event will actually be queued.
	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrPasswordResetUnavailable):
		return auditErrUnavailable
	case errors.Is(err, jwt.ErrExpired):
		return auditErrTokenExpired
	case errors.Is(err, jwt.ErrMalformed),
		errors.Is(err, jwt.ErrBadSignature),
		errors.Is(err, jwt.ErrWrongAlgorithm):
		return auditErrTokenInvalid
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrAuthFailed):
		return auditErrAuthFailed
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidRefresh):
		return auditErrInvalidRefresh
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordResetInvalid):
		return auditErrResetInvalid
	default:
		return auditErrInternal
	}
}
