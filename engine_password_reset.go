package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalflows "github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/refresh"
)

// RequestPasswordReset issues a single-use reset token for username in the
// tenant carried by ctx. Unknown and disabled accounts return "" and a nil
// error; callers deliver the token out of band and answer every request
// identically.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	const op = "Engine.RequestPasswordReset"

	if !e.ready() {
		return "", ErrEngineNotReady
	}
	tenantID := e.tenantID(ctx)
	result := internalflows.RunRequestPasswordReset(ctx, tenantID, username, e.passwordResetFlowDeps())

	e.metricInc(MetricPasswordResetRequest)
	if result.Failure == internalflows.PasswordResetFailureNone {
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, result.UserID, tenantID, nil, func() map[string]string {
			issued := "false"
			if result.Token != "" {
				issued = "true"
			}
			return map[string]string{"issued": issued}
		})
		return result.Token, nil
	}

	err := e.passwordResetError(result)
	e.emitAudit(ctx, auditEventPasswordResetRequest, false, result.UserID, tenantID, err, nil)
	if result.Err != nil {
		e.logger.Error("password reset request failed",
			slog.String("op", op),
			slog.String("tenant_id", tenantID),
			logging.Err(result.Err))
	}
	return "", err
}

// ConfirmPasswordReset consumes token, replaces the account's password and
// revokes all of its refresh tokens. A token is accepted at most once, even
// under concurrent confirmation.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	const op = "Engine.ConfirmPasswordReset"

	if !e.ready() {
		return ErrEngineNotReady
	}
	result := internalflows.RunConfirmPasswordReset(ctx, token, newPassword, e.passwordResetFlowDeps())

	if result.Failure == internalflows.PasswordResetFailureNone {
		e.metricInc(MetricPasswordResetConfirmSuccess)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, true, result.UserID, result.TenantID, nil, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(result.Revoked)}
		})
		return nil
	}

	e.metricInc(MetricPasswordResetConfirmFailure)
	err := e.passwordResetError(result)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, result.UserID, result.TenantID, err, nil)
	switch result.Failure {
	case internalflows.PasswordResetFailureInvalid, internalflows.PasswordResetFailurePolicy:
	default:
		e.logger.Error("password reset confirm failed",
			slog.String("op", op),
			slog.String("user_id", result.UserID),
			logging.Err(result.Err))
	}
	return err
}

func (e *Engine) passwordResetError(result internalflows.PasswordResetResult) error {
	switch result.Failure {
	case internalflows.PasswordResetFailureDisabled:
		return ErrPasswordResetDisabled
	case internalflows.PasswordResetFailureNotReady:
		return ErrPasswordResetUnavailable
	case internalflows.PasswordResetFailureInvalid:
		return ErrPasswordResetInvalid
	case internalflows.PasswordResetFailurePolicy:
		return fmt.Errorf("%w: at least %d characters required", ErrPasswordPolicy, e.config.PasswordReset.MinPasswordLength)
	case internalflows.PasswordResetFailureHash:
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, result.Err)
	case internalflows.PasswordResetFailureStore:
		e.metricInc(MetricStoreError)
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, result.Err)
	default:
		e.metricInc(MetricStoreError)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
	}
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	deps := internalflows.PasswordResetDeps{
		Enabled:           e.config.PasswordReset.Enabled,
		TTL:               e.config.PasswordReset.TTL,
		MinPasswordLength: e.config.PasswordReset.MinPasswordLength,
		Now:               e.now,
		FindUser: func(ctx context.Context, tenantID, username string) (internalflows.UserRecord, error) {
			user, err := e.userProvider.FindByUsername(ctx, tenantID, username)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toUserRecord(user), nil
		},
		FindUserByID:   e.findUserByID,
		IsUserNotFound: isNotFound,
		NewToken:       refresh.NewValue,
		HashToken:      refresh.HashValue,
		IsNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrResetNotFound)
		},
		HashPassword: e.hasher.Hash,
		RevokeAll:    e.refreshStore.RevokeAll,
	}
	if e.passwordUpdater != nil {
		deps.UpdatePasswordHash = e.passwordUpdater.UpdatePasswordHash
	}
	if e.resetStore != nil {
		deps.Save = func(ctx context.Context, tokenHash string, rec internalflows.PasswordResetRecord, ttl time.Duration) error {
			return e.resetStore.Save(ctx, tokenHash, &stores.PasswordResetRecord{
				UserID:    rec.UserID,
				TenantID:  rec.TenantID,
				ExpiresAt: rec.ExpiresAt.UnixMilli(),
			}, ttl)
		}
		deps.Consume = func(ctx context.Context, tokenHash string) (internalflows.PasswordResetRecord, error) {
			rec, err := e.resetStore.Consume(ctx, tokenHash)
			if err != nil {
				return internalflows.PasswordResetRecord{}, err
			}
			return internalflows.PasswordResetRecord{
				UserID:    rec.UserID,
				TenantID:  rec.TenantID,
				ExpiresAt: time.UnixMilli(rec.ExpiresAt),
			}, nil
		}
	}
	return deps
}
