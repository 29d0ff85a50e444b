package tenantauth

import (
	"context"
	"log/slog"
	"time"

	internalflows "github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/logging"
)

// SilentRefresh returns a replacement for accessToken when it is valid and
// expires within SilentRefresh.Threshold. The replacement carries the
// user's current username and roles. It never touches refresh tokens and
// never fails: every problem is logged and reported as ok == false.
func (e *Engine) SilentRefresh(ctx context.Context, accessToken string) (string, bool) {
	const op = "Engine.SilentRefresh"

	if !e.ready() || !e.config.SilentRefresh.Enabled {
		return "", false
	}

	result := internalflows.RunSilentRefresh(ctx, accessToken, e.silentRefreshFlowDeps(ctx))
	if result.Skip == internalflows.SilentRefreshIssued {
		e.metricInc(MetricSilentRefreshIssued)
		e.emitAudit(ctx, auditEventSilentRefresh, true, result.UserID, result.TenantID, nil, func() map[string]string {
			return map[string]string{"remaining": result.Remaining.Truncate(time.Second).String()}
		})
		return result.Access.Token, true
	}

	switch result.Skip {
	case internalflows.SilentRefreshSkipFresh, internalflows.SilentRefreshSkipNoToken:
		// nothing to do
	case internalflows.SilentRefreshSkipUserLookup, internalflows.SilentRefreshSkipIssue:
		e.metricInc(MetricSilentRefreshSkipped)
		e.logger.Warn("silent refresh failed",
			slog.String("op", op),
			slog.String("user_id", result.UserID),
			logging.Err(result.Err))
	default:
		e.metricInc(MetricSilentRefreshSkipped)
		e.logger.Debug("silent refresh skipped",
			slog.String("op", op),
			slog.String("user_id", result.UserID),
			slog.String("reason", silentRefreshSkipReason(result.Skip)))
	}
	return "", false
}

func (e *Engine) silentRefreshFlowDeps(ctx context.Context) internalflows.SilentRefreshDeps {
	return internalflows.SilentRefreshDeps{
		Verify: func(token string) (internalflows.AccessClaims, error) {
			result, err := e.VerifyAccessToken(ctx, token)
			if err != nil {
				return internalflows.AccessClaims{}, err
			}
			return internalflows.AccessClaims{
				Subject:   result.UserID,
				TenantID:  result.TenantID,
				ExpiresAt: result.ExpiresAt,
			}, nil
		},
		Now:            e.now,
		Threshold:      e.config.SilentRefresh.Threshold,
		FindUserByID:   e.findUserByID,
		IsUserNotFound: isNotFound,
		IssueAccess:    e.issueAccess,
	}
}

func silentRefreshSkipReason(skip internalflows.SilentRefreshSkip) string {
	switch skip {
	case internalflows.SilentRefreshSkipInvalid:
		return "invalid_token"
	case internalflows.SilentRefreshSkipUserMissing:
		return "user_missing"
	case internalflows.SilentRefreshSkipUserDisabled:
		return "user_disabled"
	case internalflows.SilentRefreshSkipTenantMismatch:
		return "tenant_mismatch"
	default:
		return "other"
	}
}
