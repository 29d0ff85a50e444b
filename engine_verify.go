package tenantauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/tenantauth/jwt"
)

// VerifyAccessToken checks an access token and returns the identity it
// carries. Failures wrap ErrUnauthorized together with the decode kind
// (ErrTokenExpired, ErrTokenBadSignature, ...). When ctx names a tenant, a
// token minted for another tenant is rejected.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.Verify(token)
	if err != nil {
		e.metricInc(MetricAccessRejected)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if tenantID, ok := tenantIDFromContextExplicit(ctx); ok && tenantID != e.claimsTenant(claims) {
		e.metricInc(MetricAccessRejected)
		e.logger.Debug("access token tenant mismatch",
			slog.String("op", "Engine.VerifyAccessToken"),
			slog.String("user_id", claims.Subject),
			slog.String("tenant_id", tenantID))
		return nil, fmt.Errorf("%w: token issued for another tenant", ErrUnauthorized)
	}

	e.metricInc(MetricAccessVerified)
	return authResultFromClaims(claims, e.claimsTenant(claims)), nil
}

// Authorize is result.RequireRoles with metrics and an audit event on denial.
func (e *Engine) Authorize(ctx context.Context, result *AuthResult, roles ...string) error {
	err := result.RequireRoles(roles...)
	if err == ErrPermissionDenied {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, result.UserID, result.TenantID, err, func() map[string]string {
			return map[string]string{"required": NewRoleSet(roles...).String()}
		})
	}
	return err
}

// claimsTenant maps tokens without a tid claim to the default tenant.
func (e *Engine) claimsTenant(claims *jwt.Claims) string {
	if claims.TenantID == "" {
		return e.config.Tenant.Default
	}
	return claims.TenantID
}

func authResultFromClaims(claims *jwt.Claims, tenantID string) *AuthResult {
	result := &AuthResult{
		UserID:   claims.Subject,
		Username: claims.Username,
		TenantID: tenantID,
		Roles:    NewRoleSet(claims.Roles...),
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result
}
