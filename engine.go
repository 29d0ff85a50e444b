package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	internalflows "github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/internal/stores"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/refresh"
)

// Engine runs the token lifecycle. Build one with New().…Build().
type Engine struct {
	config          Config
	logger          *slog.Logger
	now             func() time.Time
	userProvider    UserProvider
	passwordUpdater PasswordUpdater
	refreshStore    refresh.Store
	rateLimiter     *rate.Limiter
	resetStore      *stores.PasswordResetStore
	audit           *internalaudit.Dispatcher
	metrics         *Metrics
	hasher          *password.Hasher
	dummyDigest     string
	jwtManager      *jwt.Manager
}

// Close drains the audit dispatcher. It does not close the refresh store or
// the Redis client, which belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) tenantID(ctx context.Context) string {
	if tenantID, ok := tenantIDFromContextExplicit(ctx); ok {
		return tenantID
	}
	return e.config.Tenant.Default
}

func (e *Engine) ready() bool {
	return e != nil && e.jwtManager != nil && e.hasher != nil && e.refreshStore != nil && e.userProvider != nil
}

/*
====================================
LOGIN
====================================
*/

// Login verifies username and password in the tenant carried by ctx and
// issues a token pair. An unknown user, a wrong password and a disabled
// account all return ErrAuthFailed.
func (e *Engine) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	const op = "Engine.Login"

	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	defer e.observeSince(MetricLoginLatency, time.Now())

	tenantID := e.tenantID(ctx)
	log := e.logger.With(slog.String("op", op), slog.String("tenant_id", tenantID))

	result := internalflows.RunLogin(ctx, tenantID, username, password, e.loginFlowDeps(ctx))

	switch result.Failure {
	case internalflows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, result.User.ID, tenantID, nil, nil)
		log.Debug("login succeeded", slog.String("user_id", result.User.ID))
		return newTokenPair(result.User, result.Access, result.RefreshToken), nil

	case internalflows.LoginFailureRateLimited:
		if !errors.Is(result.Err, rate.ErrRateLimited) {
			// Limiter outage: still reject, but not as a throttle.
			e.metricInc(MetricLoginFailure)
			e.metricInc(MetricStoreError)
			err := fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", tenantID, err, func() map[string]string {
				return map[string]string{"username": username, "reason": "rate_limiter_unavailable"}
			})
			log.Error("rate limiter unavailable, rejecting login", logging.Err(result.Err))
			return nil, err
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", tenantID, ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrLoginRateLimited

	case internalflows.LoginFailureCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, result.User.ID, tenantID, ErrAuthFailed, func() map[string]string {
			return map[string]string{"username": username, "reason": result.Reason}
		})
		if result.Err != nil && !errors.Is(result.Err, rate.ErrRateLimited) {
			log.Warn("password verification error", slog.String("reason", result.Reason), logging.Err(result.Err))
		}
		return nil, ErrAuthFailed

	case internalflows.LoginFailureUserLookup, internalflows.LoginFailureCreateRefresh:
		e.metricInc(MetricLoginFailure)
		e.metricInc(MetricStoreError)
		err := fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, result.User.ID, tenantID, err, nil)
		log.Error("login backend failure", logging.Err(result.Err))
		return nil, err

	default:
		e.metricInc(MetricLoginFailure)
		log.Error("login failed", logging.Err(result.Err))
		return nil, fmt.Errorf("%s: %w", op, result.Err)
	}
}

func (e *Engine) loginFlowDeps(ctx context.Context) internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		FindUser: func(ctx context.Context, tenantID, username string) (internalflows.UserRecord, error) {
			user, err := e.userProvider.FindByUsername(ctx, tenantID, username)
			if err != nil {
				return internalflows.UserRecord{}, err
			}
			return toUserRecord(user), nil
		},
		IsUserNotFound: isNotFound,
		VerifyPassword: e.hasher.Verify,
		DummyDigest:    e.dummyDigest,
		IssueAccess:    e.issueAccess,
		CreateRefresh: func(ctx context.Context, userID, tenantID string) (string, error) {
			return e.refreshStore.Create(ctx, refresh.Owner{UserID: userID, TenantID: tenantID}, e.config.Refresh.TTL)
		},
		RehashPassword: e.rehashPassword,
	}

	if e.rateLimiter != nil {
		ip := clientIPFromContext(ctx)
		deps.CheckRateLimit = func(ctx context.Context, tenantID, username string) error {
			return e.rateLimiter.CheckLogin(ctx, tenantID, username, ip)
		}
		deps.RecordFailure = func(ctx context.Context, tenantID, username string) error {
			return e.rateLimiter.RecordFailure(ctx, tenantID, username, ip)
		}
		deps.ResetRateLimit = e.rateLimiter.ResetLogin
	}

	return deps
}

// rehashPassword replaces a digest produced by a non-primary scheme or with
// weaker parameters. It is best effort and never fails the login.
func (e *Engine) rehashPassword(ctx context.Context, user internalflows.UserRecord, plaintext string) {
	if !e.config.Password.UpgradeOnLogin || e.passwordUpdater == nil || !e.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	log := e.logger.With(slog.String("op", "Engine.rehashPassword"), slog.String("user_id", user.ID))

	digest, err := e.hasher.Hash(ctx, plaintext)
	if err != nil {
		log.Warn("rehash failed", logging.Err(err))
		return
	}
	if err := e.passwordUpdater.UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		log.Warn("storing rehashed password failed", logging.Err(err))
		return
	}
	e.metricInc(MetricPasswordRehash)
	e.emitAudit(ctx, auditEventPasswordRehash, true, user.ID, user.TenantID, nil, func() map[string]string {
		return map[string]string{"algorithm": e.hasher.Primary()}
	})
}

/*
====================================
REFRESH
====================================
*/

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same atomic step that creates its successor; replaying it
// afterwards fails. Rejected tokens match ErrInvalidRefresh; refresh store
// or user lookup outages match ErrStoreUnavailable only, so callers can
// answer them as retryable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "Engine.Refresh"

	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	defer e.observeSince(MetricRefreshLatency, time.Now())
	log := e.logger.With(slog.String("op", op))

	result := internalflows.RunRefresh(ctx, refreshToken, e.refreshFlowDeps())

	if result.Failure == internalflows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, result.UserID, result.TenantID, nil, nil)
		return newTokenPair(result.User, result.Access, result.RefreshToken), nil
	}

	e.metricInc(MetricRefreshFailure)

	var err error
	switch result.Failure {
	case internalflows.RefreshFailureStore, internalflows.RefreshFailureUserLookup:
		e.metricInc(MetricStoreError)
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
		log.Error("refresh backend failure", logging.Err(result.Err))
	case internalflows.RefreshFailureIssueAccess:
		err = fmt.Errorf("%w: %v", ErrInvalidRefresh, result.Err)
		log.Error("signing access token failed", logging.Err(result.Err))
	default:
		err = ErrInvalidRefresh
		log.Debug("refresh rejected", slog.String("reason", refreshFailureReason(result.Failure)))
	}

	e.emitAudit(ctx, auditEventRefreshFailure, false, result.UserID, result.TenantID, err, func() map[string]string {
		return map[string]string{"reason": refreshFailureReason(result.Failure)}
	})
	return nil, err
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		FindValid: func(ctx context.Context, token string) (internalflows.RefreshRecord, error) {
			rec, err := e.refreshStore.FindValid(ctx, token)
			if err != nil {
				return internalflows.RefreshRecord{}, err
			}
			return toRefreshRecord(rec), nil
		},
		Rotate: func(ctx context.Context, token string) (string, internalflows.RefreshRecord, error) {
			next, rec, err := e.refreshStore.Rotate(ctx, token, e.config.Refresh.TTL)
			if err != nil {
				return "", internalflows.RefreshRecord{}, err
			}
			return next, toRefreshRecord(rec), nil
		},
		IsRefreshNotFound: func(err error) bool {
			return errors.Is(err, refresh.ErrNotFound)
		},
		FindUserByID:   e.findUserByID,
		IsUserNotFound: isNotFound,
		IssueAccess:    e.issueAccess,
	}
}

func refreshFailureReason(kind internalflows.RefreshFailureKind) string {
	switch kind {
	case internalflows.RefreshFailureNotFound:
		return "not_found"
	case internalflows.RefreshFailureOwnerMissing:
		return "owner_missing"
	case internalflows.RefreshFailureOwnerDisabled:
		return "owner_disabled"
	case internalflows.RefreshFailureTenantMismatch:
		return "tenant_mismatch"
	case internalflows.RefreshFailureUserLookup:
		return "user_lookup"
	case internalflows.RefreshFailureStore:
		return "store"
	case internalflows.RefreshFailureIssueAccess:
		return "issue_access"
	default:
		return ""
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout revokes refreshToken on behalf of currentUserID. It returns
// ErrInvalidRefresh when the token is unknown, already revoked, expired or
// owned by someone else.
func (e *Engine) Logout(ctx context.Context, refreshToken, currentUserID string) error {
	const op = "Engine.Logout"

	if !e.ready() {
		return ErrEngineNotReady
	}

	result := internalflows.RunLogout(ctx, refreshToken, currentUserID, e.logoutFlowDeps())
	if result.Err != nil {
		e.metricInc(MetricStoreError)
		e.logger.Error("revoke failed", slog.String("op", op), logging.Err(result.Err))
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Err)
	}
	if !result.Revoked {
		e.emitAudit(ctx, auditEventLogout, false, currentUserID, "", ErrInvalidRefresh, nil)
		return ErrInvalidRefresh
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, currentUserID, "", nil, nil)
	return nil
}

// LogoutAll revokes every valid refresh token of userID and returns how many
// were revoked. Access tokens already issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	const op = "Engine.LogoutAll"

	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	n, err := internalflows.RunLogoutAll(ctx, userID, e.logoutFlowDeps())
	if err != nil {
		e.metricInc(MetricStoreError)
		e.logger.Error("revoke all failed", slog.String("op", op), slog.String("user_id", userID), logging.Err(err))
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	return internalflows.LogoutDeps{
		Revoke:    e.refreshStore.Revoke,
		RevokeAll: e.refreshStore.RevokeAll,
	}
}

/*
====================================
CURRENT USER
====================================
*/

// Me loads the account behind a verified identity. ErrNotFound means the
// user was deleted after the token was issued.
func (e *Engine) Me(ctx context.Context, result *AuthResult) (*User, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if result == nil || result.UserID == "" {
		return nil, ErrUnauthorized
	}

	user, err := e.userProvider.FindByID(ctx, result.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user.TenantID != result.TenantID {
		return nil, ErrNotFound
	}

	out := *user
	out.PasswordHash = ""
	out.Roles = user.Roles.clone()
	return &out, nil
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) findUserByID(ctx context.Context, userID string) (internalflows.UserRecord, error) {
	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toUserRecord(user), nil
}

func (e *Engine) issueAccess(user internalflows.UserRecord) (internalflows.IssuedAccess, error) {
	token, claims, err := e.jwtManager.Issue(user.ID, user.Username, user.TenantID, user.Roles, e.config.JWT.AccessTokenTTL)
	if err != nil {
		return internalflows.IssuedAccess{}, err
	}
	return internalflows.IssuedAccess{
		Token:     token,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func newTokenPair(user internalflows.UserRecord, access internalflows.IssuedAccess, refreshToken string) *TokenPair {
	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)
	return &TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		ExpiresIn:    access.ExpiresIn(),
		UserID:       user.ID,
		Username:     user.Username,
		Roles:        roles,
	}
}

func toUserRecord(user *User) internalflows.UserRecord {
	if user == nil {
		return internalflows.UserRecord{}
	}
	return internalflows.UserRecord{
		ID:           user.ID,
		Username:     user.Username,
		TenantID:     user.TenantID,
		PasswordHash: user.PasswordHash,
		Disabled:     user.Disabled,
		Roles:        user.Roles.clone(),
	}
}

func toRefreshRecord(rec *refresh.Record) internalflows.RefreshRecord {
	if rec == nil {
		return internalflows.RefreshRecord{}
	}
	return internalflows.RefreshRecord{
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		ExpiresAt: rec.ExpiresAt,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
