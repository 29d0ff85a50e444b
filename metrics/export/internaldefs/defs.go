package internaldefs

import (
	"github.com/MrEthical07/tenantauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: tenantauth.MetricLoginSuccess, Name: "tenantauth_login_success_total", Help: "Successful logins."},
	{ID: tenantauth.MetricLoginFailure, Name: "tenantauth_login_failure_total", Help: "Rejected logins, including backend failures."},
	{ID: tenantauth.MetricLoginRateLimited, Name: "tenantauth_login_rate_limited_total", Help: "Logins refused by the rate limiter."},
	{ID: tenantauth.MetricRefreshSuccess, Name: "tenantauth_refresh_success_total", Help: "Refresh token rotations."},
	{ID: tenantauth.MetricRefreshFailure, Name: "tenantauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: tenantauth.MetricLogout, Name: "tenantauth_logout_total", Help: "Single refresh token revocations."},
	{ID: tenantauth.MetricLogoutAll, Name: "tenantauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: tenantauth.MetricAccessVerified, Name: "tenantauth_access_verified_total", Help: "Access tokens accepted."},
	{ID: tenantauth.MetricAccessRejected, Name: "tenantauth_access_rejected_total", Help: "Access tokens rejected."},
	{ID: tenantauth.MetricPermissionDenied, Name: "tenantauth_permission_denied_total", Help: "Role checks that failed."},
	{ID: tenantauth.MetricSilentRefreshIssued, Name: "tenantauth_silent_refresh_issued_total", Help: "Replacement access tokens minted near expiry."},
	{ID: tenantauth.MetricSilentRefreshSkipped, Name: "tenantauth_silent_refresh_skipped_total", Help: "Silent refresh attempts skipped for an invalid token or account."},
	{ID: tenantauth.MetricPasswordRehash, Name: "tenantauth_password_rehash_total", Help: "Password digests upgraded at login."},
	{ID: tenantauth.MetricPasswordResetRequest, Name: "tenantauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: tenantauth.MetricPasswordResetConfirmSuccess, Name: "tenantauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: tenantauth.MetricPasswordResetConfirmFailure, Name: "tenantauth_password_reset_confirm_failure_total", Help: "Rejected password reset confirmations."},
	{ID: tenantauth.MetricStoreError, Name: "tenantauth_store_error_total", Help: "Backend (Redis, SQL, Mongo, user provider) failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: tenantauth.MetricVerifyLatency, Name: "tenantauth_verify_latency_seconds", Help: "Access token verification latency."},
	{ID: tenantauth.MetricLoginLatency, Name: "tenantauth_login_latency_seconds", Help: "Login latency, including password verification."},
	{ID: tenantauth.MetricRefreshLatency, Name: "tenantauth_refresh_latency_seconds", Help: "Refresh token exchange latency."},
}

// HistogramBounds are the upper bounds of the engine's eight latency
// buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "tenantauth_audit_dropped_total"

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
