// Package middleware adapts a tenantauth.Engine to net/http.
//
// # Handlers
//
//   - [Guard] verifies the bearer token and stores the identity in the
//     request context (tenantauth.AuthResultFromContext).
//   - [RequireRoles] admits callers holding at least one of the listed roles.
//   - [SilentRefresh] attaches a replacement access token to responses of
//     authenticated routes when the presented token is close to expiry.
//   - [Tenant] and [ClientIP] copy request metadata into the context the
//     Engine reads for tenant scoping and login throttling.
//
// Every credential failure gets the same 401 body and a
// "WWW-Authenticate: Bearer" header, so callers cannot tell a bad signature
// from an expired or unknown token. Missing permissions are answered
// with 403.
//
// This package makes no authentication decisions of its own. Token parsing,
// expiry and role checks all happen in the Engine.
package middleware
