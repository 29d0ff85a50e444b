// Package tenantauth is the token lifecycle engine of a multi-tenant API.
//
// It verifies credentials, issues short-lived signed access tokens together
// with opaque rotating refresh tokens, revokes refresh tokens one at a time
// or per user, and extends access tokens that are close to expiry on every
// authenticated request (silent refresh).
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after [Builder.Build]. The
// configuration is copied at Build and never changes afterwards.
//
// # Architecture boundaries
//
// tenantauth is the public surface: [Engine], [Builder], [Config] and value
// types. Flow orchestration, rate limiting, the password reset store and
// audit dispatch live under internal/. Token signing lives in jwt/, refresh
// token persistence in refresh/, password hashing in password/.
//
// Users are not stored here. Callers implement [UserProvider] (the users
// package ships an in-memory and a Postgres implementation).
//
// # What this package must NOT do
//
//   - Log, store or return plaintext passwords or raw refresh token values
//     outside the TokenPair handed to the caller.
//   - Tell an unknown user, a wrong password and a disabled account apart
//     in anything it returns.
//   - Import a sub-package that re-imports tenantauth.
package tenantauth
