// Package stores keeps short-lived, single-use records in Redis.
//
// The only record today is the password reset ticket. A ticket is stored
// under the SHA-256 of its token, so a Redis dump never yields a usable
// reset link, and it is consumed with GETDEL: two concurrent confirmations
// of the same token cannot both succeed.
//
// This package owns persistence only. Token generation, policy checks and
// the decision to revoke sessions live in internal/flows.
package stores
