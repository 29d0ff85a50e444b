// Package rate implements the Redis fixed-window login throttle.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys:
//   - <prefix>:rl:<tenant>:<username>  failed logins per account name
//   - <prefix>:rli:<ip>               failed logins per client IP (optional)
//
// Counters exist for any username, known or not, so the limiter never
// reveals whether an account exists.
package rate
