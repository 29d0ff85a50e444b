// Package refresh persists opaque refresh tokens.
//
// # Token format
//
// A refresh token is 32 bytes from crypto/rand, base64url encoded without
// padding. Stores never see the raw value after Create returns it: records
// are keyed by the hex SHA-256 of the value (see HashValue).
//
// # Lifecycle
//
// A record is created unrevoked and only ever moves to revoked. FindValid,
// Revoke and Rotate treat revoked, expired and unknown records the same way,
// so callers cannot tell them apart. Rotate is the single-use exchange used by
// the refresh flow; every backend performs it as one conditional write so that
// exactly one of several concurrent rotations of the same value succeeds.
//
// # Backends
//
//   - RedisStore: Lua scripts over a per-token hash and a per-user index set.
//   - GormStore: SQLite or Postgres through gorm, conditional UPDATE in a
//     transaction.
//   - MongoStore: FindOneAndUpdate with a validity filter.
package refresh
