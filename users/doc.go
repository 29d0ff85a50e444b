// Package users provides tenantauth.UserProvider implementations.
//
// MemoryRepository keeps accounts in process memory and is seeded from
// configuration; it suits development and tests. PostgresRepository stores
// accounts in a users table managed by the embedded goose migrations. Roles
// are persisted in their comma-separated form ("USER,ADMIN") and parsed
// with tenantauth.ParseRoles on read.
//
// Both return errors matching tenantauth.ErrNotFound for unknown users and
// implement tenantauth.PasswordUpdater.
package users
