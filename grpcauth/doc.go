// Package grpcauth authenticates unary gRPC calls with a tenantauth.Engine.
//
// The access token travels in the "authorization" metadata entry as
// "Bearer <token>". Verified identities are stored with
// tenantauth.WithAuthResult, so handlers read them exactly like HTTP
// handlers do. When the presented token is close to expiry a replacement
// is sent back in the "x-new-access-token" response header.
package grpcauth
