package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/grpcauth"
	"github.com/MrEthical07/tenantauth/internal/httpapi"
	"github.com/MrEthical07/tenantauth/metrics/export/prometheus"
	"github.com/MrEthical07/tenantauth/middleware"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/users"
)

// Guards the exported surface consumers build against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = tenantauth.New
	_ = tenantauth.DefaultConfig

	var _ *tenantauth.Engine
	var _ tenantauth.Config
	var _ tenantauth.AuthResult
	var _ tenantauth.TokenPair
	var _ tenantauth.User
	var _ tenantauth.RoleSet
	var _ tenantauth.AuditEvent
	var _ tenantauth.AuditSink = tenantauth.NoOpSink{}

	var _ tenantauth.UserProvider = (*users.MemoryRepository)(nil)
	var _ tenantauth.PasswordUpdater = (*users.MemoryRepository)(nil)
	var _ tenantauth.UserProvider = (*users.PostgresRepository)(nil)

	var _ refresh.Store = (*refresh.RedisStore)(nil)
	var _ refresh.Store = (*refresh.GormStore)(nil)
	var _ refresh.Store = (*refresh.MongoStore)(nil)

	var _ error = tenantauth.ErrAuthFailed
	var _ error = tenantauth.ErrInvalidRefresh
	var _ error = tenantauth.ErrUnauthorized
	var _ error = tenantauth.ErrPermissionDenied
	var _ error = tenantauth.ErrNotFound
	var _ error = tenantauth.ErrStoreUnavailable
	var _ error = tenantauth.ErrLoginRateLimited

	var _ func(*tenantauth.Engine, context.Context, string, string) (*tenantauth.TokenPair, error) = (*tenantauth.Engine).Login
	var _ func(*tenantauth.Engine, context.Context, string) (*tenantauth.TokenPair, error) = (*tenantauth.Engine).Refresh
	var _ func(*tenantauth.Engine, context.Context, string, string) error = (*tenantauth.Engine).Logout
	var _ func(*tenantauth.Engine, context.Context, string) (int, error) = (*tenantauth.Engine).LogoutAll
	var _ func(*tenantauth.Engine, context.Context, string) (*tenantauth.AuthResult, error) = (*tenantauth.Engine).VerifyAccessToken
	var _ func(*tenantauth.Engine, context.Context, string) (string, bool) = (*tenantauth.Engine).SilentRefresh
	var _ func(*tenantauth.Engine, context.Context, *tenantauth.AuthResult) (*tenantauth.User, error) = (*tenantauth.Engine).Me

	var _ middleware.Authenticator = (*tenantauth.Engine)(nil)
	var _ middleware.Refresher = (*tenantauth.Engine)(nil)
	var _ grpcauth.Authenticator = (*tenantauth.Engine)(nil)
	var _ httpapi.Engine = (*tenantauth.Engine)(nil)
	var _ prometheus.Source = (*tenantauth.Engine)(nil)

	var _ func(middleware.Authenticator) func(http.Handler) http.Handler = middleware.Guard
	var _ func(middleware.Refresher, middleware.Options) func(http.Handler) http.Handler = middleware.SilentRefresh
}
