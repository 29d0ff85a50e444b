package grpcauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/tenantauth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// DefaultNewTokenHeader is the response header key of a replacement token.
	DefaultNewTokenHeader = "x-new-access-token"
	// DefaultTenantKey is the metadata key naming the tenant of a call.
	DefaultTenantKey = "x-tenant-id"

	authorizationKey = "authorization"
	msgUnauthorized  = "Could not validate credentials"
)

// Authenticator is the part of *tenantauth.Engine the interceptor needs.
type Authenticator interface {
	VerifyAccessToken(ctx context.Context, token string) (*tenantauth.AuthResult, error)
	SilentRefresh(ctx context.Context, accessToken string) (string, bool)
}

// Options configures UnaryServerInterceptor.
type Options struct {
	// PublicMethods are full method names ("/pkg.Service/Method") that skip
	// authentication.
	PublicMethods []string
	HeaderName    string
	TenantKey     string
	// DisableSilentRefresh turns off replacement tokens.
	DisableSilentRefresh bool
}

// UnaryServerInterceptor rejects calls to non-public methods that lack a
// valid access token with codes.Unauthenticated.
func UnaryServerInterceptor(auth Authenticator, opts Options) grpc.UnaryServerInterceptor {
	public := make(map[string]struct{}, len(opts.PublicMethods))
	for _, m := range opts.PublicMethods {
		public[m] = struct{}{}
	}
	header := opts.HeaderName
	if header == "" {
		header = DefaultNewTokenHeader
	}
	tenantKey := opts.TenantKey
	if tenantKey == "" {
		tenantKey = DefaultTenantKey
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if tenantID := first(md, tenantKey); tenantID != "" {
			ctx = tenantauth.WithTenantID(ctx, tenantID)
		}

		if _, ok := public[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		if auth == nil {
			return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
		}

		token, ok := bearer(first(md, authorizationKey))
		if !ok {
			return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
		}
		res, err := auth.VerifyAccessToken(ctx, token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, msgUnauthorized)
		}

		if !opts.DisableSilentRefresh {
			if fresh, ok := auth.SilentRefresh(ctx, token); ok {
				// Fails only outside a server stream; the call itself is fine.
				_ = grpc.SetHeader(ctx, metadata.Pairs(header, fresh))
			}
		}

		return handler(tenantauth.WithAuthResult(ctx, res), req)
	}
}

func first(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func bearer(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
