package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
)

const (
	detailUnauthorized = "Could not validate credentials"
	detailForbidden    = "Not enough permissions"
)

// Authenticator is the part of *tenantauth.Engine the guards need.
type Authenticator interface {
	VerifyAccessToken(ctx context.Context, token string) (*tenantauth.AuthResult, error)
	Authorize(ctx context.Context, result *tenantauth.AuthResult, roles ...string) error
}

// Guard rejects requests without a valid bearer access token.
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				WriteUnauthorized(w)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteUnauthorized(w)
				return
			}

			res, err := auth.VerifyAccessToken(r.Context(), token)
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenantauth.WithAuthResult(r.Context(), res)))
		})
	}
}

// RequireRoles must run after Guard. It passes requests whose identity holds
// any of roles.
func RequireRoles(auth Authenticator, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := tenantauth.AuthResultFromContext(r.Context())
			if !ok || auth == nil {
				WriteUnauthorized(w)
				return
			}

			if err := auth.Authorize(r.Context(), res, roles...); err != nil {
				if errors.Is(err, tenantauth.ErrPermissionDenied) {
					writeDetail(w, http.StatusForbidden, detailForbidden)
					return
				}
				WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Tenant copies the tenant id from header into the request context. Requests
// without the header fall back to the Engine's default tenant.
func Tenant(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenantID := strings.TrimSpace(r.Header.Get(header)); tenantID != "" {
				r = r.WithContext(tenantauth.WithTenantID(r.Context(), tenantID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP stores the caller address for per-IP throttling. With
// trustForwarded the first X-Forwarded-For entry wins; only enable it behind
// a proxy that overwrites the header.
func ClientIP(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := clientIP(r, trustForwarded); ip != "" {
				r = r.WithContext(tenantauth.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// WriteUnauthorized writes the uniform 401 response.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detailUnauthorized)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
