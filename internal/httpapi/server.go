// Package httpapi exposes the engine over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/middleware"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const (
	AuthPrefix  = "/api/v1/auth"
	AdminPrefix = "/api/v1/admin"
)

// Engine is the subset of *tenantauth.Engine the API calls.
type Engine interface {
	middleware.Authenticator
	middleware.Refresher
	Login(ctx context.Context, username, password string) (*tenantauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*tenantauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken, currentUserID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	Me(ctx context.Context, result *tenantauth.AuthResult) (*tenantauth.User, error)
	RequestPasswordReset(ctx context.Context, username string) (string, error)
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

type Options struct {
	Logger         *slog.Logger
	TenantHeader   string
	TrustForwarded bool
	// NewTokenHeader carries silently refreshed access tokens.
	NewTokenHeader string
	MetricsPath    string
	MetricsHandler http.Handler
	// ExposeResetToken returns password reset tokens in the response body.
	// Only for local development, where no mailer delivers them.
	ExposeResetToken bool
}

// New builds the echo instance with every route registered.
func New(engine Engine, opts Options) *echo.Echo {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	e.Use(echo.WrapMiddleware(middleware.ClientIP(opts.TrustForwarded)))
	if opts.TenantHeader != "" {
		e.Use(echo.WrapMiddleware(middleware.Tenant(opts.TenantHeader)))
	}

	h := &handler{engine: engine, log: log, exposeResetToken: opts.ExposeResetToken}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(opts.MetricsHandler))
	}

	auth := e.Group(AuthPrefix)
	auth.POST("/login", h.login)
	auth.POST("/token", h.token)
	auth.POST("/refresh", h.refresh)
	auth.POST("/password-reset/request", h.requestPasswordReset)
	auth.POST("/password-reset/confirm", h.confirmPasswordReset)

	guard := echo.WrapMiddleware(middleware.Guard(engine))
	silent := echo.WrapMiddleware(middleware.SilentRefresh(engine, middleware.Options{
		HeaderName: opts.NewTokenHeader,
		Classifier: middleware.ExactPaths(AuthPrefix+"/logout", AuthPrefix+"/logout-all"),
	}))

	private := auth.Group("", guard, silent)
	private.POST("/logout", h.logout)
	private.POST("/logout-all", h.logoutAll)
	private.GET("/me", h.me)

	admin := e.Group(AdminPrefix, guard, silent,
		echo.WrapMiddleware(middleware.RequireRoles(engine, tenantauth.RoleAdmin)))
	admin.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"detail": "pong"})
	})

	return e
}

// errorHandler renders every error as {"detail": "..."}. 401 responses carry
// the Bearer challenge.
func errorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			log.Error("unhandled error",
				slog.String("path", c.Request().URL.Path),
				logging.Err(err),
			)
			he = echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
		}
		if he.Code == http.StatusUnauthorized {
			c.Response().Header().Set("WWW-Authenticate", "Bearer")
		}

		detail := fmt.Sprint(he.Message)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, echo.Map{"detail": detail})
	}
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}
