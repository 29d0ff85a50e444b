package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/labstack/echo/v4"
)

const (
	msgBadCredentials = "Incorrect username or password"
	msgInvalidRefresh = "Invalid or expired refresh token"
	msgLogoutInvalid  = "Invalid refresh token"
	msgUnavailable    = "Authentication service unavailable"
	msgResetRequested = "If a user with this username exists, a password reset link has been sent."
	msgResetDone      = "Password has been reset successfully. You can now login with your new password."
)

type handler struct {
	engine           Engine
	log              *slog.Logger
	exposeResetToken bool
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetRequest struct {
	Username string `json:"username"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type userResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"is_active"`
}

func (h *handler) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	return h.issue(c, req)
}

// token is the OAuth2 password grant endpoint (form encoded).
func (h *handler) token(c echo.Context) error {
	if gt := c.FormValue("grant_type"); gt != "" && gt != "password" {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported_grant_type")
	}
	return h.issue(c, loginRequest{
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
	})
}

func (h *handler) issue(c echo.Context, req loginRequest) error {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username and password are required")
	}

	pair, err := h.engine.Login(c.Request().Context(), req.Username, req.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, pair)
	case errors.Is(err, tenantauth.ErrAuthFailed):
		return echo.NewHTTPError(http.StatusUnauthorized, msgBadCredentials)
	case errors.Is(err, tenantauth.ErrLoginRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts, try again later")
	default:
		h.log.Error("login failed", slog.String("op", "httpapi.login"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
}

func (h *handler) refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	pair, err := h.engine.Refresh(c.Request().Context(), req.RefreshToken)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, pair)
	case errors.Is(err, tenantauth.ErrStoreUnavailable):
		h.log.Error("refresh store unavailable", slog.String("op", "httpapi.refresh"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	case errors.Is(err, tenantauth.ErrInvalidRefresh):
		return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidRefresh)
	default:
		h.log.Error("refresh failed", slog.String("op", "httpapi.refresh"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
}

func (h *handler) logout(c echo.Context) error {
	res, ok := tenantauth.AuthResultFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	}

	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	err := h.engine.Logout(c.Request().Context(), req.RefreshToken, res.UserID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"detail": "Successfully logged out"})
	case errors.Is(err, tenantauth.ErrInvalidRefresh):
		return echo.NewHTTPError(http.StatusBadRequest, msgLogoutInvalid)
	default:
		h.log.Error("logout failed", slog.String("op", "httpapi.logout"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
}

func (h *handler) logoutAll(c echo.Context) error {
	res, ok := tenantauth.AuthResultFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	}

	n, err := h.engine.LogoutAll(c.Request().Context(), res.UserID)
	if err != nil {
		h.log.Error("logout all failed", slog.String("op", "httpapi.logoutAll"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "Logged out from all sessions", "revoked": n})
}

func (h *handler) me(c echo.Context) error {
	res, ok := tenantauth.AuthResultFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	}

	user, err := h.engine.Me(c.Request().Context(), res)
	switch {
	case err == nil:
	case errors.Is(err, tenantauth.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	default:
		h.log.Error("load current user", slog.String("op", "httpapi.me"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
	if user.Disabled {
		return echo.NewHTTPError(http.StatusBadRequest, "Inactive user")
	}

	roles := user.Roles
	if roles == nil {
		roles = tenantauth.RoleSet{}
	}
	return c.JSON(http.StatusOK, userResponse{
		ID:       user.ID,
		Username: user.Username,
		TenantID: user.TenantID,
		Roles:    roles,
		IsActive: !user.Disabled,
	})
}

func (h *handler) requestPasswordReset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username is required")
	}

	token, err := h.engine.RequestPasswordReset(c.Request().Context(), req.Username)
	switch {
	case err == nil:
	case errors.Is(err, tenantauth.ErrPasswordResetDisabled):
		return echo.NewHTTPError(http.StatusNotFound, "Password reset is not enabled")
	default:
		h.log.Error("password reset request failed", slog.String("op", "httpapi.requestPasswordReset"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}

	body := echo.Map{"detail": msgResetRequested}
	if h.exposeResetToken && token != "" {
		body["reset_token"] = token
	}
	return c.JSON(http.StatusOK, body)
}

func (h *handler) confirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	err := h.engine.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"detail": msgResetDone})
	case errors.Is(err, tenantauth.ErrPasswordResetDisabled):
		return echo.NewHTTPError(http.StatusNotFound, "Password reset is not enabled")
	case errors.Is(err, tenantauth.ErrPasswordResetInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired reset token")
	case errors.Is(err, tenantauth.ErrPasswordPolicy):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "New password does not meet the password policy")
	default:
		h.log.Error("password reset confirm failed", slog.String("op", "httpapi.confirmPasswordReset"), logging.Err(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgUnavailable)
	}
}
