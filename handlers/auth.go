package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/config"
	jwtmw "github.com/tech-arch1tect/portfolio/middleware/jwt"
	"github.com/tech-arch1tect/portfolio/middleware/ratelimit"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"github.com/tech-arch1tect/portfolio/services/refreshtoken"
	"github.com/tech-arch1tect/portfolio/services/totp"
	"go.uber.org/zap"
)

const (
	msgInternalError = "Internal server error"
	msgReuseDetected = "Security breach detected. All tokens have been invalidated."
)

type AuthHandler struct {
	users   *auth.Service
	tokens  *refreshtoken.Service
	totp    *totp.Service
	cookies cookieWriter
	logger  *logging.Service

	minPasswordLength int
}

func NewAuthHandler(cfg *config.Config, users *auth.Service, tokens *refreshtoken.Service, totpService *totp.Service, logger *logging.Service) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		totp:    totpService,
		cookies: newCookieWriter(cfg),
		logger:  logger,

		minPasswordLength: cfg.Auth.MinLength,
	}
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: message})
}

func (h *AuthHandler) internalError(c echo.Context, msg string, err error) error {
	if h.logger != nil {
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.Path()))
	}
	return errorJSON(c, http.StatusInternalServerError, msgInternalError)
}

func device(c echo.Context) refreshtoken.Device {
	return refreshtoken.NewDevice(c.Request().UserAgent(), ratelimit.ClientIP(c))
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	user, err := h.users.Register(c.Request().Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			return errorJSON(c, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, auth.ErrInvalidEmail):
			return errorJSON(c, http.StatusBadRequest, "Invalid email format")
		case errors.Is(err, auth.ErrPasswordTooShort):
			return errorJSON(c, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", h.minPasswordLength))
		case errors.Is(err, auth.ErrDuplicateUser):
			return errorJSON(c, http.StatusConflict, "User with this email already exists")
		default:
			return h.internalError(c, "registration failed", err)
		}
	}

	return c.JSON(http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    newUserResponse(user),
	})
}

// Login checks the password and, for accounts with two-factor enabled, the
// code before starting a new token family.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}

	ctx := c.Request().Context()
	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			return errorJSON(c, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return errorJSON(c, http.StatusUnauthorized, "Invalid credentials")
		default:
			return h.internalError(c, "login failed", err)
		}
	}

	if user.TwoFactorEnabled {
		if req.Code == "" {
			return c.JSON(http.StatusUnauthorized, TwoFactorRequiredResponse{
				Error:             "Two-factor authentication code required",
				TwoFactorRequired: true,
			})
		}
		if err := h.totp.VerifyLogin(ctx, user.ID, req.Code); err != nil {
			if errors.Is(err, totp.ErrInvalidCode) || errors.Is(err, totp.ErrCodeAlreadyUsed) {
				return c.JSON(http.StatusUnauthorized, TwoFactorRequiredResponse{
					Error:             "Invalid two-factor authentication code",
					TwoFactorRequired: true,
				})
			}
			return h.internalError(c, "two-factor verification failed", err)
		}
	}

	pair, err := h.tokens.StartFamily(ctx, user, device(c))
	if err != nil {
		return h.internalError(c, "failed to issue tokens", err)
	}

	h.cookies.setTokens(c, pair)
	return c.JSON(http.StatusOK, LoginResponse{
		Message:     "Login successful",
		User:        newUserResponse(user),
		AccessToken: pair.AccessToken,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return errorJSON(c, http.StatusUnauthorized, "Refresh token not found")
	}

	pair, err := h.tokens.Redeem(c.Request().Context(), cookie.Value, device(c))
	if err != nil {
		switch {
		case errors.Is(err, refreshtoken.ErrTokenReuseDetected):
			h.cookies.clear(c)
			return errorJSON(c, http.StatusForbidden, msgReuseDetected)
		case errors.Is(err, refreshtoken.ErrInvalidToken):
			h.cookies.clear(c)
			return errorJSON(c, http.StatusUnauthorized, "Invalid or expired refresh token")
		default:
			return h.internalError(c, "token refresh failed", err)
		}
	}

	h.cookies.setTokens(c, pair)
	return c.JSON(http.StatusOK, RefreshResponse{
		Message:     "Tokens refreshed successfully",
		AccessToken: pair.AccessToken,
	})
}

// Logout always clears the cookies. With a valid access token it also
// revokes every refresh token of the user.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.cookies.clear(c)

	if userID := jwtmw.GetUserID(c); userID != "" {
		if err := h.tokens.Logout(c.Request().Context(), userID); err != nil {
			return h.internalError(c, "logout failed", err)
		}
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, err := h.users.GetUserByID(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return errorJSON(c, http.StatusNotFound, "User not found")
		}
		return h.internalError(c, "failed to load user", err)
	}
	return c.JSON(http.StatusOK, MeResponse{User: newUserResponse(user)})
}
