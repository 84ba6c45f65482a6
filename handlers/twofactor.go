package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	jwtmw "github.com/tech-arch1tect/portfolio/middleware/jwt"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/totp"
)

// twoFactorError maps totp errors shared by the 2FA endpoints.
func (h *AuthHandler) twoFactorError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, totp.ErrTOTPDisabled):
		return errorJSON(c, http.StatusServiceUnavailable, "Two-factor authentication is not available")
	case errors.Is(err, auth.ErrUserNotFound):
		return errorJSON(c, http.StatusNotFound, "User not found")
	case errors.Is(err, totp.ErrAlreadyEnabled):
		return errorJSON(c, http.StatusBadRequest, "2FA is already enabled")
	case errors.Is(err, totp.ErrNotEnabled):
		return errorJSON(c, http.StatusBadRequest, "2FA is not enabled")
	case errors.Is(err, totp.ErrSetupRequired):
		return errorJSON(c, http.StatusBadRequest, "2FA setup has not been started")
	case errors.Is(err, totp.ErrInvalidCode), errors.Is(err, totp.ErrCodeAlreadyUsed):
		return errorJSON(c, http.StatusBadRequest, "Invalid verification code")
	default:
		return h.internalError(c, "two-factor request failed", err)
	}
}

// codeFrom returns the code field of the body, or "" when it is missing or
// the body does not parse.
func codeFrom(c echo.Context) string {
	var req CodeRequest
	if err := c.Bind(&req); err != nil {
		return ""
	}
	return req.Code
}

func (h *AuthHandler) SetupTwoFactor(c echo.Context) error {
	enrollment, err := h.totp.BeginSetup(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		return h.twoFactorError(c, err)
	}

	return c.JSON(http.StatusOK, TwoFactorSetupResponse{
		QRCode:     enrollment.QRCode,
		Secret:     enrollment.FormattedSecret,
		RawSecret:  enrollment.Secret,
		OTPAuthURL: enrollment.URI,
	})
}

func (h *AuthHandler) EnableTwoFactor(c echo.Context) error {
	code := codeFrom(c)
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, "Verification code is required")
	}

	backupCodes, err := h.totp.Enable(c.Request().Context(), jwtmw.GetUserID(c), code)
	if err != nil {
		return h.twoFactorError(c, err)
	}

	return c.JSON(http.StatusOK, BackupCodesResponse{
		Message:     "Two-factor authentication enabled",
		BackupCodes: backupCodes,
	})
}

func (h *AuthHandler) DisableTwoFactor(c echo.Context) error {
	code := codeFrom(c)
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, "Verification code is required")
	}

	if err := h.totp.Disable(c.Request().Context(), jwtmw.GetUserID(c), code); err != nil {
		return h.twoFactorError(c, err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Two-factor authentication disabled"})
}

func (h *AuthHandler) TwoFactorStatus(c echo.Context) error {
	ctx := c.Request().Context()
	userID := jwtmw.GetUserID(c)

	user, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		return h.twoFactorError(c, err)
	}

	remaining, err := h.totp.RemainingBackupCodes(ctx, userID)
	if err != nil {
		return h.twoFactorError(c, err)
	}

	return c.JSON(http.StatusOK, TwoFactorStatusResponse{
		Enabled:              user.TwoFactorEnabled,
		BackupCodesRemaining: remaining,
	})
}

func (h *AuthHandler) RegenerateBackupCodes(c echo.Context) error {
	code := codeFrom(c)
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, "Verification code is required")
	}

	backupCodes, err := h.totp.RegenerateBackupCodes(c.Request().Context(), jwtmw.GetUserID(c), code)
	if err != nil {
		return h.twoFactorError(c, err)
	}

	return c.JSON(http.StatusOK, BackupCodesResponse{
		Message:     "Backup codes regenerated",
		BackupCodes: backupCodes,
	})
}
