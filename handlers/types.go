package handlers

import (
	"time"

	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/wishes"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type TwoFactorRequiredResponse struct {
	Error             string `json:"error"`
	TwoFactorRequired bool   `json:"twoFactorRequired"`
}

type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             *string   `json:"name"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

func newUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}

type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

type RegisterResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code,omitempty" doc:"TOTP or backup code, required when two-factor authentication is enabled"`
}

type LoginResponse struct {
	Message     string       `json:"message"`
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
}

type RefreshResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type MeResponse struct {
	User UserResponse `json:"user"`
}

type TwoFactorSetupResponse struct {
	QRCode     string `json:"qrCode" doc:"PNG data URL"`
	Secret     string `json:"secret" doc:"secret grouped for manual entry"`
	RawSecret  string `json:"rawSecret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type BackupCodesResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backupCodes"`
}

type TwoFactorStatusResponse struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backupCodesRemaining"`
}

type ContactRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Subject      string `json:"subject"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captchaToken"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WishRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type WishesResponse struct {
	Success bool          `json:"success"`
	Wishes  []wishes.Wish `json:"wishes"`
}

type WishCreatedResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Wish    *wishes.Wish `json:"wish"`
}

type WishErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
