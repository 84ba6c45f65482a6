package testutils

import (
	"time"

	"github.com/tech-arch1tect/portfolio/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	TestAccessSecret  = "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0u1v2w3x4y5z6"
	TestRefreshSecret = "z6y5x4w3v2u1t0s9r8q7p6o5n4m3l2k1j0i9h8g7f6e5d4c3b2a1"
	TestEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

// GetTestConfig returns a valid configuration with the cheapest bcrypt cost.
func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Test Portfolio",
			URL:         "http://localhost:8080",
			Environment: "test",
		},
		Log: config.LogConfig{Level: "error", Format: "json", Output: "stdout"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Auth: config.AuthConfig{
			MinLength:  8,
			BcryptCost: bcrypt.MinCost,
		},
		JWT: config.JWTConfig{
			AccessSecret:  TestAccessSecret,
			RefreshSecret: TestRefreshSecret,
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 7 * 24 * time.Hour,
			Issuer:        "test-issuer",
		},
		TOTP: config.TOTPConfig{
			Enabled:       true,
			Issuer:        "Test Portfolio",
			EncryptionKey: TestEncryptionKey,
		},
		RateLimit: config.RateLimitConfig{
			Store:         "memory",
			MaxKeys:       500,
			ContactLimit:  5,
			ContactWindow: 15 * time.Minute,
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "noreply@example.com",
			FromName:    "Portfolio",
		},
		Contact: config.ContactConfig{Recipient: "owner@example.com"},
		Captcha: config.CaptchaConfig{
			SecretKey: "1x0000000000000000000000000000000AA",
			Timeout:   time.Second,
		},
	}
}

var TestPasswords = struct {
	Valid    string
	TooShort string
}{
	Valid:    "Password123",
	TooShort: "Pass1",
}

var TestUsers = struct {
	Email        string
	Name         string
	Password     string
	InvalidEmail string
}{
	Email:        "test@example.com",
	Name:         "Test User",
	Password:     "Password123",
	InvalidEmail: "invalid-email",
}
