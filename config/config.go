package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Cookie    CookieConfig    `envPrefix:"COOKIE_"`
	TOTP      TOTPConfig      `envPrefix:"TOTP_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	Contact   ContactConfig   `envPrefix:"CONTACT_"`
	Captcha   CaptchaConfig   `envPrefix:"CAPTCHA_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"Portfolio"`
	URL         string `env:"URL" envDefault:"http://localhost:8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"app.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	MinLength  int `env:"MIN_LENGTH" envDefault:"8"`
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"portfolio"`
	// CleanupInterval controls the expired refresh token sweep. Zero disables it.
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type CookieConfig struct {
	Secure bool   `env:"SECURE" envDefault:"false"`
	Domain string `env:"DOMAIN"`
}

type TOTPConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Issuer  string `env:"ISSUER" envDefault:"Portfolio"`
	// EncryptionKey is 64 hex characters or 32 raw bytes.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
}

// Key returns the decoded AES-256 key. Validate must have accepted the config first.
func (t TOTPConfig) Key() []byte {
	key, _ := decodeEncryptionKey(t.EncryptionKey)
	return key
}

type RateLimitConfig struct {
	Store         string        `env:"STORE" envDefault:"memory"`
	MaxKeys       int           `env:"MAX_KEYS" envDefault:"500"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	ContactLimit  int           `env:"CONTACT_LIMIT" envDefault:"5"`
	ContactWindow time.Duration `env:"CONTACT_WINDOW" envDefault:"15m"`
}

type MailConfig struct {
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string `env:"FROM_ADDRESS" envDefault:"noreply@localhost"`
	FromName    string `env:"FROM_NAME" envDefault:"Portfolio"`
}

type ContactConfig struct {
	Recipient string `env:"RECIPIENT"`
}

type CaptchaConfig struct {
	SecretKey string        `env:"SECRET_KEY"`
	VerifyURL string        `env:"VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}

	return nil
}

func (c *Config) Validate() error {
	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}
	if err := validateAuthConfig(&c.Auth); err != nil {
		return err
	}
	if err := validateTOTPConfig(&c.TOTP); err != nil {
		return err
	}
	return validateRateLimitConfig(&c.RateLimit)
}

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func validateSecret(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters long", name)
	}
	lower := strings.ToLower(value)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%s contains weak patterns", name)
		}
	}
	return nil
}

func validateJWTConfig(cfg *JWTConfig) error {
	if err := validateSecret("JWT access secret", cfg.AccessSecret); err != nil {
		return err
	}
	if err := validateSecret("JWT refresh secret", cfg.RefreshSecret); err != nil {
		return err
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return errors.New("JWT access and refresh secrets must differ")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= 0 {
		return errors.New("JWT expiries must be positive")
	}
	if cfg.RefreshExpiry <= cfg.AccessExpiry {
		return errors.New("JWT refresh expiry must be longer than access expiry")
	}
	return nil
}

func validateAuthConfig(cfg *AuthConfig) error {
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", cfg.BcryptCost)
	}
	if cfg.MinLength < 1 {
		return errors.New("password minimum length must be positive")
	}
	return nil
}

func validateTOTPConfig(cfg *TOTPConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.EncryptionKey == "" {
		return errors.New("TOTP encryption key is required when TOTP is enabled")
	}
	if _, err := decodeEncryptionKey(cfg.EncryptionKey); err != nil {
		return err
	}
	return nil
}

func decodeEncryptionKey(raw string) ([]byte, error) {
	if len(raw) == 64 {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("TOTP encryption key is not valid hex: %w", err)
		}
		return key, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("TOTP encryption key must be exactly 32 bytes (or 64 hex characters), got %d characters", len(raw))
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Store {
	case "memory":
		if cfg.MaxKeys <= 0 {
			return errors.New("rate limit max keys must be positive")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("rate limit redis address is required for the redis store")
		}
	default:
		return fmt.Errorf("rate limit store must be: memory or redis, got %q", cfg.Store)
	}
	if cfg.ContactLimit <= 0 || cfg.ContactWindow <= 0 {
		return errors.New("contact rate limit must be positive")
	}
	return nil
}
