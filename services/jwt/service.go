package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

const refreshTokenType = "refresh"

// Every verification failure satisfies errors.Is(err, ErrInvalidToken).
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = fmt.Errorf("%w: token has expired", ErrInvalidToken)
	ErrMalformedToken   = fmt.Errorf("%w: malformed token", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrInvalidToken)
	ErrWrongTokenType   = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
)

type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID   string `json:"userId"`
	FamilyID string `json:"familyId"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type IssuedRefresh struct {
	Token     string
	FamilyID  string
	ExpiresAt time.Time
}

// Service signs and verifies access and refresh tokens. The two kinds use
// separate secrets and are never accepted in place of each other.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	logger        *logging.Service
	now           func() time.Time
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing token codec",
			zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
			zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry))
	}
	return &Service{
		accessSecret:  []byte(cfg.JWT.AccessSecret),
		refreshSecret: []byte(cfg.JWT.RefreshSecret),
		accessExpiry:  cfg.JWT.AccessExpiry,
		refreshExpiry: cfg.JWT.RefreshExpiry,
		issuer:        cfg.JWT.Issuer,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *Service) AccessExpiry() time.Duration {
	return s.accessExpiry
}

func (s *Service) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

func (s *Service) registered(subject string, expiry time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := s.now()
	expiresAt := now.Add(expiry)
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}, expiresAt
}

func (s *Service) IssueAccess(userID, email string) (string, error) {
	registered, _ := s.registered(userID, s.accessExpiry)
	claims := AccessClaims{
		UserID:           userID,
		Email:            email,
		RegisteredClaims: registered,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign access token", zap.Error(err))
		}
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, nil
}

// IssueRefresh signs a refresh token in familyID, minting a new family when
// familyID is empty. The jti makes every token unique even within one second.
func (s *Service) IssueRefresh(userID, familyID string) (*IssuedRefresh, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}

	registered, expiresAt := s.registered(userID, s.refreshExpiry)
	claims := RefreshClaims{
		UserID:           userID,
		FamilyID:         familyID,
		Type:             refreshTokenType,
		RegisteredClaims: registered,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign refresh token", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &IssuedRefresh{Token: token, FamilyID: familyID, ExpiresAt: expiresAt}, nil
}

func (s *Service) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (s *Service) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != refreshTokenType {
		if s.logger != nil {
			s.logger.Warn("refresh verification failed: wrong token type", zap.String("type", claims.Type))
		}
		return nil, ErrWrongTokenType
	}
	if claims.UserID == "" || claims.FamilyID == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

func (s *Service) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return secret, nil
	}, opts...)

	if err != nil {
		if s.logger != nil {
			s.logger.Debug("token verification failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return ErrInvalidSignature
		default:
			return ErrInvalidToken
		}
	}

	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
