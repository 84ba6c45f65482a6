package jwt

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/services/jwt"
)

const (
	UserIDKey = "_jwt_user_id"
	ClaimsKey = "_jwt_claims"

	AccessCookieName = "accessToken"
)

type AccessVerifier interface {
	VerifyAccess(token string) (*jwt.AccessClaims, error)
}

// RequireJWT accepts the access token from the accessToken cookie, falling
// back to an Authorization bearer header.
func RequireJWT(verifier AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := verifier.VerifyAccess(token)
			if err != nil {
				switch {
				case errors.Is(err, jwt.ErrExpiredToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				case errors.Is(err, jwt.ErrMalformedToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "Malformed access token")
				case errors.Is(err, jwt.ErrInvalidSignature):
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token signature")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
				}
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

// OptionalJWT stores the claims when a valid access token is present and
// otherwise continues without them.
func OptionalJWT(verifier AccessVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, err := extractToken(c); err == nil {
				if claims, err := verifier.VerifyAccess(token); err == nil {
					c.Set(UserIDKey, claims.UserID)
					c.Set(ClaimsKey, claims)
				}
			}
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	if cookie, err := c.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
	}
	return token, nil
}

func GetUserID(c echo.Context) string {
	if userID, ok := c.Get(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

func GetClaims(c echo.Context) *jwt.AccessClaims {
	if claims, ok := c.Get(ClaimsKey).(*jwt.AccessClaims); ok {
		return claims
	}
	return nil
}
