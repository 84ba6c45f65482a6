package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/config"
	jwtmw "github.com/tech-arch1tect/portfolio/middleware/jwt"
	"github.com/tech-arch1tect/portfolio/services/refreshtoken"
)

const RefreshCookieName = "refreshToken"

type cookieWriter struct {
	secure        bool
	domain        string
	accessMaxAge  time.Duration
	refreshMaxAge time.Duration
}

func newCookieWriter(cfg *config.Config) cookieWriter {
	return cookieWriter{
		secure:        cfg.Cookie.Secure || cfg.App.IsProduction(),
		domain:        cfg.Cookie.Domain,
		accessMaxAge:  cfg.JWT.AccessExpiry,
		refreshMaxAge: cfg.JWT.RefreshExpiry,
	}
}

func (w cookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   w.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (w cookieWriter) setTokens(c echo.Context, pair *refreshtoken.TokenPair) {
	c.SetCookie(w.cookie(jwtmw.AccessCookieName, pair.AccessToken, int(w.accessMaxAge.Seconds())))
	c.SetCookie(w.cookie(RefreshCookieName, pair.RefreshToken, int(w.refreshMaxAge.Seconds())))
}

func (w cookieWriter) clear(c echo.Context) {
	c.SetCookie(w.cookie(jwtmw.AccessCookieName, "", -1))
	c.SetCookie(w.cookie(RefreshCookieName, "", -1))
}
