package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/auth"
)

const password = "Password123"

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"missing password", `{"email":"a@example.com"}`, http.StatusBadRequest, "Email and password are required"},
		{"invalid email", `{"email":"nope","password":"Password123"}`, http.StatusBadRequest, "Invalid email format"},
		{"short password", `{"email":"a@example.com","password":"short"}`, http.StatusBadRequest, "Password must be at least 8 characters long"},
		{"malformed body", `{"email":`, http.StatusBadRequest, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			rec := env.do(request{method: http.MethodPost, path: "/api/auth/register", body: tt.body})

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeJSON[ErrorResponse](t, rec).Error)
		})
	}

	t.Run("success and duplicate", func(t *testing.T) {
		env := setupEnv(t)
		body := `{"email":"Jane@Example.com","password":"Password123","name":"Jane"}`

		rec := env.do(request{method: http.MethodPost, path: "/api/auth/register", body: body})
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decodeJSON[RegisterResponse](t, rec)
		assert.Equal(t, "User registered successfully", resp.Message)
		assert.Equal(t, "jane@example.com", resp.User.Email)
		require.NotNil(t, resp.User.Name)
		assert.Equal(t, "Jane", *resp.User.Name)
		assert.False(t, resp.User.TwoFactorEnabled)
		assert.NotContains(t, rec.Body.String(), "password")

		rec = env.do(request{method: http.MethodPost, path: "/api/auth/register", body: body})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := setupEnv(t)
		for i := 0; i < 3; i++ {
			env.do(request{method: http.MethodPost, path: "/api/auth/register", body: `{}`, ip: "192.0.2.50"})
		}

		rec := env.do(request{method: http.MethodPost, path: "/api/auth/register", body: `{}`, ip: "192.0.2.50"})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		resp := decodeJSON[RateLimitResponse](t, rec)
		assert.Equal(t, "Too many requests", resp.Error)
		assert.Positive(t, resp.RetryAfter)

		rec = env.do(request{method: http.MethodPost, path: "/api/auth/register", body: `{}`, ip: "192.0.2.51"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin(t *testing.T) {
	env := setupEnv(t)
	env.register("sam@example.com", password)

	t.Run("invalid credentials", func(t *testing.T) {
		for _, body := range []string{
			`{"email":"sam@example.com","password":"WrongPassword1"}`,
			`{"email":"nobody@example.com","password":"Password123"}`,
		} {
			rec := env.do(request{method: http.MethodPost, path: "/api/auth/login", body: body, ip: env.nextIP()})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid credentials", decodeJSON[ErrorResponse](t, rec).Error)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"sam@example.com"}`, ip: env.nextIP()})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success sets cookies", func(t *testing.T) {
		rec := env.do(request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"SAM@example.com","password":"Password123"}`,
			ip:     env.nextIP(),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeJSON[LoginResponse](t, rec)
		assert.Equal(t, "Login successful", resp.Message)
		assert.NotEmpty(t, resp.AccessToken)

		access := cookie(t, rec, "accessToken")
		assert.Equal(t, resp.AccessToken, access.Value)
		assert.True(t, access.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
		assert.Equal(t, "/", access.Path)
		assert.Equal(t, 15*60, access.MaxAge)
		assert.False(t, access.Secure)

		refresh := cookie(t, rec, RefreshCookieName)
		assert.True(t, refresh.HttpOnly)
		assert.Equal(t, 7*24*60*60, refresh.MaxAge)
	})

	t.Run("rate limited after five attempts", func(t *testing.T) {
		body := `{"email":"sam@example.com","password":"WrongPassword1"}`
		for i := 0; i < 5; i++ {
			rec := env.do(request{method: http.MethodPost, path: "/api/auth/login", body: body, ip: "192.0.2.99"})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		}

		rec := env.do(request{method: http.MethodPost, path: "/api/auth/login", body: body, ip: "192.0.2.99"})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	})
}

func TestLogin_SecureCookiesInProduction(t *testing.T) {
	env := setupEnv(t, func(cfg *config.Config) { cfg.App.Environment = "production" })
	env.register("prod@example.com", password)

	access, refresh := env.login("prod@example.com", password, "")
	assert.True(t, access.Secure)
	assert.True(t, refresh.Secure)
}

func TestRefresh(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		env := setupEnv(t)
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/refresh"})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Refresh token not found", decodeJSON[ErrorResponse](t, rec).Error)
	})

	t.Run("garbage token clears cookies", func(t *testing.T) {
		env := setupEnv(t)
		rec := env.do(request{
			method:  http.MethodPost,
			path:    "/api/auth/refresh",
			cookies: []*http.Cookie{{Name: RefreshCookieName, Value: "not-a-jwt"}},
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, -1, cookie(t, rec, RefreshCookieName).MaxAge)
	})

	t.Run("rotation and reuse detection", func(t *testing.T) {
		env := setupEnv(t)
		env.register("rotate@example.com", password)
		_, original := env.login("rotate@example.com", password, "")

		rec := env.do(request{method: http.MethodPost, path: "/api/auth/refresh", cookies: []*http.Cookie{original}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeJSON[RefreshResponse](t, rec)
		assert.Equal(t, "Tokens refreshed successfully", resp.Message)
		assert.NotEmpty(t, resp.AccessToken)
		rotated := cookie(t, rec, RefreshCookieName)
		assert.NotEqual(t, original.Value, rotated.Value)

		rec = env.do(request{method: http.MethodPost, path: "/api/auth/refresh", cookies: []*http.Cookie{original}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, msgReuseDetected, decodeJSON[ErrorResponse](t, rec).Error)
		assert.Equal(t, -1, cookie(t, rec, "accessToken").MaxAge)
		assert.Equal(t, -1, cookie(t, rec, RefreshCookieName).MaxAge)

		// the whole family is gone, including the legitimate successor
		rec = env.do(request{method: http.MethodPost, path: "/api/auth/refresh", cookies: []*http.Cookie{rotated}})
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("without session", func(t *testing.T) {
		env := setupEnv(t)
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/logout"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Logged out successfully", decodeJSON[MessageResponse](t, rec).Message)
		assert.Equal(t, -1, cookie(t, rec, "accessToken").MaxAge)
	})

	t.Run("revokes refresh tokens", func(t *testing.T) {
		env := setupEnv(t)
		env.register("bye@example.com", password)
		access, refresh := env.login("bye@example.com", password, "")

		rec := env.do(request{method: http.MethodPost, path: "/api/auth/logout", cookies: []*http.Cookie{access}})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(request{method: http.MethodPost, path: "/api/auth/refresh", cookies: []*http.Cookie{refresh}})
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

func TestMe(t *testing.T) {
	env := setupEnv(t)
	env.register("me@example.com", password)
	access, _ := env.login("me@example.com", password, "")

	t.Run("no token", func(t *testing.T) {
		rec := env.do(request{method: http.MethodGet, path: "/api/auth/me"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Access token required", decodeJSON[ErrorResponse](t, rec).Error)
	})

	t.Run("cookie", func(t *testing.T) {
		rec := env.do(request{method: http.MethodGet, path: "/api/auth/me", cookies: []*http.Cookie{access}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "me@example.com", decodeJSON[MeResponse](t, rec).User.Email)
	})

	t.Run("bearer header", func(t *testing.T) {
		rec := env.do(request{method: http.MethodGet, path: "/api/auth/me", bearer: access.Value})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		require.NoError(t, env.db.Where("email = ?", "me@example.com").Delete(&auth.User{}).Error)

		rec := env.do(request{method: http.MethodGet, path: "/api/auth/me", cookies: []*http.Cookie{access}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
