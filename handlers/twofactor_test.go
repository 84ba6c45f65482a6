package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/portfolio/config"
)

// enableTwoFactor runs setup and enable for a logged in user and returns the
// raw secret and the backup codes.
func (env *testEnv) enableTwoFactor(access *http.Cookie) (string, []string) {
	env.t.Helper()

	rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/setup", cookies: []*http.Cookie{access}})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
	setup := decodeJSON[TwoFactorSetupResponse](env.t, rec)

	code, err := totp.GenerateCode(setup.RawSecret, time.Now())
	require.NoError(env.t, err)

	rec = env.do(request{
		method:  http.MethodPost,
		path:    "/api/auth/2fa/enable",
		body:    `{"code":"` + code + `"}`,
		cookies: []*http.Cookie{access},
	})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
	return setup.RawSecret, decodeJSON[BackupCodesResponse](env.t, rec).BackupCodes
}

func TestTwoFactorSetup(t *testing.T) {
	env := setupEnv(t)
	env.register("otp@example.com", password)
	access, _ := env.login("otp@example.com", password, "")

	rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/setup"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(request{method: http.MethodPost, path: "/api/auth/2fa/setup", cookies: []*http.Cookie{access}})
	require.Equal(t, http.StatusOK, rec.Code)

	setup := decodeJSON[TwoFactorSetupResponse](t, rec)
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/"))
	assert.Equal(t, setup.RawSecret, strings.ReplaceAll(setup.Secret, " ", ""))

	t.Run("enable requires a code", func(t *testing.T) {
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/enable", body: `{}`, cookies: []*http.Cookie{access}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Verification code is required", decodeJSON[ErrorResponse](t, rec).Error)
	})

	t.Run("enable rejects a wrong code", func(t *testing.T) {
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/enable", body: `{"code":"12345"}`, cookies: []*http.Cookie{access}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid verification code", decodeJSON[ErrorResponse](t, rec).Error)
	})
}

func TestTwoFactorLifecycle(t *testing.T) {
	env := setupEnv(t)
	env.register("cycle@example.com", password)
	access, _ := env.login("cycle@example.com", password, "")

	_, backup := env.enableTwoFactor(access)
	require.Len(t, backup, 10)

	rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/setup", cookies: []*http.Cookie{access}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "2FA is already enabled", decodeJSON[ErrorResponse](t, rec).Error)

	t.Run("login without code", func(t *testing.T) {
		rec := env.do(request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"cycle@example.com","password":"Password123"}`,
			ip:     env.nextIP(),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		resp := decodeJSON[TwoFactorRequiredResponse](t, rec)
		assert.True(t, resp.TwoFactorRequired)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("login with invalid code", func(t *testing.T) {
		rec := env.do(request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"cycle@example.com","password":"Password123","code":"ZZZZZZZZ"}`,
			ip:     env.nextIP(),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, decodeJSON[TwoFactorRequiredResponse](t, rec).TwoFactorRequired)
	})

	t.Run("login with backup code once", func(t *testing.T) {
		env.login("cycle@example.com", password, backup[0])

		rec := env.do(request{
			method: http.MethodPost,
			path:   "/api/auth/login",
			body:   `{"email":"cycle@example.com","password":"Password123","code":"` + backup[0] + `"}`,
			ip:     env.nextIP(),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("status", func(t *testing.T) {
		rec := env.do(request{method: http.MethodGet, path: "/api/auth/2fa/status", cookies: []*http.Cookie{access}})
		require.Equal(t, http.StatusOK, rec.Code)

		status := decodeJSON[TwoFactorStatusResponse](t, rec)
		assert.True(t, status.Enabled)
		assert.Equal(t, 9, status.BackupCodesRemaining)
	})

	t.Run("regenerate backup codes", func(t *testing.T) {
		rec := env.do(request{
			method:  http.MethodPost,
			path:    "/api/auth/2fa/backup-codes",
			body:    `{"code":"` + backup[1] + `"}`,
			cookies: []*http.Cookie{access},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		fresh := decodeJSON[BackupCodesResponse](t, rec).BackupCodes
		require.Len(t, fresh, 10)
		backup = fresh
	})

	t.Run("disable", func(t *testing.T) {
		rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/disable", body: `{"code":"00000000"}`, cookies: []*http.Cookie{access}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(request{
			method:  http.MethodPost,
			path:    "/api/auth/2fa/disable",
			body:    `{"code":"` + backup[0] + `"}`,
			cookies: []*http.Cookie{access},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		env.login("cycle@example.com", password, "")
	})
}

func TestTwoFactor_Unavailable(t *testing.T) {
	env := setupEnv(t, func(cfg *config.Config) { cfg.TOTP.Enabled = false })
	env.register("off@example.com", password)
	access, _ := env.login("off@example.com", password, "")

	rec := env.do(request{method: http.MethodPost, path: "/api/auth/2fa/setup", cookies: []*http.Cookie{access}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
