package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/portfolio/testutils"
)

func newVerifier(t *testing.T, handler http.HandlerFunc) *TurnstileVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testutils.GetTestConfig()
	cfg.Captcha.VerifyURL = server.URL
	return NewTurnstileVerifier(cfg, nil)
}

func TestVerify_Success(t *testing.T) {
	var got verifyRequest
	v := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"hostname":"example.com"}`))
	})

	ok, err := v.Verify(context.Background(), "token-1", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, testutils.GetTestConfig().Captcha.SecretKey, got.Secret)
	assert.Equal(t, "token-1", got.Response)
	assert.Equal(t, "1.2.3.4", got.RemoteIP)
}

func TestVerify_Rejected(t *testing.T) {
	v := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	})

	ok, err := v.Verify(context.Background(), "bad", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MissingSecret(t *testing.T) {
	called := false
	v := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	v.secret = ""

	ok, err := v.Verify(context.Background(), "token", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestVerify_BadResponse(t *testing.T) {
	v := newVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>"))
	})

	ok, err := v.Verify(context.Background(), "token", "")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestVerify_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := testutils.GetTestConfig()
	cfg.Captcha.VerifyURL = url
	v := NewTurnstileVerifier(cfg, nil)

	ok, err := v.Verify(context.Background(), "token", "")
	assert.Error(t, err)
	assert.False(t, ok)
}
