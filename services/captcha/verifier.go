package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

type verifyRequest struct {
	Secret   string `json:"secret"`
	Response string `json:"response"`
	RemoteIP string `json:"remoteip,omitempty"`
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// TurnstileVerifier checks widget tokens against Cloudflare's siteverify
// endpoint.
type TurnstileVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    *logging.Service
}

func NewTurnstileVerifier(cfg *config.Config, logger *logging.Service) *TurnstileVerifier {
	if logger != nil {
		logger.Info("initializing captcha verifier",
			zap.String("verify_url", cfg.Captcha.VerifyURL),
			zap.Bool("secret_configured", cfg.Captcha.SecretKey != ""))
	}

	return &TurnstileVerifier{
		secret:    cfg.Captcha.SecretKey,
		verifyURL: cfg.Captcha.VerifyURL,
		client:    &http.Client{Timeout: cfg.Captcha.Timeout},
		logger:    logger,
	}
}

// Verify reports whether the token was accepted. A missing secret rejects
// every token. Transport failures are returned as errors.
func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if v.secret == "" {
		if v.logger != nil {
			v.logger.Error("captcha secret key is not set")
		}
		return false, nil
	}

	body, err := json.Marshal(verifyRequest{Secret: v.secret, Response: token, RemoteIP: remoteIP})
	if err != nil {
		return false, fmt.Errorf("failed to encode captcha request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		if v.logger != nil {
			v.logger.Error("captcha verification request failed", zap.Error(err))
		}
		return false, fmt.Errorf("failed to verify captcha: %w", err)
	}
	defer resp.Body.Close()

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode captcha response (status %d): %w", resp.StatusCode, err)
	}

	if !result.Success {
		if v.logger != nil {
			v.logger.Warn("captcha verification failed", zap.Strings("error_codes", result.ErrorCodes))
		}
		return false, nil
	}
	return true, nil
}
