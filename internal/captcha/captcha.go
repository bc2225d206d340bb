// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package captcha verifies challenge tokens against an hCaptcha or
// reCAPTCHA compatible siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the hCaptcha verification endpoint.
const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

const verifyTimeout = 10 * time.Second

// Verification errors.
var (
	ErrDisabled        = errors.New("captcha is not configured")
	ErrMissingResponse = errors.New("missing captcha response")
	ErrRejected        = errors.New("captcha rejected")
)

// VerifyResponse represents the siteverify API response.
type VerifyResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks captcha tokens.
type Verifier struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    *slog.Logger
}

// NewVerifier creates a verifier. An empty secret yields a verifier that
// rejects every token. An empty verifyURL uses DefaultVerifyURL.
func NewVerifier(secret, verifyURL string, logger *slog.Logger) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: verifyTimeout},
		logger:    logger,
	}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify posts token to the siteverify endpoint and returns nil only when
// the provider reports success.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return ErrDisabled
	}
	if token == "" {
		return ErrMissingResponse
	}

	data := url.Values{}
	data.Set("secret", v.secret)
	data.Set("response", token)
	if remoteIP != "" && remoteIP != "unknown" {
		data.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("building captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha verification request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha server returned status %d", resp.StatusCode)
	}

	var result VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse captcha response: %w", err)
	}

	if !result.Success {
		v.logger.Warn("captcha verification failed",
			"error_codes", result.ErrorCodes,
			"remote_ip", remoteIP,
			"category", "security",
		)
		return ErrRejected
	}
	return nil
}
