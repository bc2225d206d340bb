// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package csrf issues and verifies stateless anti-forgery tokens of the form
// nonce.timestampMillis.hmac. Tokens are not single-use: any token stays valid
// until it ages out.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token delivery names.
const (
	CookieName = "csrf-token"
	HeaderName = "X-CSRF-Token"
	BodyField  = "csrfToken"
)

// DefaultMaxAge is how long an issued token is accepted.
const DefaultMaxAge = time.Hour

const nonceBytes = 8

// Service signs and verifies tokens with a server-held secret.
type Service struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewService creates a token service keyed by secret.
func NewService(secret string) *Service {
	return &Service{
		secret: []byte(secret),
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
}

// MaxAge returns the configured token lifetime.
func (s *Service) MaxAge() time.Duration {
	return s.maxAge
}

// Generate returns a fresh token.
func (s *Service) Generate() (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating csrf nonce: %w", err)
	}

	data := hex.EncodeToString(nonce) + "." + strconv.FormatInt(s.now().UnixMilli(), 10)
	return data + "." + s.sign(data), nil
}

// Verify checks a token against the default max age.
func (s *Service) Verify(token string) bool {
	return s.VerifyAge(token, s.maxAge)
}

// VerifyAge recomputes the HMAC and requires the token to be younger than maxAge.
func (s *Service) VerifyAge(token string, maxAge time.Duration) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return false
	}

	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return false
	}

	age := s.now().UnixMilli() - issued
	return age >= 0 && age < maxAge.Milliseconds()
}

func (s *Service) sign(data string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
