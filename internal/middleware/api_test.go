// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGlobalRateLimiter(t *testing.T) {
	rl := NewGlobalRateLimiter(0.001, 2)
	handler := rl.Middleware()(simpleOKHandler)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Errorf("first request = %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Errorf("second request = %d", code)
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other IP = %d, want 200", code)
	}
}

func TestLimiterCache_Reset(t *testing.T) {
	lc := newLimiterCache[int](1, 1)
	for i := range maxLimiters {
		lc.get(i)
	}
	if lc.len() != maxLimiters {
		t.Fatalf("len = %d", lc.len())
	}

	lc.get(-1)
	if lc.len() != 1 {
		t.Errorf("len after overflow = %d, want 1", lc.len())
	}
	if lc.get(-1) != lc.get(-1) {
		t.Error("get should return the cached limiter")
	}
}
