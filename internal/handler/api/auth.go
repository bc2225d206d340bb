// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mileusna/useragent"

	"github.com/olegiv/sitecms/internal/auth"
	"github.com/olegiv/sitecms/internal/csrf"
	"github.com/olegiv/sitecms/internal/middleware"
	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/ratelimit"
	"github.com/olegiv/sitecms/internal/store"
	"github.com/olegiv/sitecms/internal/util"
	"github.com/olegiv/sitecms/internal/validation"
)

// UserResponse is the public view of the logged-in user.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CSRFToken issues a fresh token in the body and in a readable cookie.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.CSRF.Generate()
	if err != nil {
		h.writeInternalError(w, r, "generating csrf token failed", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.CSRF.MaxAge() / time.Second),
		HttpOnly: false,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Login checks credentials and sets the session cookie. Once the per-IP
// login limit is exhausted a captcha token is required to continue.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := util.ClientIP(r)
	limit := h.Limiter.AllowOperation(ip, ratelimit.OpLogin)

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var in validation.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	in, err := validation.Login(in)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeValidationError(w, verrs)
			return
		}
		h.writeInternalError(w, r, "validating login failed", err)
		return
	}

	if !limit.Success {
		if in.Token == "" {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":           "Captcha required",
				"captchaRequired": true,
				"retryAfter":      limit.RetryAfter(h.now()),
			})
			return
		}
		if h.Captcha == nil {
			writeError(w, http.StatusBadRequest, "Captcha verification failed")
			return
		}
		if err := h.Captcha.Verify(r.Context(), in.Token, ip); err != nil {
			h.Logger.WarnContext(r.Context(), "captcha verification failed",
				"error", err, "ip", ip, "category", model.EventCategorySecurity)
			writeError(w, http.StatusBadRequest, "Captcha verification failed")
			return
		}
	}

	user, err := h.Sessions.ValidateCredentials(r.Context(), in.Username, in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.recordLogin(r, "Failed login attempt", model.EventLevelWarning, nil, in.Username)
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		h.writeInternalError(w, r, "validating credentials failed", err)
		return
	}

	token, err := h.Sessions.CreateSession(*user)
	if err != nil {
		h.writeInternalError(w, r, "creating session failed", err)
		return
	}

	h.recordLogin(r, "User logged in", model.EventLevelInfo, &user.ID, user.Username)
	middleware.SetSessionCookie(w, token, h.SecureCookies)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    UserResponse{ID: user.ID, Username: user.Username, Role: user.Role},
	})
}

// recordLogin writes an auth audit event with client details.
func (h *Handler) recordLogin(r *http.Request, message, level string, userID *int64, username string) {
	ip := util.ClientIP(r)
	ua := useragent.Parse(r.UserAgent())

	meta, _ := json.Marshal(map[string]any{
		"username": username,
		"browser":  ua.Name,
		"os":       ua.OS,
		"mobile":   ua.Mobile,
		"bot":      ua.Bot,
		"country":  h.GeoIP.Country(ip),
	})

	err := h.queries.CreateEvent(r.Context(), store.CreateEventParams{
		Level:      level,
		Category:   model.EventCategoryAuth,
		Message:    message,
		UserID:     userID,
		Metadata:   string(meta),
		IPAddress:  ip,
		RequestURL: r.URL.Path,
		CreatedAt:  h.now(),
	})
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "recording login event failed", "error", err)
	}
}

// Logout clears the session cookie. Tokens are stateless, so there is
// nothing to revoke server side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := middleware.GetSession(r); s != nil {
		h.Logger.InfoContext(r.Context(), "user logged out",
			"user_id", s.SubjectID, "category", model.EventCategoryAuth)
	}
	middleware.ClearSessionCookie(w, h.SecureCookies)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Refresh re-issues the session cookie once it is close to expiry.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r)
	if s == nil {
		writeError(w, http.StatusUnauthorized, "No active session")
		return
	}

	token, err := h.Sessions.RefreshSession(r.Context(), s)
	if err != nil {
		if !errors.Is(err, auth.ErrRefreshNotNeeded) {
			h.Logger.WarnContext(r.Context(), "session refresh failed", "user_id", s.SubjectID, "error", err)
		}
		writeError(w, http.StatusBadRequest, "Session refresh not needed or failed")
		return
	}

	middleware.SetSessionCookie(w, token, h.SecureCookies)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "refreshed": true})
}

// Me returns the current user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	user, err := h.queries.GetUserByID(r.Context(), s.SubjectID)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.writeInternalError(w, r, "loading current user failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":      UserResponse{ID: user.ID, Username: user.Username, Role: user.Role},
		"expiresAt": s.ExpiresAt,
	})
}
