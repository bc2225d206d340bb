// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/olegiv/sitecms/internal/model"
)

// Session token lifetimes.
const (
	SessionTTL       = 4 * time.Hour
	RefreshThreshold = time.Hour
	ClockSkew        = 30 * time.Second
)

// Errors returned by the session manager.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrRefreshNotNeeded   = errors.New("session refresh not needed")
)

// Session is the verified payload of a session token.
type Session struct {
	SubjectID int64
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns the lifetime left at now.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// UserStore loads user accounts for credential checks and refreshes.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
}

type sessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager validates credentials and signs session tokens with an HMAC secret.
type Manager struct {
	secret []byte
	users  UserStore
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a session manager.
func NewManager(secret string, users UserStore, logger *slog.Logger) *Manager {
	return &Manager{
		secret: []byte(secret),
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateCredentials returns the matching user without its password hash,
// or ErrInvalidCredentials. Lookup failures are logged, never returned.
func (m *Manager) ValidateCredentials(ctx context.Context, username, password string) (*model.User, error) {
	username = NormalizeUsername(username)

	user, err := m.users.GetUserByUsername(ctx, username)
	if err != nil {
		// Burn the same hashing cost as a real comparison.
		_, _ = CheckPassword(password, dummyHash)
		m.logger.Debug("credential lookup failed", "username", username, "error", err)
		return nil, ErrInvalidCredentials
	}

	valid, err := CheckPassword(password, user.PasswordHash)
	if err != nil {
		m.logger.Error("password verification failed", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	if NeedsRehash(user.PasswordHash) {
		m.rehash(ctx, user.ID, password)
	}

	pub := user.Public()
	return &pub, nil
}

func (m *Manager) rehash(ctx context.Context, userID int64, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		m.logger.Warn("rehashing password failed", "user_id", userID, "error", err)
		return
	}
	if err := m.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		m.logger.Warn("storing rehashed password failed", "user_id", userID, "error", err)
		return
	}
	m.logger.Info("upgraded password hash", "user_id", userID)
}

// CreateSession signs a token for user that expires after SessionTTL.
func (m *Manager) CreateSession(user model.User) (string, error) {
	if user.ID <= 0 {
		return "", errors.New("creating session: invalid user id")
	}

	now := m.now().UTC()
	claims := sessionClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	return signed, nil
}

// VerifySession checks signature and expiry with ClockSkew tolerance.
// Every failure is reported as ErrInvalidSession.
func (m *Manager) VerifySession(token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidSession
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidSession
	}

	s := &Session{
		SubjectID: id,
		Username:  claims.Username,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	return s, nil
}

// RefreshSession re-signs the session for the same subject once less than
// RefreshThreshold remains. The user must still exist.
func (m *Manager) RefreshSession(ctx context.Context, s *Session) (string, error) {
	if s == nil {
		return "", ErrInvalidSession
	}
	if s.Remaining(m.now()) >= RefreshThreshold {
		return "", ErrRefreshNotNeeded
	}

	user, err := m.users.GetUserByID(ctx, s.SubjectID)
	if err != nil {
		return "", fmt.Errorf("loading session user: %w", err)
	}
	return m.CreateSession(user)
}
