// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	settingKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// Setting limits.
const (
	MaxSettingKeyLength   = 100
	MaxSettingValueLength = 1000
)

// LoginInput is the decoded login body.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
}

// Login validates credentials input and normalizes the username.
func Login(in LoginInput) (LoginInput, error) {
	var errs Errors

	username := strings.TrimSpace(in.Username)
	switch n := utf8.RuneCountInString(username); {
	case n < 3:
		errs.add("username", "Username must be at least 3 characters")
	case n > 50:
		errs.add("username", "Username too long")
	case !usernamePattern.MatchString(username):
		errs.add("username", "Username can only contain letters, numbers, underscores, and hyphens")
	}

	switch n := utf8.RuneCountInString(in.Password); {
	case n < 1:
		errs.add("password", "Password is required")
	case n > 200:
		errs.add("password", "Password too long")
	}

	if len(errs) > 0 {
		return LoginInput{}, errs
	}

	in.Username = strings.ToLower(username)
	return in, nil
}

// Settings validates a key/value settings update. Values must be strings.
func Settings(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	var errs Errors

	for key, raw := range in {
		if key == "" || len(key) > MaxSettingKeyLength || !settingKeyPattern.MatchString(key) {
			errs.add(key, "Setting key can only contain letters, numbers, underscores, and hyphens")
			continue
		}
		value, ok := raw.(string)
		if !ok {
			errs.add(key, "Expected string")
			continue
		}
		if utf8.RuneCountInString(value) > MaxSettingValueLength {
			errs.add(key, "Setting value too long")
			continue
		}
		if DangerousPattern.MatchString(value) {
			errs.add(key, "Setting value contains potentially dangerous content")
			continue
		}
		out[key] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
