// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package validation checks decoded JSON request bodies against declarative
// field schemas and returns per-field error details.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/olegiv/sitecms/internal/util"
)

// DangerousPattern matches script markers rejected in free-text fields.
var DangerousPattern = regexp.MustCompile(`(?i)<script|javascript:|data:|vbscript:`)

// uploadPathPattern matches images stored by the upload endpoint.
var uploadPathPattern = regexp.MustCompile(`(?i)^/uploads/images/\d{4}-\d{2}/[a-zA-Z0-9_-]+\.(jpg|jpeg|png|webp|gif)$`)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a list of field errors returned as a single error value.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *Errors) add(field, msg string) {
	*e = append(*e, FieldError{Field: field, Message: msg})
}

// Kind is the JSON type a field accepts.
type Kind int

// Field kinds.
const (
	String Kind = iota
	Int
	Bool
)

// Field is the rule set for one body property.
type Field struct {
	Name     string
	Label    string // used in messages; defaults to Name
	Kind     Kind
	Required bool

	// String rules. Empty optional strings skip Pattern and Check.
	MinLen         int
	MaxLen         int
	Pattern        *regexp.Regexp
	PatternMessage string
	Safe           bool // reject DangerousPattern
	Trim           bool
	Check          func(string) string // returns a message when invalid

	// Int rules.
	Min, Max int
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Schema is an ordered set of fields. Properties not declared are dropped.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields.
func NewSchema(fields ...Field) *Schema {
	s := &Schema{fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fields returns the declared field names in order.
func (s *Schema) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks a full record. Required fields must be present.
func (s *Schema) Validate(in map[string]any) (map[string]any, error) {
	return s.validate(in, false)
}

// ValidatePartial checks only the properties present in in.
func (s *Schema) ValidatePartial(in map[string]any) (map[string]any, error) {
	return s.validate(in, true)
}

func (s *Schema) validate(in map[string]any, partial bool) (map[string]any, error) {
	out := make(map[string]any, len(s.fields))
	var errs Errors

	for _, f := range s.fields {
		raw, present := in[f.Name]
		if present && raw == nil {
			present = false
		}
		if !present {
			if f.Required && !partial {
				errs.add(f.Name, capitalize(f.label())+" is required")
			}
			continue
		}

		v, msg := f.check(raw)
		if msg != "" {
			errs.add(f.Name, msg)
			continue
		}
		out[f.Name] = v
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (f Field) check(raw any) (any, string) {
	switch f.Kind {
	case Bool:
		b, ok := raw.(bool)
		if !ok {
			return nil, "Expected boolean"
		}
		return b, ""

	case Int:
		n, ok := toInt(raw)
		if !ok {
			return nil, "Expected integer"
		}
		if n < f.Min {
			return nil, fmt.Sprintf("%s must be at least %d", capitalize(f.label()), f.Min)
		}
		if f.Max != 0 && n > f.Max {
			return nil, fmt.Sprintf("%s must be at most %d", capitalize(f.label()), f.Max)
		}
		return n, ""

	default:
		s, ok := raw.(string)
		if !ok {
			return nil, "Expected string"
		}
		if f.Trim {
			s = strings.TrimSpace(s)
		}
		n := utf8.RuneCountInString(s)
		if f.Required && n == 0 {
			return nil, capitalize(f.label()) + " is required"
		}
		if n < f.MinLen {
			return nil, fmt.Sprintf("%s must be at least %d characters", capitalize(f.label()), f.MinLen)
		}
		if f.MaxLen > 0 && n > f.MaxLen {
			return nil, capitalize(f.label()) + " too long"
		}
		if s == "" {
			return s, ""
		}
		if f.Safe && DangerousPattern.MatchString(s) {
			return nil, capitalize(f.label()) + " contains potentially dangerous content"
		}
		if f.Pattern != nil && !f.Pattern.MatchString(s) {
			msg := f.PatternMessage
			if msg == "" {
				msg = capitalize(f.label()) + " contains invalid characters"
			}
			return nil, msg
		}
		if f.Check != nil {
			if msg := f.Check(s); msg != "" {
				return nil, msg
			}
		}
		return s, ""
	}
}

func toInt(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CheckSlug validates an explicit slug.
func CheckSlug(s string) string {
	if !util.IsValidSlug(s) {
		return "Slug can only contain lowercase letters, numbers, and single hyphens, and cannot start or end with a hyphen"
	}
	return ""
}

// CheckImageRef accepts an http(s) URL or a path produced by the upload endpoint.
func CheckImageRef(s string) string {
	const msg = "Must be a valid HTTP(S) URL or upload path"
	if strings.HasPrefix(strings.ToLower(s), "http") {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return msg
		}
		return ""
	}
	if !uploadPathPattern.MatchString(s) {
		return msg
	}
	return ""
}

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CheckColor requires a six-digit hex color other than pure black or white.
func CheckColor(s string) string {
	if !hexColorPattern.MatchString(s) {
		return "Must be a valid 6-digit hex color"
	}
	switch strings.ToLower(s) {
	case "#000000", "#ffffff":
		return "Color must not be pure black or white"
	}
	return ""
}
