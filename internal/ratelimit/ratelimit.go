// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ratelimit implements per-identifier fixed-window counters held in
// process memory. Counters are not shared between processes and reset on restart.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// SweepSchedule is how often expired counters are purged.
const SweepSchedule = "@every 5m"

// Operation classes with their own limits.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpBulk   = "bulk"
	OpUpload = "upload"
	OpLogin  = "login"
)

// Limit is the allowance for one operation class.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits are the per-minute allowances for each operation class.
var DefaultLimits = map[string]Limit{
	OpRead:   {Max: 100, Window: time.Minute},
	OpWrite:  {Max: 20, Window: time.Minute},
	OpBulk:   {Max: 5, Window: time.Minute},
	OpUpload: {Max: 10, Window: time.Minute},
	OpLogin:  {Max: 5, Window: time.Minute},
}

// Result is the outcome of one Allow call.
type Result struct {
	Success   bool
	Remaining int
	ResetTime time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type entry struct {
	count     int
	resetTime time.Time
}

// Limiter tracks attempt counters by identifier.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limits  map[string]Limit
	now     func() time.Time
}

// New creates a limiter using DefaultLimits.
func New() *Limiter {
	return NewWithLimits(DefaultLimits)
}

// NewWithLimits creates a limiter with custom per-class limits.
func NewWithLimits(limits map[string]Limit) *Limiter {
	copied := make(map[string]Limit, len(limits))
	for k, v := range limits {
		copied[k] = v
	}
	return &Limiter{
		entries: make(map[string]*entry),
		limits:  copied,
		now:     time.Now,
	}
}

// Allow counts an attempt for identifier. The first maxAttempts calls within
// a window succeed; later calls fail until the window has passed.
func (l *Limiter) Allow(identifier string, maxAttempts int, window time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if ok && now.After(e.resetTime) {
		delete(l.entries, identifier)
		ok = false
	}

	if !ok {
		reset := now.Add(window)
		l.entries[identifier] = &entry{count: 1, resetTime: reset}
		return Result{Success: true, Remaining: maxAttempts - 1, ResetTime: reset}
	}

	if e.count >= maxAttempts {
		return Result{Success: false, Remaining: 0, ResetTime: e.resetTime}
	}

	e.count++
	return Result{Success: true, Remaining: maxAttempts - e.count, ResetTime: e.resetTime}
}

// AllowOperation applies the configured limit of op to the client key,
// counting under the identifier "<key>-<op>".
func (l *Limiter) AllowOperation(key, op string) Result {
	limit, ok := l.limits[op]
	if !ok {
		limit = l.limits[OpRead]
	}
	return l.Allow(key+"-"+op, limit.Max, limit.Window)
}

// Reset drops the counter for identifier.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	delete(l.entries, identifier)
	l.mu.Unlock()
}

// Sweep deletes every expired counter and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
