// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/model"
)

// TimestampLayout matches SQLite's CURRENT_TIMESTAMP text format.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp formats t in UTC the way SQLite stores CURRENT_TIMESTAMP.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Queries bundles the typed queries used outside the generic resource layer.
type Queries struct {
	db sqlx.ExtContext
}

// New returns Queries bound to db, which may be a *sqlx.DB or a *sqlx.Tx.
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// GetUserByUsername returns the user with the given (already normalized) username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q.db, &u,
		`SELECT id, username, password_hash, role, created_at, updated_at FROM users WHERE username = ?`,
		username)
	return u, err
}

// GetUserByID returns the user with the given id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q.db, &u,
		`SELECT id, username, password_hash, role, created_at, updated_at FROM users WHERE id = ?`,
		id)
	return u, err
}

// CreateUser inserts a user and returns its id.
func (q *Queries) CreateUser(ctx context.Context, username, passwordHash, role string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
		username, passwordHash, role)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateUserPassword replaces a user's password hash.
func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id)
	return err
}

// CountUsers returns the number of user accounts.
func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// CreateEventParams holds the columns of a new audit event.
type CreateEventParams struct {
	Level      string
	Category   string
	Message    string
	UserID     *int64
	Metadata   string
	IPAddress  string
	RequestURL string
	CreatedAt  time.Time
}

// CreateEvent inserts an audit event.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) error {
	if arg.Metadata == "" {
		arg.Metadata = "{}"
	}
	if arg.CreatedAt.IsZero() {
		arg.CreatedAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO events (level, category, message, user_id, metadata, ip_address, request_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.Level, arg.Category, arg.Message, arg.UserID, arg.Metadata, arg.IPAddress, arg.RequestURL,
		Timestamp(arg.CreatedAt))
	return err
}

// ListEvents returns the most recent events, newest first.
func (q *Queries) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	var events []model.Event
	err := sqlx.SelectContext(ctx, q.db, &events,
		`SELECT id, level, category, message, user_id, metadata, ip_address, request_url, created_at
		 FROM events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	return events, err
}

// ListSettings returns every contact_info row ordered by key.
func (q *Queries) ListSettings(ctx context.Context) ([]model.Setting, error) {
	var settings []model.Setting
	err := sqlx.SelectContext(ctx, q.db, &settings,
		`SELECT key, value, label, type, updated_at FROM contact_info ORDER BY key ASC`)
	return settings, err
}

// UpdateSetting sets the value of an existing key and reports whether a row changed.
func (q *Queries) UpdateSetting(ctx context.Context, key, value string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE contact_info SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ?`,
		value, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// countableTables are the tables the dashboard may count.
var countableTables = map[string]bool{
	"posts":        true,
	"services":     true,
	"testimonials": true,
	"categories":   true,
	"users":        true,
	"events":       true,
}

// CountRows returns the row count of a dashboard table.
func (q *Queries) CountRows(ctx context.Context, table string) (int64, error) {
	if !countableTables[table] {
		return 0, fmt.Errorf("counting rows: table %q not allowed", table)
	}
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, "SELECT COUNT(*) FROM "+table)
	return n, err
}

// CountPostsByPublished returns the number of posts with the given published flag.
func (q *Queries) CountPostsByPublished(ctx context.Context, published bool) (int64, error) {
	flag := 0
	if published {
		flag = 1
	}
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, `SELECT COUNT(*) FROM posts WHERE published = ?`, flag)
	return n, err
}

// CountPostsInCategory returns how many posts reference a category slug.
func (q *Queries) CountPostsInCategory(ctx context.Context, slug string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, `SELECT COUNT(*) FROM posts WHERE category = ?`, slug)
	return n, err
}

// PublishedPost is the public projection of a post rendered on the blog.
type PublishedPost struct {
	ID          int64      `db:"id"`
	Title       string     `db:"title"`
	Slug        string     `db:"slug"`
	Content     string     `db:"content"`
	Excerpt     string     `db:"excerpt"`
	Tags        string     `db:"tags"`
	Category    string     `db:"category"`
	PublishedAt *time.Time `db:"published_at"`
}

// GetPublishedPostBySlug returns a published post by slug.
func (q *Queries) GetPublishedPostBySlug(ctx context.Context, slug string) (PublishedPost, error) {
	var p PublishedPost
	err := sqlx.GetContext(ctx, q.db, &p,
		`SELECT id, title, slug, content, COALESCE(excerpt, '') AS excerpt, COALESCE(tags, '') AS tags,
		        COALESCE(category, '') AS category, published_at
		 FROM posts WHERE slug = ? AND published = 1`, slug)
	return p, err
}
