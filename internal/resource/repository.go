// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/olegiv/sitecms/internal/store"
)

// Repository errors.
var (
	ErrNotFound     = errors.New("item not found")
	ErrSlugConflict = errors.New("slug already exists")
	ErrDuplicate    = errors.New("duplicate record")
	ErrInUse        = errors.New("item is still referenced")
)

// Row is one record keyed by column name.
type Row map[string]any

// ListParams filters a list query. Page and Limit must already be clamped.
type ListParams struct {
	Page   int
	Limit  int
	Search string
	Status string // "active", "inactive"; anything else is ignored
	Public bool
}

// OrderItem assigns a position to one row.
type OrderItem struct {
	ID         int64 `json:"id"`
	OrderIndex int   `json:"order_index"`
}

// Repository runs parameterized SQL for resource configs. Identifiers come
// only from validated configs and sorted schema keys.
type Repository struct {
	db *sqlx.DB
}

// NewRepository returns a repository bound to db.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// List returns one page of rows and the total match count.
func (r *Repository) List(ctx context.Context, cfg *Config, p ListParams) ([]Row, int64, error) {
	var where []string
	var args []any

	if p.Public && cfg.PublicFilter != "" {
		where = append(where, cfg.PublicFilter)
	}
	if p.Search != "" && cfg.SearchColumn != "" {
		where = append(where, cfg.SearchColumn+" LIKE ?")
		args = append(args, "%"+p.Search+"%")
	}
	if cfg.HasActive {
		switch p.Status {
		case "active":
			where = append(where, "active = 1")
		case "inactive":
			where = append(where, "active = 0")
		}
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := sqlx.GetContext(ctx, r.db, &total, "SELECT COUNT(*) FROM "+cfg.Table+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", cfg.Table, err)
	}

	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s LIMIT ? OFFSET ?", cfg.Table, clause, cfg.orderBy())
	rows, err := r.db.QueryxContext(ctx, query, append(args, p.Limit, (p.Page-1)*p.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s: %w", cfg.Table, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]Row, 0, p.Limit)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning %s: %w", cfg.Table, err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating %s: %w", cfg.Table, err)
	}

	return items, total, nil
}

// Get returns one row. Public callers only see rows matching the public filter.
func (r *Repository) Get(ctx context.Context, cfg *Config, id int64, public bool) (Row, error) {
	query := "SELECT * FROM " + cfg.Table + " WHERE id = ?"
	if public && cfg.PublicFilter != "" {
		query += " AND " + cfg.PublicFilter
	}

	row := r.db.QueryRowxContext(ctx, query, id)
	m := make(map[string]any)
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting %s %d: %w", cfg.Singular, id, err)
	}
	return normalize(m), nil
}

// Exists reports whether a row with id exists.
func (r *Repository) Exists(ctx context.Context, cfg *Config, id int64) (bool, error) {
	var n int64
	err := sqlx.GetContext(ctx, r.db, &n, "SELECT COUNT(*) FROM "+cfg.Table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("checking %s %d: %w", cfg.Singular, id, err)
	}
	return n > 0, nil
}

// SlugExists reports whether slug is taken by a row other than excludeID.
// An excludeID of 0 checks every row.
func (r *Repository) SlugExists(ctx context.Context, cfg *Config, slug string, excludeID int64) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", cfg.Table, cfg.SlugField)
	args := []any{slug}
	if excludeID > 0 {
		query += " AND id != ?"
		args = append(args, excludeID)
	}

	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, query, args...); err != nil {
		return false, fmt.Errorf("checking %s slug: %w", cfg.Singular, err)
	}
	return n > 0, nil
}

// Insert writes a new row and returns its id.
func (r *Repository) Insert(ctx context.Context, cfg *Config, data map[string]any) (int64, error) {
	cols := sortedKeys(data)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = data[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		cfg.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("inserting %s: %w", cfg.Singular, err)
	}
	return res.LastInsertId()
}

// Update sets the given columns on one row and bumps updated_at.
func (r *Repository) Update(ctx context.Context, cfg *Config, id int64, data map[string]any) error {
	set, args := setClause(data)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", cfg.Table, set)

	res, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating %s %d: %w", cfg.Singular, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one row after checking existence and references.
func (r *Repository) Delete(ctx context.Context, cfg *Config, id int64) error {
	ok, err := r.Exists(ctx, cfg, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if cfg.InUse != nil {
		used, err := cfg.InUse(ctx, r.db, id)
		if err != nil {
			return fmt.Errorf("checking %s references: %w", cfg.Singular, err)
		}
		if used {
			return ErrInUse
		}
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+cfg.Table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting %s %d: %w", cfg.Singular, id, err)
	}
	return nil
}

// BulkDelete removes every row in ids with one statement.
func (r *Repository) BulkDelete(ctx context.Context, cfg *Config, ids []int64) (int64, error) {
	query, args, err := sqlx.In("DELETE FROM "+cfg.Table+" WHERE id IN (?)", ids)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk deleting %s: %w", cfg.Table, err)
	}
	return res.RowsAffected()
}

// BulkUpdate applies the same column values to every row in ids.
func (r *Repository) BulkUpdate(ctx context.Context, cfg *Config, ids []int64, data map[string]any) (int64, error) {
	set, args := setClause(data)
	query, inArgs, err := sqlx.In("UPDATE "+cfg.Table+" SET "+set+" WHERE id IN (?)", ids)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), append(args, inArgs...)...)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("bulk updating %s: %w", cfg.Table, err)
	}
	return res.RowsAffected()
}

// Reorder writes order_index for each item inside one transaction.
func (r *Repository) Reorder(ctx context.Context, cfg *Config, items []OrderItem) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning reorder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := "UPDATE " + cfg.Table + " SET order_index = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?"
	var updated int64
	for _, it := range items {
		res, err := tx.ExecContext(ctx, query, it.OrderIndex, it.ID)
		if err != nil {
			return 0, fmt.Errorf("reordering %s %d: %w", cfg.Singular, it.ID, err)
		}
		n, _ := res.RowsAffected()
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reorder: %w", err)
	}
	return updated, nil
}

func setClause(data map[string]any) (string, []any) {
	cols := sortedKeys(data)
	parts := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c+" = ?")
		args = append(args, data[c])
	}
	parts = append(parts, "updated_at = CURRENT_TIMESTAMP")
	return strings.Join(parts, ", "), args
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanRow(rows *sqlx.Rows) (Row, error) {
	m := make(map[string]any)
	if err := rows.MapScan(m); err != nil {
		return nil, err
	}
	return normalize(m), nil
}

// normalize converts driver byte slices to strings so rows encode as JSON text.
func normalize(m map[string]any) Row {
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			m[k] = string(b)
		}
	}
	return m
}
