// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/sitecms/internal/testutil"
	"github.com/olegiv/sitecms/internal/validation"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, _ := testutil.TestDB(t)
	s := NewService(db)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestService_CreateGeneratesSlug(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Posts()

	id, err := s.Create(ctx, cfg, map[string]any{"title": "Hello World", "content": "body"})
	require.NoError(t, err)
	assert.Positive(t, id)

	row, err := s.Repository().Get(ctx, cfg, id, false)
	require.NoError(t, err)
	assert.Equal(t, "hello-world", row["slug"])
	assert.EqualValues(t, 0, row["published"])
	assert.Nil(t, row["published_at"])

	_, err = s.Create(ctx, cfg, map[string]any{"title": "Hello World", "content": "again"})
	assert.ErrorIs(t, err, ErrSlugConflict)
}

func TestService_CreateEmptySlugTreatedAsAbsent(t *testing.T) {
	s := newTestService(t)

	id, err := s.Create(context.Background(), Posts(), map[string]any{
		"title": "A", "slug": "", "content": "x", "published": false,
	})
	require.NoError(t, err)

	row, err := s.Repository().Get(context.Background(), Posts(), id, false)
	require.NoError(t, err)
	assert.Equal(t, "a", row["slug"])
}

func TestService_CreateValidationError(t *testing.T) {
	s := newTestService(t)

	_, err := s.Create(context.Background(), Posts(), map[string]any{"title": "", "content": "x"})
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "title", errs[0].Field)

	_, err = s.Create(context.Background(), Posts(), map[string]any{"title": "!!!", "content": "x"})
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "slug", errs[0].Field)
}

func TestService_CreateAppliesDefaults(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, Testimonials(), map[string]any{"name": "Jane Doe", "content": "Great work"})
	require.NoError(t, err)

	row, err := s.Repository().Get(ctx, Testimonials(), id, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["active"])
	assert.EqualValues(t, 0, row["featured"])
	assert.EqualValues(t, 5, row["rating"])
	assert.Equal(t, "", row["company"])

	id, err = s.Create(ctx, Categories(), map[string]any{"name": "News"})
	require.NoError(t, err)
	row, err = s.Repository().Get(ctx, Categories(), id, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryColor, row["color"])
	assert.Equal(t, "news", row["slug"])
}

func TestService_UpdatePublishes(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Posts()

	id, err := s.Create(ctx, cfg, map[string]any{"title": "Draft", "content": "x"})
	require.NoError(t, err)

	_, err = s.Repository().Get(ctx, cfg, id, true)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Update(ctx, cfg, id, map[string]any{"published": true}))

	row, err := s.Repository().Get(ctx, cfg, id, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["published"])
	assert.NotNil(t, row["published_at"])
	assert.Equal(t, "draft", row["slug"])
}

func TestService_UpdateErrors(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Posts()

	first, err := s.Create(ctx, cfg, map[string]any{"title": "First", "content": "x"})
	require.NoError(t, err)
	_, err = s.Create(ctx, cfg, map[string]any{"title": "Second", "content": "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Update(ctx, cfg, 999, map[string]any{"title": "Nope"}), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, cfg, first, map[string]any{"slug": "second"}), ErrSlugConflict)
	assert.ErrorIs(t, s.Update(ctx, cfg, first, map[string]any{}), ErrNoUpdates)

	// Keeping its own slug is not a conflict.
	assert.NoError(t, s.Update(ctx, cfg, first, map[string]any{"slug": "first", "title": "First!"}))
}

func TestService_Delete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	repo := s.Repository()

	catID, err := s.Create(ctx, Categories(), map[string]any{"name": "Guides"})
	require.NoError(t, err)
	postID, err := s.Create(ctx, Posts(), map[string]any{"title": "How to", "content": "x", "category": "guides"})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, Categories(), catID), ErrInUse)
	require.NoError(t, repo.Delete(ctx, Posts(), postID))
	require.NoError(t, repo.Delete(ctx, Categories(), catID))
	assert.ErrorIs(t, repo.Delete(ctx, Categories(), catID), ErrNotFound)
}

func TestService_BulkOperations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Testimonials()

	var ids []int64
	for _, name := range []string{"Ann", "Bob", "Cy"} {
		id, err := s.Create(ctx, cfg, map[string]any{"name": name, "content": "ok"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := s.BulkUpdate(ctx, cfg, ids[:2], map[string]any{"active": false, "rating": float64(4)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	items, total, err := s.Repository().List(ctx, cfg, ListParams{Page: 1, Limit: 10, Status: "inactive"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	_, err = s.BulkUpdate(ctx, cfg, ids, map[string]any{"id": float64(1)})
	var fieldErr *InvalidFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "id", fieldErr.Field)

	_, err = s.BulkUpdate(ctx, cfg, ids, map[string]any{})
	assert.ErrorIs(t, err, ErrNoUpdates)

	_, err = s.BulkUpdate(ctx, cfg, ids, map[string]any{"rating": float64(9)})
	var errs validation.Errors
	assert.ErrorAs(t, err, &errs)

	n, err = s.BulkDelete(ctx, cfg, ids)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestService_Reorder(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Services()

	// Two services are seeded by migrations with order 1 and 2.
	items, _, err := s.Repository().List(ctx, cfg, ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	first, second := items[0]["id"].(int64), items[1]["id"].(int64)

	n, err := s.Reorder(ctx, cfg, []OrderItem{{ID: first, OrderIndex: 5}, {ID: second, OrderIndex: 0}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	items, _, err = s.Repository().List(ctx, cfg, ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, second, items[0]["id"])

	_, err = s.Reorder(ctx, Posts(), []OrderItem{{ID: 1}})
	assert.Error(t, err)
	_, err = s.Reorder(ctx, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestRepository_ListFilters(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cfg := Posts()

	for _, p := range []map[string]any{
		{"title": "Go tips", "content": "x", "published": true},
		{"title": "Go internals", "content": "x"},
		{"title": "Rust notes", "content": "x", "published": true},
	} {
		_, err := s.Create(ctx, cfg, p)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		params ListParams
		total  int64
	}{
		{"all admin", ListParams{Page: 1, Limit: 50}, 3},
		{"public only", ListParams{Page: 1, Limit: 50, Public: true}, 2},
		{"search", ListParams{Page: 1, Limit: 50, Search: "Go"}, 2},
		{"search public", ListParams{Page: 1, Limit: 50, Search: "Go", Public: true}, 1},
		{"status ignored without active column", ListParams{Page: 1, Limit: 50, Status: "inactive"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := s.Repository().List(ctx, cfg, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
		})
	}

	items, total, err := s.Repository().List(ctx, cfg, ListParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 1)
}
