// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"math"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/olegiv/sitecms/internal/cache"
)

// DiskUsage is filesystem usage in bytes.
type DiskUsage struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// DashboardResponse is the admin overview.
type DashboardResponse struct {
	Posts        int64        `json:"posts"`
	Services     int64        `json:"services"`
	Testimonials int64        `json:"testimonials"`
	Categories   int64        `json:"categories"`
	UploadsSize  float64      `json:"uploadsSize"`
	BackupsCount int          `json:"backupsCount"`
	Disk         DiskUsage    `json:"disk"`
	Cache        *cache.Stats `json:"cache,omitempty"`
}

// Dashboard returns content counts with upload, backup and disk usage.
// Filesystem figures fall back to zero when they cannot be read.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var resp DashboardResponse
	counts := []struct {
		table string
		dst   *int64
	}{
		{"posts", &resp.Posts},
		{"services", &resp.Services},
		{"testimonials", &resp.Testimonials},
		{"categories", &resp.Categories},
	}
	for _, c := range counts {
		n, err := h.queries.CountRows(r.Context(), c.table)
		if err != nil {
			h.writeInternalError(w, r, "counting "+c.table+" failed", err)
			return
		}
		*c.dst = n
	}

	if size, err := h.Uploads.TotalSize(); err == nil {
		resp.UploadsSize = math.Round(float64(size)/(1024*1024)*100) / 100
	} else {
		h.Logger.WarnContext(r.Context(), "measuring uploads failed", "error", err)
	}

	if backups, err := h.Backups.List(); err == nil {
		resp.BackupsCount = len(backups)
	} else {
		h.Logger.WarnContext(r.Context(), "listing backups failed", "error", err)
	}

	if usage, err := disk.UsageWithContext(r.Context(), h.Backups.Dir()); err == nil {
		resp.Disk = DiskUsage{Total: usage.Total, Used: usage.Used, Free: usage.Free}
	}

	if sp, ok := h.Cache.(cache.StatsProvider); ok {
		stats := sp.Stats()
		resp.Cache = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// StatsResponse summarizes posts and backups.
type StatsResponse struct {
	TotalPosts     int64      `json:"totalPosts"`
	PublishedPosts int64      `json:"publishedPosts"`
	DraftPosts     int64      `json:"draftPosts"`
	TotalBackups   int        `json:"totalBackups"`
	LastBackup     *time.Time `json:"lastBackup"`
}

// Stats returns post and backup statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	published, err := h.queries.CountPostsByPublished(r.Context(), true)
	if err != nil {
		h.writeInternalError(w, r, "counting published posts failed", err)
		return
	}
	drafts, err := h.queries.CountPostsByPublished(r.Context(), false)
	if err != nil {
		h.writeInternalError(w, r, "counting draft posts failed", err)
		return
	}

	resp := StatsResponse{
		TotalPosts:     published + drafts,
		PublishedPosts: published,
		DraftPosts:     drafts,
	}
	if backups, err := h.Backups.List(); err == nil {
		resp.TotalBackups = len(backups)
		if len(backups) > 0 {
			last := backups[0].Created
			resp.LastBackup = &last
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
