// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package backup manages file copies of the SQLite database: create, list,
// download, delete, restore and retention.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/sitecms/internal/model"
	"github.com/olegiv/sitecms/internal/util"
)

// Errors returned by Manager.
var (
	ErrInvalidName    = errors.New("invalid backup file name")
	ErrNotFound       = errors.New("backup not found")
	ErrSourceNotFound = errors.New("database file not found")
)

const (
	// TimestampLayout is the UTC timestamp embedded in backup names.
	TimestampLayout = "2006-01-02-15-04-05"

	namePrefix       = "app-"
	preRestorePrefix = "app-pre-restore-"
	ext              = ".db"
)

// Database is the open live database. Checkpoint flushes pending writes
// into the file; RestoreFrom replaces its contents with a backup file
// through the open handle.
type Database interface {
	Checkpoint(ctx context.Context) error
	RestoreFrom(ctx context.Context, path string) error
}

// Manager creates and restores database backups. Operations are serialized.
type Manager struct {
	dbPath string
	dir    string
	db     Database
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewManager returns a manager for the database at dbPath storing backups in
// dir. db may be nil; when set it is checkpointed before each copy and
// restores go through it.
func NewManager(dbPath, dir string, db Database, logger *slog.Logger) *Manager {
	return &Manager{
		dbPath: dbPath,
		dir:    dir,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// ValidateName checks that name is a plain *.db file name.
func ValidateName(name string) error {
	if !strings.HasSuffix(name, ext) || !util.IsPlainFileName(name) {
		return ErrInvalidName
	}
	return nil
}

// Create copies the live database into a new timestamped backup.
func (m *Manager) Create(ctx context.Context) (model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, err := m.snapshot(ctx, namePrefix)
	if err != nil {
		return model.Backup{}, err
	}

	m.logger.Info("backup created", "backup", name, "category", model.EventCategoryBackup)
	return m.stat(name)
}

// List returns all backups, newest first.
func (m *Manager) List() ([]model.Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Backup{}, nil
		}
		return nil, fmt.Errorf("reading backup dir: %w", err)
	}

	backups := make([]model.Backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		b, err := m.stat(e.Name())
		if err != nil {
			continue
		}
		backups = append(backups, b)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Created.Equal(backups[j].Created) {
			return backups[i].Name > backups[j].Name
		}
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// Open returns the backup file for download. The caller closes it.
func (m *Manager) Open(name string) (*os.File, model.Backup, error) {
	if err := ValidateName(name); err != nil {
		return nil, model.Backup{}, err
	}

	b, err := m.stat(name)
	if err != nil {
		return nil, model.Backup{}, err
	}

	f, err := os.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, model.Backup{}, fmt.Errorf("opening backup: %w", err)
	}
	return f, b, nil
}

// Delete removes a backup.
func (m *Manager) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting backup: %w", err)
	}

	m.logger.Info("backup deleted", "backup", name, "category", model.EventCategoryBackup)
	return nil
}

// Restore snapshots the live database as a pre-restore backup and then
// replaces its contents with the named backup. It returns the pre-restore
// name, which is empty when there was no live database file. With an attached
// Database the rows are replaced through the open handle; without one the
// file is replaced on disk.
func (m *Manager) Restore(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src := filepath.Join(m.dir, name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("checking backup: %w", err)
	}

	var preRestore string
	if _, err := os.Stat(m.dbPath); err == nil {
		preRestore, err = m.snapshot(ctx, preRestorePrefix)
		if err != nil {
			return "", fmt.Errorf("creating pre-restore backup: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking database: %w", err)
	}

	if m.db != nil {
		if err := m.db.RestoreFrom(ctx, src); err != nil {
			return "", fmt.Errorf("restoring backup: %w", err)
		}
	} else if err := copyFileAtomic(src, m.dbPath); err != nil {
		return "", fmt.Errorf("restoring backup: %w", err)
	}

	m.logger.Warn("database restored from backup",
		"backup", name,
		"pre_restore", preRestore,
		"category", model.EventCategoryBackup,
	)
	return preRestore, nil
}

// Prune deletes the oldest regular backups so that at most keep remain.
// Pre-restore snapshots are never pruned. keep <= 0 disables pruning.
func (m *Manager) Prune(keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}

	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	kept := 0
	for _, b := range backups {
		if strings.HasPrefix(b.Name, preRestorePrefix) {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, b.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("pruning %s: %w", b.Name, err)
		}
		removed = append(removed, b.Name)
	}

	if len(removed) > 0 {
		m.logger.Info("old backups pruned", "count", len(removed), "category", model.EventCategoryBackup)
	}
	return removed, nil
}

// snapshot copies the live database into a new backup named prefix+timestamp.
// Caller must hold m.mu.
func (m *Manager) snapshot(ctx context.Context, prefix string) (string, error) {
	if _, err := os.Stat(m.dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrSourceNotFound
		}
		return "", fmt.Errorf("checking database: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}

	if m.db != nil {
		if err := m.db.Checkpoint(ctx); err != nil {
			m.logger.Warn("checkpoint before backup failed", "error", err, "category", model.EventCategoryBackup)
		}
	}

	name := m.uniqueName(prefix)
	if err := copyFileAtomic(m.dbPath, filepath.Join(m.dir, name)); err != nil {
		return "", fmt.Errorf("copying database: %w", err)
	}
	return name, nil
}

// uniqueName appends a counter when a backup with the same second exists.
func (m *Manager) uniqueName(prefix string) string {
	base := prefix + m.now().UTC().Format(TimestampLayout)
	name := base + ext
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(m.dir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

func (m *Manager) stat(name string) (model.Backup, error) {
	info, err := os.Stat(filepath.Join(m.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Backup{}, ErrNotFound
		}
		return model.Backup{}, fmt.Errorf("stat backup: %w", err)
	}
	if !info.Mode().IsRegular() {
		return model.Backup{}, ErrNotFound
	}

	created := info.ModTime()
	if ts, ok := parseTimestamp(name); ok {
		created = ts
	}

	return model.Backup{
		ID:       name,
		Name:     name,
		Size:     info.Size(),
		Created:  created.UTC(),
		Modified: info.ModTime().UTC(),
	}, nil
}

// parseTimestamp extracts the creation time embedded in a backup name.
func parseTimestamp(name string) (time.Time, bool) {
	s := strings.TrimSuffix(name, ext)
	switch {
	case strings.HasPrefix(s, preRestorePrefix):
		s = strings.TrimPrefix(s, preRestorePrefix)
	case strings.HasPrefix(s, namePrefix):
		s = strings.TrimPrefix(s, namePrefix)
	default:
		return time.Time{}, false
	}
	if len(s) < len(TimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(TimestampLayout, s[:len(TimestampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// copyFileAtomic copies src to dst through a temporary file in dst's
// directory followed by a rename.
func copyFileAtomic(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o640); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
