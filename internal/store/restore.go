// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// restoreSchema is the alias a backup file is attached under while its rows
// are copied into the live database.
const restoreSchema = "restore_src"

// LiveDB exposes checkpointing and in-place restore on an open database
// handle, so every pooled connection sees restored rows without a reopen.
type LiveDB struct {
	db *sqlx.DB
}

// NewLiveDB wraps db.
func NewLiveDB(db *sqlx.DB) *LiveDB {
	return &LiveDB{db: db}
}

// Checkpoint flushes the write-ahead log into the database file.
func (l *LiveDB) Checkpoint(ctx context.Context) error {
	return Checkpoint(ctx, l.db)
}

// RestoreFrom replaces the live contents with the backup at path.
func (l *LiveDB) RestoreFrom(ctx context.Context, path string) error {
	return RestoreFrom(ctx, l.db, path)
}

// RestoreFrom replaces the rows of every table in db with the rows of the
// same table in the SQLite file at path, inside one transaction. Tables
// missing from either side are left alone, only columns present in both are
// copied, and the migration version table is kept so the live schema stays
// authoritative. The WAL is checkpointed afterwards so the file on disk
// matches what the pool serves.
func RestoreFrom(ctx context.Context, db *sqlx.DB, path string) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// Cascading actions such as ON DELETE SET NULL would rewrite rows that
	// were already copied, so constraints stay off while tables are replaced.
	// The pragma is a no-op inside a transaction.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON") }()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+restoreSchema, path); err != nil {
		return fmt.Errorf("attaching backup: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "DETACH DATABASE "+restoreSchema) }()

	tables, err := restorableTables(ctx, conn)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning restore: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range tables {
		cols, err := sharedColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			continue
		}

		name := quoteIdent(table)
		list := strings.Join(cols, ", ")
		if _, err := tx.ExecContext(ctx, "DELETE FROM main."+name); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
		query := fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM %s.%s", name, list, list, restoreSchema, name)
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("copying %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing restore: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpointing wal: %w", err)
	}
	return nil
}

// restorableTables lists tables present in both the live and attached
// databases. sqlite_sequence is included so AUTOINCREMENT counters follow
// the restored rows.
func restorableTables(ctx context.Context, conn *sqlx.Conn) ([]string, error) {
	var tables []string
	err := conn.SelectContext(ctx, &tables, `
		SELECT name FROM `+restoreSchema+`.sqlite_master
		WHERE type = 'table'
		  AND (name NOT LIKE 'sqlite\_%' ESCAPE '\' OR name = 'sqlite_sequence')
		  AND name != 'goose_db_version'
		  AND name IN (SELECT name FROM main.sqlite_master WHERE type = 'table')
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing backup tables: %w", err)
	}
	return tables, nil
}

// sharedColumns returns the quoted columns of table present in both schemas,
// in live column order.
func sharedColumns(ctx context.Context, tx *sqlx.Tx, table string) ([]string, error) {
	var names []string
	err := tx.SelectContext(ctx, &names, `
		SELECT name FROM pragma_table_info(?, 'main')
		WHERE name IN (SELECT name FROM pragma_table_info(?, '`+restoreSchema+`'))
		ORDER BY cid`, table, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}

	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = quoteIdent(n)
	}
	return cols, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
