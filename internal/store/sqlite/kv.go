// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/casegen/casegen/internal/store"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// FileName is the database file created inside a workspace directory.
const FileName = "casegen.db"

func init() {
	store.RegisterBackend("sqlite", func(dir string) (store.KV, error) {
		return NewKV(filepath.Join(dir, FileName))
	})
}

var _ store.KV = (*KV)(nil)

// KV implements store.KV on a single SQLite table.
type KV struct {
	db *sql.DB
}

// NewKV opens (or creates) the database at dbPath and ensures the kv table.
func NewKV(dbPath string) (*KV, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "opening kv db", cgerr.Field("path", dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "pinging kv db", cgerr.Field("path", dbPath))
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "migrating kv db", cgerr.Field("path", dbPath))
	}

	return &KV{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(key)
	}
	if err != nil {
		return nil, cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "reading key", cgerr.Field("key", key))
	}
	return value, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "writing key", cgerr.Field("key", key))
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return cgerr.Wrap(err, cgerr.CodeStoreDatabaseFailure, "deleting key", cgerr.Field("key", key))
	}
	return nil
}

func (s *KV) Close() error {
	return s.db.Close()
}
