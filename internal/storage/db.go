/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	applog "storymagic/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// AppDirName is the per-user application data folder.
	AppDirName = "StoryMagic"
	// DBFileName is the fixed name of the library database.
	DBFileName = "storymagic.db"
)

var (
	ErrNotReady           = errors.New("database not initialized")
	ErrAlreadyInitialized = errors.New("database already initialized")
	ErrNotFound           = errors.New("not found")
	ErrInvalid            = errors.New("invalid input")
)

// userDataDir is overridden in tests.
var userDataDir = os.UserConfigDir

// DefaultPath returns the per-user library database path:
//
//	Linux:   $XDG_CONFIG_HOME/StoryMagic/storymagic.db (fallback ~/.config/StoryMagic)
//	macOS:   ~/Library/Application Support/StoryMagic/storymagic.db
//	Windows: %AppData%\StoryMagic\storymagic.db
//
// It has no side effects; the directory is created by Initialize.
func DefaultPath() (string, error) {
	base, err := userDataDir()
	if err != nil {
		return "", fmt.Errorf("resolve user data dir: %w", err)
	}
	if strings.TrimSpace(base) == "" {
		return "", errors.New("cannot resolve user data dir")
	}
	return filepath.Join(base, AppDirName, DBFileName), nil
}

// DB owns the single connection to a library database file.
// Construct one per process (or per test) and pass it to the stores.
type DB struct {
	path string
	log  *slog.Logger

	mu        sync.Mutex
	sql       *sql.DB
	ready     bool
	installID string
}

// New returns an unopened DB for the file at path.
func New(path string) *DB {
	return &DB{
		path: path,
		log:  applog.WithComponent("storage").With(slog.String("path", path)),
	}
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// InstallID returns the random identifier stored in the meta table on first open.
func (d *DB) InstallID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.installID
}

// Initialize creates the parent directory, opens (or creates) the database
// file, enables foreign key enforcement and ensures the schema.
// Any failure leaves the DB closed and not ready.
func (d *DB) Initialize(ctx context.Context) error {
	l := applog.WithOperation(d.log, "initialize")
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return ErrAlreadyInitialized
	}
	if strings.TrimSpace(d.path) == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		l.Error("create data dir failed", slog.Any("err", err))
		return fmt.Errorf("create data dir: %w", err)
	}

	// busy_timeout and foreign_keys are applied per connection by the driver.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(d.path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return fmt.Errorf("open sqlite: %w", err)
	}
	// One handle, one connection: the engine serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	fail := func(msg string, err error) error {
		_ = db.Close()
		l.Error(msg, slog.Any("err", err))
		return err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fail("enable WAL failed", fmt.Errorf("enable WAL: %w", err))
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		return fail("enable foreign_keys failed", fmt.Errorf("enable foreign keys: %w", err))
	}
	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil || fk != 1 {
		if err == nil {
			err = errors.New("foreign key enforcement unavailable")
		}
		return fail("verify foreign_keys failed", fmt.Errorf("verify foreign keys: %w", err))
	}
	if err := EnsureSchema(ctx, db); err != nil {
		return fail("ensure schema failed", err)
	}
	id, err := ensureInstallID(ctx, db)
	if err != nil {
		return fail("ensure install id failed", err)
	}

	d.sql = db
	d.ready = true
	d.installID = id
	l.Info("database ready", slog.String("install_id", id))
	return nil
}

// IsReady reports whether Initialize succeeded and Close has not been called.
func (d *DB) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready && d.sql != nil
}

// Close closes the connection if open. Calling it again is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sql == nil {
		d.ready = false
		return nil
	}
	err := d.sql.Close()
	d.sql = nil
	d.ready = false
	if err != nil {
		d.log.Warn("close failed", slog.Any("err", err))
		return fmt.Errorf("close sqlite: %w", err)
	}
	d.log.Info("database closed")
	return nil
}

// conn returns the managed handle or ErrNotReady.
func (d *DB) conn() (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.sql == nil {
		return nil, ErrNotReady
	}
	return d.sql, nil
}

// inTx runs fn inside a transaction on the managed connection.
// fn's error (or a commit failure) rolls everything back.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Timestamps are written as RFC3339 UTC text. Rows created through SQL
// defaults carry CURRENT_TIMESTAMP's "2006-01-02 15:04:05" form instead.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nowUTC() time.Time { return time.Now().UTC() }
