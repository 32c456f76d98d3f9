/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storymagic/internal/version"
)

// schemaVersion tracks the library schema. Bump it and add a step to
// runMigrations for every change after the initial tables.
const schemaVersion = 2

// Relation names.
const (
	TableStories    = "stories"
	TablePages      = "story_pages"
	TableCharacters = "characters"
	TableSettings   = "settings"
	TableTemplates  = "story_templates"
)

// coreDDL creates the five library relations. Order matters: stories
// must exist before the tables that reference it.
var coreDDL = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		title         TEXT    NOT NULL CHECK (length(trim(title)) > 0),
		created_at    TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		reading_level TEXT,
		theme         TEXT,
		is_favorite   BOOLEAN NOT NULL DEFAULT 0,
		tags          TEXT,
		last_read_at  TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS story_pages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		story_id    INTEGER NOT NULL,
		page_number INTEGER NOT NULL,
		content     TEXT,
		image_path  TEXT,
		image_style TEXT,
		FOREIGN KEY (story_id) REFERENCES stories (id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS characters (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		story_id   INTEGER NOT NULL,
		name       TEXT    NOT NULL,
		age        INTEGER,
		gender     TEXT,
		appearance TEXT,
		FOREIGN KEY (story_id) REFERENCES stories (id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS story_templates (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT    NOT NULL,
		description TEXT,
		theme       TEXT,
		structure   TEXT,
		is_custom   BOOLEAN NOT NULL DEFAULT 0
	);`,
}

// bookkeepingDDL holds installation metadata and the schema version row.
var bookkeepingDDL = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS version (
		id          INTEGER PRIMARY KEY CHECK(id=1),
		schema      INTEGER NOT NULL,
		app         TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);`,
}

// EnsureSchema creates every relation that does not exist yet and applies
// pending migrations. It is safe to call on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, q := range bookkeepingDDL {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: create bookkeeping table: %w", err)
		}
	}
	for _, q := range coreDDL {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if err := ensureVersionRow(ctx, db); err != nil {
		return err
	}
	return runMigrations(ctx, db)
}

func ensureVersionRow(ctx context.Context, db *sql.DB) error {
	now := formatTime(time.Now())
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Fresh file: tables above are schema 1, migrations bring it forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// migrations maps the target schema number to the statements that reach it.
// The page number index is not UNIQUE: older libraries may already hold
// duplicate numbers and must still open. Stories rejects new duplicates.
var migrations = map[int][]string{
	2: {
		`CREATE INDEX IF NOT EXISTS idx_story_pages_story ON story_pages(story_id);`,
		`CREATE INDEX IF NOT EXISTS idx_story_pages_story_number ON story_pages(story_id, page_number);`,
		`CREATE INDEX IF NOT EXISTS idx_characters_story ON characters(story_id);`,
	},
}

// runMigrations applies incremental schema migrations up to schemaVersion,
// one transaction per step. A database newer than this build is left alone.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for next := cur + 1; next <= schemaVersion; next++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range migrations[next] {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, formatTime(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
	}
	return nil
}

// SchemaVersion reads the applied schema number.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	db, err := d.conn()
	if err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

const metaInstallID = "install_id"

// ensureInstallID returns the installation id, generating it on first open.
func ensureInstallID(ctx context.Context, db *sql.DB) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, metaInstallID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read install id: %w", err)
	}
	id = uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, metaInstallID, id); err != nil {
		return "", fmt.Errorf("write install id: %w", err)
	}
	return id, nil
}
