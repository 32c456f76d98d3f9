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
	"log/slog"
	"sort"
	"strings"

	applog "storymagic/internal/log"
)

// ErrEmptyKey is returned by writes with a blank setting key.
var ErrEmptyKey = errors.New("setting key must not be empty")

// language=SQL
// dialect=SQLite
const selectSettingSQL = `SELECT value FROM settings WHERE key = ?`

// language=SQL
// dialect=SQLite
const selectAllSettingsSQL = `SELECT key, value FROM settings ORDER BY key`

// language=SQL
// dialect=SQLite
const upsertSettingSQL = `INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const insertSettingIfAbsentSQL = `INSERT INTO settings(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO NOTHING`

// DefaultSetting is one entry of the first-run settings catalog.
type DefaultSetting struct {
	Key   string
	Value Value
}

// DefaultSettings lists the values written by Settings.SeedDefaults.
func DefaultSettings() []DefaultSetting {
	return []DefaultSetting{
		{"theme", String("system")},
		{"language", String("english")},
		{"contentFilter", String("moderate")},
		{"autoSave", Bool(true)},
		{"cloudBackup", Bool(false)},
		{"cpuUsage", String("balanced")},
		{"cacheSize", String("standard")},
	}
}

// Settings is the key/value preference store.
type Settings struct {
	db  *DB
	log *slog.Logger
}

// NewSettings returns a store bound to db.
func NewSettings(db *DB) *Settings {
	return &Settings{db: db, log: applog.WithComponent("settings")}
}

// Get returns the value for key, or fallback if the key is absent or
// anything goes wrong. Failures are logged, never returned.
func (s *Settings) Get(ctx context.Context, key string, fallback Value) Value {
	l := applog.WithOperation(s.log, "get").With(slog.String("key", key))
	db, err := s.db.conn()
	if err != nil {
		l.Warn("settings read skipped", slog.Any("err", err))
		return fallback
	}
	var raw sql.NullString
	err = db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback
	}
	if err != nil {
		l.Error("settings read failed", slog.Any("err", err))
		return fallback
	}
	if !raw.Valid {
		return Null()
	}
	return decode(raw.String)
}

// Set writes key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key string, v Value) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := v.validate(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	db, err := s.db.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, upsertSettingSQL, key, v.encode(), formatTime(nowUTC())); err != nil {
		applog.WithOperation(s.log, "set").Error("settings write failed", slog.String("key", key), slog.Any("err", err))
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// GetAll returns every stored setting. On error it logs and returns an empty map.
func (s *Settings) GetAll(ctx context.Context) map[string]Value {
	l := applog.WithOperation(s.log, "getAll")
	out := map[string]Value{}
	db, err := s.db.conn()
	if err != nil {
		l.Warn("settings read skipped", slog.Any("err", err))
		return out
	}
	rows, err := db.QueryContext(ctx, selectAllSettingsSQL)
	if err != nil {
		l.Error("settings read failed", slog.Any("err", err))
		return out
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var raw sql.NullString
		if err := rows.Scan(&key, &raw); err != nil {
			l.Error("settings scan failed", slog.Any("err", err))
			return map[string]Value{}
		}
		if raw.Valid {
			out[key] = decode(raw.String)
		} else {
			out[key] = Null()
		}
	}
	if err := rows.Err(); err != nil {
		l.Error("settings iteration failed", slog.Any("err", err))
		return map[string]Value{}
	}
	return out
}

// SetAll upserts every entry in one transaction. Either all entries are
// written or none are.
func (s *Settings) SetAll(ctx context.Context, values map[string]Value) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			return ErrEmptyKey
		}
		if err := values[k].validate(); err != nil {
			return fmt.Errorf("set %q: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	now := formatTime(nowUTC())
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSettingSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, k, values[k].encode(), now); err != nil {
				return fmt.Errorf("set %q: %w", k, err)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotReady) {
		applog.WithOperation(s.log, "setAll").Error("settings batch rolled back", slog.Int("count", len(keys)), slog.Any("err", err))
	}
	return err
}

// SeedDefaults writes the DefaultSettings catalog without touching keys
// that already have a value.
func (s *Settings) SeedDefaults(ctx context.Context) error {
	now := formatTime(nowUTC())
	var inserted int64
	err := s.db.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range DefaultSettings() {
			res, err := tx.ExecContext(ctx, insertSettingIfAbsentSQL, d.Key, d.Value.encode(), now)
			if err != nil {
				return fmt.Errorf("seed %q: %w", d.Key, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	l := applog.WithOperation(s.log, "seedDefaults")
	if err != nil {
		l.Error("seeding settings failed", slog.Any("err", err))
		return err
	}
	l.Debug("settings seeded", slog.Int64("inserted", inserted))
	return nil
}
