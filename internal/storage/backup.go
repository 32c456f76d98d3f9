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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	applog "storymagic/internal/log"
)

// ErrCorrupt is returned by Check when the integrity check reports problems.
var ErrCorrupt = errors.New("database integrity check failed")

// Backup writes a consistent copy of the library to dir as
// storymagic-<UTC stamp>.db and returns its path. An empty dir means the
// "backups" folder next to the database file.
func (d *DB) Backup(ctx context.Context, dir string) (string, error) {
	db, err := d.conn()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(filepath.Dir(d.path), "backups")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := "storymagic-" + nowUTC().Format("20060102-150405.000000000") + ".db"
	dst := filepath.Join(dir, name)
	// VACUUM INTO refuses to overwrite, and runs outside any transaction.
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		applog.WithOperation(d.log, "backup").Error("backup failed", slog.String("dst", dst), slog.Any("err", err))
		return "", fmt.Errorf("backup to %s: %w", dst, err)
	}
	applog.WithOperation(d.log, "backup").Info("backup written", slog.String("dst", dst))
	return dst, nil
}

// Check runs SQLite's quick integrity check and returns ErrCorrupt with the
// reported problems if the file is damaged.
func (d *DB) Check(ctx context.Context) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, `PRAGMA quick_check`)
	if err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("quick_check scan: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if len(problems) > 0 {
		d.log.Warn("integrity problems found", slog.Int("count", len(problems)))
		return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(problems, "; "))
	}
	return nil
}
