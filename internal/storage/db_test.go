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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB returns an initialized DB in a fresh temp dir, closed on cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db := New(filepath.Join(t.TempDir(), DBFileName))
	require.NoError(t, db.Initialize(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDefaultPath(t *testing.T) {
	orig := userDataDir
	t.Cleanup(func() { userDataDir = orig })

	base := t.TempDir()
	userDataDir = func() (string, error) { return base, nil }
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "StoryMagic", "storymagic.db"), p)

	// No side effects: the directory is only created by Initialize.
	_, statErr := os.Stat(filepath.Join(base, "StoryMagic"))
	assert.True(t, os.IsNotExist(statErr))

	userDataDir = func() (string, error) { return "", errors.New("no home") }
	_, err = DefaultPath()
	assert.Error(t, err)
}

func TestInitializeCreatesDirAndBecomesReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", DBFileName)
	db := New(path)
	assert.False(t, db.IsReady())

	require.NoError(t, db.Initialize(context.Background()))
	t.Cleanup(func() { _ = db.Close() })

	assert.True(t, db.IsReady())
	assert.FileExists(t, path)
	assert.NotEmpty(t, db.InstallID())
	assert.Equal(t, path, db.Path())
}

func TestInitializeTwiceReturnsErrAlreadyInitialized(t *testing.T) {
	db := openTestDB(t)
	err := db.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.True(t, db.IsReady())
}

func TestInitializeRejectsEmptyPath(t *testing.T) {
	db := New("  ")
	assert.ErrorIs(t, db.Initialize(context.Background()), ErrInvalid)
	assert.False(t, db.IsReady())
}

func TestInitializeFailsWhenParentIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	db := New(filepath.Join(blocker, DBFileName))
	assert.Error(t, db.Initialize(context.Background()))
	assert.False(t, db.IsReady())
}

func TestCloseIsIdempotentAndStopsOperations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Close())
	assert.False(t, db.IsReady())
	require.NoError(t, db.Close())

	// Closing before ever initializing is fine too.
	require.NoError(t, New(filepath.Join(t.TempDir(), DBFileName)).Close())

	_, err := db.SchemaVersion(ctx)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, NewSettings(db).Set(ctx, "theme", String("dark")), ErrNotReady)
}

func TestReopenKeepsInstallID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DBFileName)

	first := New(path)
	require.NoError(t, first.Initialize(ctx))
	id := first.InstallID()
	require.NoError(t, first.Close())

	second := New(path)
	require.NoError(t, second.Initialize(ctx))
	t.Cleanup(func() { _ = second.Close() })
	assert.Equal(t, id, second.InstallID())
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	var fk int
	require.NoError(t, db.sql.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)

	_, err := db.sql.Exec(`INSERT INTO story_pages (story_id, page_number, content) VALUES (999, 1, 'orphan')`)
	assert.Error(t, err, "orphan page must be rejected")
}

func TestParseTimeLayouts(t *testing.T) {
	for _, s := range []string{"2024-05-01T10:11:12Z", "2024-05-01T10:11:12.123456789Z", "2024-05-01 10:11:12", "2024-05-01T10:11:12"} {
		got := parseTime(s)
		assert.False(t, got.IsZero(), s)
		assert.Equal(t, 2024, got.Year(), s)
	}
	assert.True(t, parseTime("yesterday").IsZero())
}
