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
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupProducesUsableCopy(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, NewSettings(db).Set(ctx, "theme", String("dark")))

	dst, err := db.Backup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(db.Path()), "backups"), filepath.Dir(dst))
	assert.True(t, strings.HasPrefix(filepath.Base(dst), "storymagic-"))

	restored := New(dst)
	require.NoError(t, restored.Initialize(ctx))
	t.Cleanup(func() { _ = restored.Close() })
	assert.Equal(t, String("dark"), NewSettings(restored).Get(ctx, "theme", Null()))
	assert.Equal(t, db.InstallID(), restored.InstallID())
}

func TestBackupExplicitDir(t *testing.T) {
	db := openTestDB(t)
	dir := filepath.Join(t.TempDir(), "elsewhere")
	dst, err := db.Backup(context.Background(), dir)
	require.NoError(t, err)
	assert.FileExists(t, dst)
	assert.Equal(t, dir, filepath.Dir(dst))
}

func TestCheckHealthyDatabase(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Check(context.Background()))

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Check(context.Background()), ErrNotReady)
	_, err := db.Backup(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotReady)
}
