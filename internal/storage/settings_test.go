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
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsBoolRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))

	require.NoError(t, s.Set(ctx, "autoSave", Bool(true)))
	got := s.Get(ctx, "autoSave", Null())
	b, ok := got.AsBool()
	require.True(t, ok, "expected a bool, got %s", got.Kind())
	assert.True(t, b)
}

func TestSettingsObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))

	theme := MustObject(map[string]any{"mode": "dark"})
	require.NoError(t, s.Set(ctx, "theme", theme))
	got := s.Get(ctx, "theme", Null())
	assert.True(t, theme.Equal(got))

	var decoded struct{ Mode string }
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, "dark", decoded.Mode)
}

func TestSettingsStringThatLooksLikeJSON(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))

	require.NoError(t, s.Set(ctx, "flag", String("true")))
	got := s.Get(ctx, "flag", Null())
	str, ok := got.AsString()
	require.True(t, ok, "string must not come back as %s", got.Kind())
	assert.Equal(t, "true", str)
}

func TestSettingsGetFallback(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))

	assert.Equal(t, String("x"), s.Get(ctx, "nonexistent", String("x")))
	assert.True(t, s.Get(ctx, "nonexistent", Null()).IsNull())
}

func TestSettingsGetOnClosedDBReturnsFallback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := NewSettings(db)
	require.NoError(t, s.Set(ctx, "language", String("english")))
	require.NoError(t, db.Close())

	assert.Equal(t, String("fallback"), s.Get(ctx, "language", String("fallback")))
	assert.Empty(t, s.GetAll(ctx))
}

func TestSettingsRawLegacyTextAndNull(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := NewSettings(db)

	_, err := db.sql.Exec(`INSERT INTO settings(key, value) VALUES ('legacy', 'plain words'), ('empty', NULL)`)
	require.NoError(t, err)

	assert.Equal(t, String("plain words"), s.Get(ctx, "legacy", Null()))
	assert.True(t, s.Get(ctx, "empty", String("x")).IsNull())
}

func TestSettingsSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))
	require.NoError(t, s.Set(ctx, "cpuUsage", String("balanced")))
	require.NoError(t, s.Set(ctx, "cpuUsage", Number(75)))

	n, ok := s.Get(ctx, "cpuUsage", Null()).AsNumber()
	require.True(t, ok)
	assert.Equal(t, 75.0, n)
	assert.Len(t, s.GetAll(ctx), 1)
}

func TestSettingsRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))
	assert.ErrorIs(t, s.Set(ctx, "", String("v")), ErrEmptyKey)
	assert.ErrorIs(t, s.SetAll(ctx, map[string]Value{"ok": Bool(true), " ": Bool(false)}), ErrEmptyKey)
	assert.Empty(t, s.GetAll(ctx))
}

func TestSettingsRejectsNonFiniteNumbers(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))
	require.NoError(t, s.Set(ctx, "volume", Number(0.5)))

	for _, n := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		assert.ErrorIs(t, s.Set(ctx, "volume", Number(n)), ErrInvalid, "%v", n)
		assert.ErrorIs(t, s.SetAll(ctx, map[string]Value{"ok": Bool(true), "volume": Number(n)}), ErrInvalid, "%v", n)
		_, err := json.Marshal(Number(n))
		assert.Error(t, err, "%v", n)
	}

	assert.Equal(t, Number(0.5), s.Get(ctx, "volume", Null()))
	all := s.GetAll(ctx)
	assert.Len(t, all, 1, "rejected batch must not write anything")
	_, err := json.Marshal(all)
	assert.NoError(t, err)
}

func TestSettingsSetAllAndGetAll(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))
	in := map[string]Value{
		"theme":       String("dark"),
		"autoSave":    Bool(false),
		"cacheSize":   Number(512),
		"contentTags": MustObject([]string{"gentle", "funny"}),
	}
	require.NoError(t, s.SetAll(ctx, in))

	all := s.GetAll(ctx)
	require.Len(t, all, len(in))
	for k, v := range in {
		assert.True(t, v.Equal(all[k]), "key %s: got %v", k, all[k])
	}
}

// A failure on the second key must leave no trace of the first.
func TestSettingsSetAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := NewSettings(db)
	require.NoError(t, s.Set(ctx, "a", String("before")))

	_, err := db.sql.Exec(`CREATE TRIGGER fail_b_insert BEFORE INSERT ON settings WHEN NEW.key = 'b'
		BEGIN SELECT RAISE(ABORT, 'forced'); END;`)
	require.NoError(t, err)
	_, err = db.sql.Exec(`CREATE TRIGGER fail_b_update BEFORE UPDATE ON settings WHEN NEW.key = 'b'
		BEGIN SELECT RAISE(ABORT, 'forced'); END;`)
	require.NoError(t, err)

	err = s.SetAll(ctx, map[string]Value{"a": String("after"), "b": String("boom")})
	require.Error(t, err)

	assert.Equal(t, String("before"), s.Get(ctx, "a", Null()))
	assert.True(t, s.Get(ctx, "b", Null()).IsNull())
	assert.Len(t, s.GetAll(ctx), 1)
}

func TestSettingsSeedDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewSettings(openTestDB(t))

	require.NoError(t, s.Set(ctx, "language", String("french")))
	require.NoError(t, s.SeedDefaults(ctx))
	require.NoError(t, s.SeedDefaults(ctx))

	all := s.GetAll(ctx)
	assert.Len(t, all, len(DefaultSettings()))
	assert.Equal(t, String("french"), all["language"])
	assert.Equal(t, String("system"), all["theme"])
	assert.Equal(t, String("moderate"), all["contentFilter"])
	assert.Equal(t, Bool(true), all["autoSave"])
	assert.Equal(t, Bool(false), all["cloudBackup"])
	assert.Equal(t, String("balanced"), all["cpuUsage"])
	assert.Equal(t, String("standard"), all["cacheSize"])
}

func TestSettingsSeedDefaultsOnClosedDB(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Close())
	assert.ErrorIs(t, NewSettings(db).SeedDefaults(context.Background()), ErrNotReady)
}
