/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueEncoding(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null(), "null"},
		{"bool", Bool(true), "true"},
		{"number", Number(3.5), "3.5"},
		{"integer number", Number(42), "42"},
		{"plain string stays raw", String("dark"), "dark"},
		{"json-looking string is quoted", String("true"), `"true"`},
		{"numeric string is quoted", String("42"), `"42"`},
		{"object", MustObject(map[string]any{"mode": "dark"}), `{"mode":"dark"}`},
		{"list", MustObject([]string{"a", "b"}), `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.encode())
			assert.True(t, tt.in.Equal(decode(tt.in.encode())), "round trip of %s", tt.want)
		})
	}
}

func TestDecodeFallsBackToRawText(t *testing.T) {
	v := decode("{not json")
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "{not json", s)

	b, ok := decode("false").AsBool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestObjectNormalizesStructs(t *testing.T) {
	type prefs struct {
		Mode  string `json:"mode"`
		Scale int    `json:"scale"`
	}
	v, err := Object(prefs{Mode: "dark", Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())
	assert.True(t, v.Equal(MustObject(map[string]any{"mode": "dark", "scale": 2})))

	var back prefs
	require.NoError(t, v.Decode(&back))
	assert.Equal(t, prefs{Mode: "dark", Scale: 2}, back)

	// Scalars passed to Object keep their own kind.
	assert.Equal(t, KindBool, MustObject(true).Kind())

	_, err = Object(func() {})
	assert.Error(t, err)
}

func TestValueJSON(t *testing.T) {
	in := map[string]Value{
		"autoSave": Bool(true),
		"theme":    String("system"),
		"volume":   Number(0.5),
		"nothing":  Null(),
		"layout":   MustObject(map[string]any{"columns": []any{1.0, 2.0}}),
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[string]Value
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, len(in))
	for k, v := range in {
		assert.True(t, v.Equal(out[k]), k)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "object", KindObject.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
