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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Kind enumerates the variants a setting value can take.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject // structured JSON: object or array
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a setting value. The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  any // map[string]any or []any, as produced by encoding/json
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a number.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Object wraps structured data. v is normalized through encoding/json, so
// structs, maps and slices all end up as map[string]any / []any. Scalars
// are returned as their own variant.
func Object(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("encode object: %w", err)
	}
	var out Value
	if err := out.UnmarshalJSON(raw); err != nil {
		return Value{}, err
	}
	return out, nil
}

// MustObject is Object for literals known to be encodable.
func MustObject(v any) Value {
	out, err := Object(v)
	if err != nil {
		panic(err)
	}
	return out
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Raw() any       { return v.Interface() }
func (v Value) String() string { return v.Text() }

// Text returns the string payload, or the serialized form for other kinds.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.str
	}
	return v.encode()
}

// AsString returns the payload if v is a String.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the payload if v is a Number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the payload if v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsObject returns the structured payload if v is an Object.
func (v Value) AsObject() (any, bool) { return v.obj, v.kind == KindObject }

// Decode unmarshals an Object (or any other kind) into dst.
func (v Value) Decode(dst any) error {
	return json.Unmarshal([]byte(v.jsonText()), dst)
}

// Interface returns the payload as a plain Go value (nil, string, float64, bool, map or slice).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		return v.obj
	default:
		return nil
	}
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return reflect.DeepEqual(v.obj, o.obj)
	}
}

// jsonText is the JSON form of v regardless of kind.
func (v Value) jsonText() string {
	switch v.kind {
	case KindString:
		b, _ := json.Marshal(v.str)
		return string(b)
	case KindObject:
		b, err := json.Marshal(v.obj)
		if err != nil {
			return "null"
		}
		return string(b)
	default:
		return v.encode()
	}
}

// encode produces the text stored in the settings table. Scalars are
// stringified; objects are JSON. A string that would itself parse as JSON
// is stored quoted so that decode gives back a String and not, say, the
// boolean true for "true".
func (v Value) encode() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		if json.Valid([]byte(v.str)) {
			b, _ := json.Marshal(v.str)
			return string(b)
		}
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.jsonText()
	}
}

// decode is the inverse of encode: JSON first, raw text as a fallback.
func decode(text string) Value {
	var v Value
	if err := v.UnmarshalJSON([]byte(text)); err != nil {
		return String(text)
	}
	return v
}

// validate reports values that have no JSON form.
func (v Value) validate() error {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return fmt.Errorf("%w: number %v has no JSON form", ErrInvalid, v.num)
	}
	return nil
}

// MarshalJSON encodes v as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	return []byte(v.jsonText()), nil
}

// UnmarshalJSON accepts any JSON document and picks the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	switch t := x.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(t)
	case float64:
		*v = Number(t)
	case string:
		*v = String(t)
	default:
		*v = Value{kind: KindObject, obj: t}
	}
	return nil
}
