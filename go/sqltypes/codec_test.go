// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqltypes

import (
	"database/sql/driver"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariaflow/mariaflow/go/sqlerror"
)

func TestEncode(t *testing.T) {
	t.Run("nil is NULL", func(t *testing.T) {
		v, err := Encode(nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("integers widen to int64", func(t *testing.T) {
		for _, in := range []any{int(42), int8(42), int16(42), int32(42), int64(42), uint8(42), uint16(42), uint32(42), uint(42)} {
			v, err := Encode(in)
			require.NoError(t, err)
			assert.Equal(t, int64(42), v, "input %T", in)
		}
	})

	t.Run("uint64 above int64 range becomes decimal text", func(t *testing.T) {
		v, err := Encode(uint64(math.MaxUint64))
		require.NoError(t, err)
		assert.Equal(t, "18446744073709551615", v)
	})

	t.Run("NaN becomes NULL", func(t *testing.T) {
		v, err := Encode(math.NaN())
		require.NoError(t, err)
		assert.Nil(t, v)

		v, err = Encode(float32(math.NaN()))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("finite floats pass through", func(t *testing.T) {
		v, err := Encode(3.25)
		require.NoError(t, err)
		assert.Equal(t, 3.25, v)
	})

	t.Run("decimal renders as exact text", func(t *testing.T) {
		d := decimal.RequireFromString("123456.789012345678901234567890")
		v, err := Encode(d)
		require.NoError(t, err)
		assert.Equal(t, "123456.78901234567890123456789", v)
	})

	t.Run("nil decimal pointer is NULL", func(t *testing.T) {
		v, err := Encode((*decimal.Decimal)(nil))
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("time normalizes to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+7", 7*3600)
		in := time.Date(2025, 3, 14, 9, 26, 53, 0, loc)

		v, err := Encode(in)
		require.NoError(t, err)
		out, ok := v.(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.UTC, out.Location())
		assert.True(t, out.Equal(in), "same instant")
	})

	t.Run("maps and slices become JSON", func(t *testing.T) {
		v, err := Encode(map[string]any{"k": "v", "n": 1})
		require.NoError(t, err)
		assert.JSONEq(t, `{"k":"v","n":1}`, string(v.([]byte)))

		v, err = Encode([]int{1, 2, 3})
		require.NoError(t, err)
		assert.JSONEq(t, `[1,2,3]`, string(v.([]byte)))
	})

	t.Run("valid raw JSON passes through", func(t *testing.T) {
		v, err := Encode(json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), v)
	})

	t.Run("invalid raw JSON fails", func(t *testing.T) {
		_, err := Encode(json.RawMessage(`{"a":`))
		var encErr *sqlerror.EncodingError
		require.ErrorAs(t, err, &encErr)
	})

	t.Run("unsupported type fails with EncodingError", func(t *testing.T) {
		_, err := Encode(make(chan int))
		var encErr *sqlerror.EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Contains(t, encErr.Context, "chan int")
	})
}

func TestEncodeAll(t *testing.T) {
	t.Run("empty args", func(t *testing.T) {
		out, err := EncodeAll(nil)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("positions are preserved", func(t *testing.T) {
		out, err := EncodeAll([]any{1, "two", nil})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, int64(1), out[0])
		assert.Equal(t, "two", out[1])
		assert.Nil(t, out[2])
	})

	t.Run("failure names the parameter position", func(t *testing.T) {
		_, err := EncodeAll([]any{1, make(chan int)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parameter 1")
		var encErr *sqlerror.EncodingError
		assert.ErrorAs(t, err, &encErr)
	})
}

func TestDecode(t *testing.T) {
	t.Run("NULL decodes to nil for every type", func(t *testing.T) {
		for _, dbType := range []string{"JSON", "DECIMAL", "DATETIME", "BIGINT", "DOUBLE", "VARCHAR", "BLOB"} {
			v, err := Decode(ColumnType{Name: "c", DatabaseType: dbType}, nil)
			require.NoError(t, err)
			assert.Nil(t, v, "type %s", dbType)
		}
	})

	t.Run("JSON decodes into native document", func(t *testing.T) {
		col := ColumnType{Name: "doc", DatabaseType: "JSON"}
		v, err := Decode(col, []byte(`{"name":"a","tags":[1,2]}`))
		require.NoError(t, err)

		doc, ok := v.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a", doc["name"])
		assert.Equal(t, []any{float64(1), float64(2)}, doc["tags"])
	})

	t.Run("malformed JSON fails without repair", func(t *testing.T) {
		col := ColumnType{Name: "doc", DatabaseType: "JSON"}
		_, err := Decode(col, []byte(`{"name":`))
		var encErr *sqlerror.EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Contains(t, encErr.Context, "doc")
	})

	t.Run("decimal decodes exactly", func(t *testing.T) {
		col := ColumnType{Name: "price", DatabaseType: "NEWDECIMAL"}
		v, err := Decode(col, []byte("12345.67890123456789"))
		require.NoError(t, err)

		d, ok := v.(decimal.Decimal)
		require.True(t, ok)
		assert.Equal(t, "12345.67890123456789", d.String())
	})

	t.Run("decimal never becomes float", func(t *testing.T) {
		col := ColumnType{Name: "price", DatabaseType: "DECIMAL"}
		_, err := Decode(col, 1.5)
		var encErr *sqlerror.EncodingError
		require.ErrorAs(t, err, &encErr)
	})

	t.Run("timestamps decode as UTC instants", func(t *testing.T) {
		col := ColumnType{Name: "ts", DatabaseType: "TIMESTAMP"}

		v, err := Decode(col, []byte("2025-03-14 09:26:53.589793"))
		require.NoError(t, err)
		ts, ok := v.(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.UTC, ts.Location())
		assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC), ts)

		v, err = Decode(col, []byte("2025-03-14 09:26:53"))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC), v)
	})

	t.Run("dates decode at midnight UTC", func(t *testing.T) {
		col := ColumnType{Name: "d", DatabaseType: "DATE"}
		v, err := Decode(col, []byte("2025-03-14"))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), v)
	})

	t.Run("pre-parsed time is normalized to UTC", func(t *testing.T) {
		col := ColumnType{Name: "ts", DatabaseType: "DATETIME"}
		loc := time.FixedZone("UTC-5", -5*3600)
		in := time.Date(2025, 3, 14, 4, 26, 53, 0, loc)

		v, err := Decode(col, in)
		require.NoError(t, err)
		ts := v.(time.Time)
		assert.Equal(t, time.UTC, ts.Location())
		assert.True(t, ts.Equal(in))
	})

	t.Run("integer text decodes to int64", func(t *testing.T) {
		col := ColumnType{Name: "n", DatabaseType: "BIGINT"}
		v, err := Decode(col, []byte("9007199254740993"))
		require.NoError(t, err)
		assert.Equal(t, int64(9007199254740993), v)
	})

	t.Run("text columns decode to string", func(t *testing.T) {
		col := ColumnType{Name: "s", DatabaseType: "VARCHAR"}
		v, err := Decode(col, []byte("héllo"))
		require.NoError(t, err)
		assert.Equal(t, "héllo", v)
	})

	t.Run("binary passes through untouched", func(t *testing.T) {
		col := ColumnType{Name: "b", DatabaseType: "BLOB"}
		raw := []byte{0x00, 0xff, 0x10}
		v, err := Decode(col, raw)
		require.NoError(t, err)
		assert.Equal(t, raw, v)
	})
}

func TestDecodeRow(t *testing.T) {
	columns := []ColumnType{
		{Name: "id", DatabaseType: "BIGINT"},
		{Name: "name", DatabaseType: "VARCHAR"},
		{Name: "meta", DatabaseType: "JSON"},
	}

	t.Run("full row", func(t *testing.T) {
		row, err := DecodeRow(columns, []driver.Value{int64(7), []byte("alice"), []byte(`{"x":true}`)})
		require.NoError(t, err)

		id, ok := row.Get("id")
		require.True(t, ok)
		assert.Equal(t, int64(7), id)

		name, _ := row.Get("name")
		assert.Equal(t, "alice", name)

		meta, _ := row.Get("meta")
		assert.Equal(t, map[string]any{"x": true}, meta)
	})

	t.Run("width mismatch fails", func(t *testing.T) {
		_, err := DecodeRow(columns, []driver.Value{int64(7)})
		var encErr *sqlerror.EncodingError
		require.ErrorAs(t, err, &encErr)
	})

	t.Run("decode failure carries the column name", func(t *testing.T) {
		_, err := DecodeRow(columns, []driver.Value{int64(7), []byte("alice"), []byte(`{bad`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "meta")
	})
}

func TestEncodeDecodeDecimalRoundTrip(t *testing.T) {
	// An exact decimal survives the write-read cycle with its value
	// intact: encoded as text, decoded from text.
	in := decimal.RequireFromString("99999999999999999999.000000000000000001")

	wire, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(ColumnType{Name: "d", DatabaseType: "DECIMAL"}, wire)
	require.NoError(t, err)
	assert.True(t, in.Equal(out.(decimal.Decimal)), "got %s", out)
}
