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
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mariaflow/mariaflow/go/sqlerror"
)

// Encode converts an application-typed value into a wire value the
// transport can bind as a statement parameter.
//
// Conversions:
//   - nil stays nil (SQL NULL)
//   - NaN floats become nil (SQL NULL); this direction is lossy, a NULL
//     fetched back cannot be distinguished from an originally-NaN float
//   - decimal.Decimal is rendered as exact decimal text, never float
//   - time.Time is normalized to its UTC instant; no zone is inferred
//   - maps and slices are serialized as JSON documents
//   - integer and string scalars pass through
//
// Unsupported types fail with *sqlerror.EncodingError.
func Encode(v any) (driver.Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return encodeUint(uint64(val))
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return encodeUint(val)
	case float32:
		return encodeFloat(float64(val)), nil
	case float64:
		return encodeFloat(val), nil
	case string:
		return val, nil
	case []byte:
		return val, nil
	case time.Time:
		return val.UTC(), nil
	case decimal.Decimal:
		return val.String(), nil
	case *decimal.Decimal:
		if val == nil {
			return nil, nil
		}
		return val.String(), nil
	case json.RawMessage:
		if !json.Valid(val) {
			return nil, &sqlerror.EncodingError{
				Context: "json.RawMessage",
				Err:     fmt.Errorf("invalid JSON payload"),
			}
		}
		return []byte(val), nil
	}

	// Maps and slices are JSON documents. Anything else is unsupported:
	// the codec never guesses at a representation.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, &sqlerror.EncodingError{
				Context: fmt.Sprintf("%T", v),
				Err:     err,
			}
		}
		return data, nil
	}

	return nil, &sqlerror.EncodingError{
		Context: fmt.Sprintf("%T", v),
		Err:     fmt.Errorf("unsupported parameter type"),
	}
}

// EncodeAll encodes a full parameter list. The first failure aborts the
// encode with the position of the offending parameter.
func EncodeAll(args []any) ([]driver.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]driver.Value, len(args))
	for i, arg := range args {
		v, err := Encode(arg)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func encodeFloat(f float64) driver.Value {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func encodeUint(u uint64) (driver.Value, error) {
	if u > math.MaxInt64 {
		// Out of int64 range; send as exact decimal text.
		return strconv.FormatUint(u, 10), nil
	}
	return int64(u), nil
}

// Decode converts a wire value into its application-typed form based on
// the column's database type. SQL NULL decodes to nil for every type.
//
// A malformed wire payload (e.g. invalid JSON in a JSON column) is not
// repaired; Decode fails with *sqlerror.EncodingError.
func Decode(col ColumnType, wire driver.Value) (any, error) {
	if wire == nil {
		return nil, nil
	}

	switch col.DatabaseType {
	case "JSON":
		return decodeJSON(col, wire)
	case "DECIMAL", "NEWDECIMAL":
		return decodeDecimal(col, wire)
	case "DATE", "DATETIME", "TIMESTAMP":
		return decodeTime(col, wire)
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR":
		return decodeInt(col, wire)
	case "FLOAT", "DOUBLE":
		return decodeFloat(col, wire)
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		if b, ok := wire.([]byte); ok {
			return string(b), nil
		}
		return wire, nil
	default:
		// Binary and unrecognized types pass through untouched.
		return wire, nil
	}
}

// DecodeRow decodes one wire row against the result schema.
func DecodeRow(columns []ColumnType, wire []driver.Value) (*Row, error) {
	if len(wire) != len(columns) {
		return nil, &sqlerror.EncodingError{
			Context: "row",
			Err:     fmt.Errorf("schema has %d columns, row has %d values", len(columns), len(wire)),
		}
	}
	values := make([]any, len(wire))
	for i, w := range wire {
		v, err := Decode(columns[i], w)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return NewRow(columns, values), nil
}

func decodeJSON(col ColumnType, wire driver.Value) (any, error) {
	var data []byte
	switch w := wire.(type) {
	case []byte:
		data = w
	case string:
		data = []byte(w)
	default:
		return nil, decodeErr(col, fmt.Errorf("JSON column carried %T", wire))
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, decodeErr(col, err)
	}
	return doc, nil
}

func decodeDecimal(col ColumnType, wire driver.Value) (any, error) {
	var text string
	switch w := wire.(type) {
	case []byte:
		text = string(w)
	case string:
		text = w
	case int64:
		return decimal.NewFromInt(w), nil
	default:
		// Never fall back to binary floating point: that would silently
		// lose precision, which is the whole reason decimals exist.
		return nil, decodeErr(col, fmt.Errorf("decimal column carried %T", wire))
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, decodeErr(col, err)
	}
	return d, nil
}

func decodeTime(col ColumnType, wire driver.Value) (any, error) {
	switch w := wire.(type) {
	case time.Time:
		return w.UTC(), nil
	case []byte:
		return parseWireTime(col, string(w))
	case string:
		return parseWireTime(col, w)
	default:
		return nil, decodeErr(col, fmt.Errorf("time column carried %T", wire))
	}
}

// wireTimeLayouts are the textual forms the server sends when the
// transport does not pre-parse times. Interpreted as UTC instants; the
// codec never consults the ambient local zone.
var wireTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWireTime(col ColumnType, s string) (any, error) {
	for _, layout := range wireTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return nil, decodeErr(col, fmt.Errorf("unparseable time %q", s))
}

func decodeInt(col ColumnType, wire driver.Value) (any, error) {
	switch w := wire.(type) {
	case int64:
		return w, nil
	case []byte:
		n, err := strconv.ParseInt(string(w), 10, 64)
		if err != nil {
			return nil, decodeErr(col, err)
		}
		return n, nil
	default:
		return nil, decodeErr(col, fmt.Errorf("integer column carried %T", wire))
	}
}

func decodeFloat(col ColumnType, wire driver.Value) (any, error) {
	switch w := wire.(type) {
	case float64:
		return w, nil
	case []byte:
		f, err := strconv.ParseFloat(string(w), 64)
		if err != nil {
			return nil, decodeErr(col, err)
		}
		return f, nil
	default:
		return nil, decodeErr(col, fmt.Errorf("float column carried %T", wire))
	}
}

func decodeErr(col ColumnType, err error) error {
	return &sqlerror.EncodingError{Context: "column " + col.Name, Err: err}
}
