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

// Package sqltypes implements the value codec between SQL wire values
// and application-typed Go values, plus the decoded Row representation.
//
// Supported application types: JSON documents (maps and slices),
// arbitrary-precision decimals (shopspring/decimal), UTC timestamps,
// and NULL (Go nil). Everything else passes through as the scalar the
// driver reports.
package sqltypes

// ColumnType describes one column of a result schema: its name and the
// database type name reported by the transport (e.g. "JSON", "DECIMAL",
// "DATETIME", "BIGINT").
type ColumnType struct {
	Name         string
	DatabaseType string
}

// Row is one decoded result row. Column order is the insertion order of
// the result schema; lookup is by column name.
type Row struct {
	columns []ColumnType
	values  []any
	index   map[string]int
}

// NewRow builds a Row from a result schema and its decoded values.
// The two slices must have the same length.
func NewRow(columns []ColumnType, values []any) *Row {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		// First occurrence wins for duplicate column names, matching
		// by-name lookup semantics of the wire protocol.
		if _, ok := index[col.Name]; !ok {
			index[col.Name] = i
		}
	}
	return &Row{columns: columns, values: values, index: index}
}

// Columns returns the column names in schema order.
func (r *Row) Columns() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.values) }

// Get returns the decoded value for the named column. The second return
// is false if the column does not exist in the schema.
func (r *Row) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the decoded value at position i in schema order.
func (r *Row) Value(i int) any { return r.values[i] }

// Values returns all decoded values in schema order. The returned slice
// is the row's backing storage and must not be modified.
func (r *Row) Values() []any { return r.values }

// Map returns the row as a name-to-value mapping. Map iteration order is
// not schema order; use Columns for ordered traversal.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, col := range r.columns {
		m[col.Name] = r.values[i]
	}
	return m
}
