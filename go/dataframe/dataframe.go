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

// Package dataframe converts between row-oriented query results and a
// columnar Frame. The conversion is a pure mapping layer: it never
// talks to the database, and it carries decoded Go values unchanged
// except for the documented NaN handling on the insert path.
package dataframe

import (
	"fmt"
	"math"

	"github.com/mariaflow/mariaflow/go/sqltypes"
)

// Frame is a columnar view of a result set: named columns of equal
// length. Cell values are the codec's Go types; NULL is nil.
type Frame struct {
	columns []string
	data    map[string][]any
	rows    int
}

// New creates an empty Frame with the given column order.
func New(columns ...string) *Frame {
	data := make(map[string][]any, len(columns))
	for _, c := range columns {
		data[c] = nil
	}
	return &Frame{columns: columns, data: data}
}

// FromRows builds a Frame from decoded rows. All rows must share the
// schema of the first; the column order is the first row's wire order.
// An empty slice yields an empty Frame with no columns.
func FromRows(rows []*sqltypes.Row) (*Frame, error) {
	if len(rows) == 0 {
		return New(), nil
	}

	cols := rows[0].Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c
	}
	f := New(names...)
	for i, row := range rows {
		if row.Len() != len(names) {
			return nil, fmt.Errorf("row %d has %d columns, frame has %d", i, row.Len(), len(names))
		}
		f.Append(row.Values()...)
	}
	return f, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return f.columns }

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// Append adds one row of cells in column order. It panics if the cell
// count does not match the column count; a Frame is built
// programmatically and a mismatch is a programming error.
func (f *Frame) Append(cells ...any) {
	if len(cells) != len(f.columns) {
		panic(fmt.Sprintf("dataframe: appending %d cells to a %d-column frame", len(cells), len(f.columns)))
	}
	for i, c := range f.columns {
		f.data[c] = append(f.data[c], cells[i])
	}
	f.rows++
}

// Column returns the named column's cells, or nil if the column does
// not exist.
func (f *Frame) Column(name string) []any {
	return f.data[name]
}

// Cell returns the value at (row, column name). The second return is
// false if the column does not exist or the row is out of range.
func (f *Frame) Cell(row int, name string) (any, bool) {
	col, ok := f.data[name]
	if !ok || row < 0 || row >= len(col) {
		return nil, false
	}
	return col[row], true
}

// ParamSets flattens the Frame into per-row parameter sets for batch
// execution, restricted to the named columns (all columns if none are
// named). NaN float cells become nil, so they insert as SQL NULL; that
// conversion is lossy and one-way.
func (f *Frame) ParamSets(columns ...string) ([][]any, error) {
	if len(columns) == 0 {
		columns = f.columns
	}
	for _, c := range columns {
		if _, ok := f.data[c]; !ok {
			return nil, fmt.Errorf("dataframe has no column %q", c)
		}
	}

	out := make([][]any, f.rows)
	for i := range out {
		set := make([]any, len(columns))
		for j, c := range columns {
			set[j] = sanitize(f.data[c][i])
		}
		out[i] = set
	}
	return out, nil
}

func sanitize(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) {
			return nil
		}
	}
	return v
}
