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

package mysqldriver

import (
	"context"
	"database/sql/driver"
	"io"

	"github.com/mariaflow/mariaflow/go/sqltypes"
)

// rows adapts a raw driver cursor. The driver reads rows one protocol
// packet at a time, so memory stays bounded by what the wire buffers.
type rows struct {
	dr   driver.Rows
	stmt driver.Stmt // non-nil for prepared cursors, closed with the rows
	cols []sqltypes.ColumnType
	buf  []driver.Value

	closed bool
}

func newRows(dr driver.Rows, stmt driver.Stmt) *rows {
	names := dr.Columns()
	cols := make([]sqltypes.ColumnType, len(names))

	typer, hasTypes := dr.(driver.RowsColumnTypeDatabaseTypeName)
	for i, name := range names {
		cols[i] = sqltypes.ColumnType{Name: name}
		if hasTypes {
			cols[i].DatabaseType = typer.ColumnTypeDatabaseTypeName(i)
		}
	}

	return &rows{
		dr:   dr,
		stmt: stmt,
		cols: cols,
		buf:  make([]driver.Value, len(names)),
	}
}

func (r *rows) Columns() []sqltypes.ColumnType { return r.cols }

func (r *rows) Next(ctx context.Context) ([]driver.Value, error) {
	if r.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.dr.Next(r.buf); err != nil {
		return nil, err
	}

	// The driver reuses its scratch buffer between rows; byte slices
	// must be copied before the next read.
	out := make([]driver.Value, len(r.buf))
	for i, v := range r.buf {
		if b, ok := v.([]byte); ok {
			out[i] = append([]byte(nil), b...)
		} else {
			out[i] = v
		}
	}
	return out, nil
}

func (r *rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	// driver.Rows.Close drains undelivered rows, leaving the session
	// usable for the next statement.
	err := r.dr.Close()
	if r.stmt != nil {
		if serr := r.stmt.Close(); err == nil {
			err = serr
		}
	}
	return err
}
