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

package executor

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/mariaflow/mariaflow/go/pool"
	"github.com/mariaflow/mariaflow/go/sqlerror"
	"github.com/mariaflow/mariaflow/go/sqltypes"
	"github.com/mariaflow/mariaflow/go/transport"
)

// ErrNoMoreRows is returned by Cursor.Next once the result set is
// exhausted. The cursor releases its connection before returning it.
var ErrNoMoreRows = errors.New("no more rows")

// Cursor is an incremental reader over one result set. It pins its
// connection for its whole lifetime; rows are pulled from the server on
// demand and the client never holds more than the wire protocol's own
// buffering. A Cursor is not safe for concurrent use.
type Cursor struct {
	pc      *pool.Pooled[transport.Conn]
	rows    transport.Rows
	columns []sqltypes.ColumnType

	closed    bool
	delivered int64
}

// Stream opens a streaming read of the statement's result set. Only the
// open is covered by the retry policy; once rows start flowing, a
// failure surfaces to the caller rather than silently replaying the
// query. The caller must exhaust or Close the cursor, or the connection
// stays checked out.
func (e *Executor) Stream(ctx context.Context, query string, args ...any) (*Cursor, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	wireArgs, err := sqltypes.EncodeAll(args)
	if err != nil {
		return nil, err
	}

	var cur *Cursor
	err = e.withRetry(ctx, func(ctx context.Context) error {
		pc, err := e.pool.Get(ctx)
		if err != nil {
			return err
		}

		rows, err := pc.Conn().OpenCursor(ctx, query, wireArgs)
		if err != nil {
			taintOnFailure(ctx, pc, err)
			pc.Recycle()
			return err
		}
		cur = &Cursor{
			pc:      pc,
			rows:    rows,
			columns: rows.Columns(),
		}
		return nil
	})
	if err != nil {
		return nil, wrapStatementError(query, err)
	}
	return cur, nil
}

// Columns returns the result schema in wire order.
func (c *Cursor) Columns() []sqltypes.ColumnType {
	return c.columns
}

// Next returns the next decoded row. It returns ErrNoMoreRows when the
// result set is exhausted, at which point the connection has already
// been returned to the pool. Any other error also releases the
// connection; the cursor is unusable afterwards.
func (c *Cursor) Next(ctx context.Context) (*sqltypes.Row, error) {
	if c.closed {
		return nil, sqlerror.ErrStreamClosed
	}

	wire, err := c.rows.Next(ctx)
	if errors.Is(err, io.EOF) {
		c.release(false)
		return nil, ErrNoMoreRows
	}
	if err != nil {
		c.release(true)
		return nil, err
	}

	row, err := sqltypes.DecodeRow(c.columns, wire)
	if err != nil {
		// The wire position is past the bad row; abandoning the stream
		// here leaves undrained rows, so the session cannot be reused.
		c.release(true)
		return nil, err
	}
	c.delivered++
	return row, nil
}

// Close abandons the stream early and returns the connection to the
// pool. The remaining rows are drained so the session stays usable; a
// drain failure discards the connection instead. Close is idempotent
// and safe after exhaustion.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.rows.Close()
	if err != nil {
		c.pc.Taint()
	}
	c.pc.Recycle()
	return err
}

// All returns an iterator over the remaining rows. Iteration stops at
// exhaustion or on the first error, which is yielded as the final pair.
// The cursor is closed when the iterator finishes, including on early
// break.
func (c *Cursor) All(ctx context.Context) iter.Seq2[*sqltypes.Row, error] {
	return func(yield func(*sqltypes.Row, error) bool) {
		defer c.Close()
		for {
			row, err := c.Next(ctx)
			if errors.Is(err, ErrNoMoreRows) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Delivered reports how many rows the cursor has handed to the caller.
func (c *Cursor) Delivered() int64 {
	return c.delivered
}

// release marks the cursor finished and returns the connection. On the
// failure path the rows are closed best-effort and the connection is
// discarded rather than trusted.
func (c *Cursor) release(broken bool) {
	if c.closed {
		return
	}
	c.closed = true

	_ = c.rows.Close()
	if broken {
		c.pc.Taint()
	}
	c.pc.Recycle()
}
