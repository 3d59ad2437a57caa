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

// Package transport defines the boundary with the wire-protocol
// collaborator. The pool and executor work exclusively against these
// interfaces; the production implementation lives in
// transport/mysqldriver, and tests use tools/fakedb.
package transport

import (
	"context"
	"database/sql/driver"

	"github.com/mariaflow/mariaflow/go/sqltypes"
)

// Result reports the outcome of a mutating statement.
type Result struct {
	// AffectedRows is the number of rows changed by the statement. For a
	// batch execution it is the total across all submitted parameter sets.
	AffectedRows int64

	// LastInsertID is the auto-increment ID generated by the statement,
	// or zero if none was generated.
	LastInsertID int64
}

// Rows is a server-side cursor over one result set. Implementations may
// buffer only what the wire protocol itself buffers; the client never
// materializes the full result set.
type Rows interface {
	// Columns returns the result schema in wire order.
	Columns() []sqltypes.ColumnType

	// Next returns the next wire row, or io.EOF once the result set is
	// exhausted. The returned slice is owned by the caller.
	Next(ctx context.Context) ([]driver.Value, error)

	// Close releases the cursor. Implementations drain any undelivered
	// rows so the underlying session stays usable. Close is idempotent.
	Close() error
}

// Conn is one live session with the server. A Conn is owned by exactly
// one caller at a time; the pool enforces that discipline.
type Conn interface {
	// Execute runs one statement and returns its result.
	Execute(ctx context.Context, query string, args []driver.Value) (Result, error)

	// ExecuteMany runs one statement definition against an ordered
	// sequence of parameter sets. It returns the combined result and the
	// number of parameter sets submitted to the server before any
	// failure. Whether the server applied the submitted sets when an
	// error occurs mid-batch is transport-dependent.
	ExecuteMany(ctx context.Context, query string, paramSets [][]driver.Value) (Result, int, error)

	// OpenCursor starts a streaming read of the statement's result set.
	// The connection must stay checked out until the cursor is closed.
	OpenCursor(ctx context.Context, query string, args []driver.Value) (Rows, error)

	// Ping verifies the session is still alive.
	Ping(ctx context.Context) error

	// Close tears down the session.
	Close() error
}

// Driver opens sessions. The connection parameters are captured when
// the driver is constructed.
type Driver interface {
	Open(ctx context.Context) (Conn, error)

	// Addr describes the server endpoint, for logging and error context.
	Addr() string
}
