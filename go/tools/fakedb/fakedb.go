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

// Package fakedb provides a scripted fake transport for tests. It
// implements transport.Driver against an in-memory table of expected
// queries, with hooks for injecting connect failures and per-query
// error sequences so retry behavior can be exercised without a server.
// All methods are thread-safe.
package fakedb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/mariaflow/mariaflow/go/sqltypes"
	"github.com/mariaflow/mariaflow/go/transport"
)

// StubResult holds the scripted outcome for a matched query.
type StubResult struct {
	Columns      []sqltypes.ColumnType
	Rows         [][]driver.Value
	AffectedRows int64
	LastInsertID int64

	// BeforeFunc is called synchronously before the result is returned.
	BeforeFunc func()

	// OnRow is called before row n (zero-based) is served from a cursor.
	// Streaming tests use it to observe delivery pacing.
	OnRow func(n int)
}

// DB is the scripted fake database.
type DB struct {
	t testing.TB

	mu sync.Mutex

	// data maps tolower(query) to a result.
	data map[string]*StubResult

	// rejected maps tolower(query) to a permanent error.
	rejected map[string]error

	// errQueue maps tolower(query) to errors consumed one per call
	// before data is consulted. Used to script transient failures that
	// heal after N attempts.
	errQueue map[string][]error

	// connectErrs are consumed one per Open call.
	connectErrs []error

	queryCalled map[string]int
	querylog    []string

	opened  int
	closed  int
	pings   int
	pingErr error
}

// New creates a fake database for one test.
func New(t testing.TB) *DB {
	return &DB{
		t:           t,
		data:        make(map[string]*StubResult),
		rejected:    make(map[string]error),
		errQueue:    make(map[string][]error),
		queryCalled: make(map[string]int),
	}
}

// AddQuery scripts a result for a query. Matching is case-insensitive
// on the full statement text.
func (db *DB) AddQuery(query string, result *StubResult) *StubResult {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(query)
	db.data[key] = result
	db.queryCalled[key] = 0
	return result
}

// AddRejectedQuery scripts a permanent error for a query.
func (db *DB) AddRejectedQuery(query string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rejected[strings.ToLower(query)] = err
}

// AddErrorsBeforeSuccess scripts errors returned one per call before
// the query's AddQuery result applies. This is how tests stage "fails
// twice, then succeeds".
func (db *DB) AddErrorsBeforeSuccess(query string, errs ...error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := strings.ToLower(query)
	db.errQueue[key] = append(db.errQueue[key], errs...)
}

// AddConnectErrors scripts errors returned one per Open call before
// connections succeed again.
func (db *DB) AddConnectErrors(errs ...error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.connectErrs = append(db.connectErrs, errs...)
}

// SetPingError makes every Ping fail with err until reset with nil.
func (db *DB) SetPingError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pingErr = err
}

// QueryCalledNum returns how many times the query was executed.
func (db *DB) QueryCalledNum(query string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queryCalled[strings.ToLower(query)]
}

// QueryLog returns every executed statement, in order.
func (db *DB) QueryLog() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, len(db.querylog))
	copy(out, db.querylog)
	return out
}

// OpenedConns returns how many sessions have been opened.
func (db *DB) OpenedConns() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.opened
}

// ClosedConns returns how many sessions have been closed.
func (db *DB) ClosedConns() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// PingCount returns how many pings have been served.
func (db *DB) PingCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pings
}

// Addr implements transport.Driver.
func (db *DB) Addr() string { return "fakedb" }

// Open implements transport.Driver.
func (db *DB) Open(ctx context.Context) (transport.Conn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.connectErrs) > 0 {
		// A nil entry means "succeed this time"; it keeps scripted
		// failures positional.
		err := db.connectErrs[0]
		db.connectErrs = db.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	db.opened++
	return &fakeConn{db: db}, nil
}

// handle records the call and resolves the scripted outcome.
func (db *DB) handle(query string) (*StubResult, error) {
	key := strings.ToLower(query)

	db.mu.Lock()
	db.queryCalled[key]++
	db.querylog = append(db.querylog, key)

	if queue := db.errQueue[key]; len(queue) > 0 {
		// A nil entry means "succeed this time"; it keeps scripted
		// failures positional within a batch.
		err := queue[0]
		db.errQueue[key] = queue[1:]
		if err != nil {
			db.mu.Unlock()
			return nil, err
		}
	}
	if err, ok := db.rejected[key]; ok {
		db.mu.Unlock()
		return nil, err
	}
	result, ok := db.data[key]
	db.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("fakedb: query %q is not scripted", query)
	}
	if result.BeforeFunc != nil {
		result.BeforeFunc()
	}
	return result, nil
}

type fakeConn struct {
	db     *DB
	closed bool
}

func (c *fakeConn) Execute(ctx context.Context, query string, args []driver.Value) (transport.Result, error) {
	if err := ctx.Err(); err != nil {
		return transport.Result{}, err
	}
	result, err := c.db.handle(query)
	if err != nil {
		return transport.Result{}, err
	}
	return transport.Result{
		AffectedRows: result.AffectedRows,
		LastInsertID: result.LastInsertID,
	}, nil
}

func (c *fakeConn) ExecuteMany(ctx context.Context, query string, paramSets [][]driver.Value) (transport.Result, int, error) {
	var total transport.Result
	for i := range paramSets {
		if err := ctx.Err(); err != nil {
			return transport.Result{}, i, err
		}
		result, err := c.db.handle(query)
		if err != nil {
			return transport.Result{}, i, err
		}
		total.AffectedRows += result.AffectedRows
		total.LastInsertID = result.LastInsertID
	}
	return total, len(paramSets), nil
}

func (c *fakeConn) OpenCursor(ctx context.Context, query string, args []driver.Value) (transport.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := c.db.handle(query)
	if err != nil {
		return nil, err
	}
	return &fakeRows{result: result}, nil
}

func (c *fakeConn) Ping(ctx context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.pings++
	return c.db.pingErr
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.closed++
	return nil
}

type fakeRows struct {
	result *StubResult
	index  int
	closed bool
}

func (r *fakeRows) Columns() []sqltypes.ColumnType {
	return r.result.Columns
}

func (r *fakeRows) Next(ctx context.Context) ([]driver.Value, error) {
	if r.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.index >= len(r.result.Rows) {
		return nil, io.EOF
	}
	if r.result.OnRow != nil {
		r.result.OnRow(r.index)
	}
	row := r.result.Rows[r.index]
	r.index++
	out := make([]driver.Value, len(row))
	copy(out, row)
	return out, nil
}

func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}
