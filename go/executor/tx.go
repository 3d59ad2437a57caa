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

	"github.com/mariaflow/mariaflow/go/pool"
	"github.com/mariaflow/mariaflow/go/sqlerror"
	"github.com/mariaflow/mariaflow/go/sqltypes"
	"github.com/mariaflow/mariaflow/go/transport"
)

// ErrTxDone is returned by operations on a transaction that has already
// been committed or rolled back.
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// Tx is an explicit transaction pinned to one connection. Statements
// inside the transaction are never retried: replaying part of a
// transaction on a fresh connection would silently drop the earlier
// statements. A Tx is not safe for concurrent use.
type Tx struct {
	pc   *pool.Pooled[transport.Conn]
	exec *Executor
	done bool
}

// Begin reserves a connection and starts a transaction on it. The
// BEGIN itself is covered by the retry policy, since no transactional
// state exists yet.
func (e *Executor) Begin(ctx context.Context) (*Tx, error) {
	var tx *Tx
	err := e.withRetry(ctx, func(ctx context.Context) error {
		pc, err := e.pool.Get(ctx)
		if err != nil {
			return err
		}
		if _, err := pc.Conn().Execute(ctx, "BEGIN", nil); err != nil {
			taintOnFailure(ctx, pc, err)
			pc.Recycle()
			return err
		}
		tx = &Tx{pc: pc, exec: e}
		return nil
	})
	if err != nil {
		return nil, wrapStatementError("BEGIN", err)
	}
	return tx, nil
}

// Execute runs one statement inside the transaction and returns the
// affected-row count.
func (t *Tx) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	if err := validateQuery(query); err != nil {
		return 0, err
	}
	wireArgs, err := sqltypes.EncodeAll(args)
	if err != nil {
		return 0, err
	}

	res, err := t.pc.Conn().Execute(ctx, query, wireArgs)
	if err != nil {
		taintOnFailure(ctx, t.pc, err)
		return 0, wrapStatementError(query, err)
	}
	return res.AffectedRows, nil
}

// ExecuteMany runs one statement definition against an ordered sequence
// of parameter sets inside the transaction.
func (t *Tx) ExecuteMany(ctx context.Context, query string, paramSets [][]any) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	if err := validateQuery(query); err != nil {
		return 0, err
	}
	if len(paramSets) == 0 {
		return 0, &sqlerror.BulkError{
			Query: query,
			Err:   errors.New("no parameter sets supplied"),
		}
	}
	sets, err := encodeParamSets(paramSets)
	if err != nil {
		return 0, err
	}

	res, attempted, err := t.pc.Conn().ExecuteMany(ctx, query, sets)
	if err != nil {
		taintOnFailure(ctx, t.pc, err)
		return 0, &sqlerror.BulkError{Query: query, Attempted: attempted, Err: err}
	}
	return res.AffectedRows, nil
}

// FetchAll runs a query inside the transaction and materializes every
// decoded row. The result set is read to completion before returning so
// the connection is immediately ready for the next statement.
func (t *Tx) FetchAll(ctx context.Context, query string, args ...any) ([]*sqltypes.Row, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	wireArgs, err := sqltypes.EncodeAll(args)
	if err != nil {
		return nil, err
	}

	rows, err := t.pc.Conn().OpenCursor(ctx, query, wireArgs)
	if err != nil {
		taintOnFailure(ctx, t.pc, err)
		return nil, wrapStatementError(query, err)
	}
	defer rows.Close()

	columns := rows.Columns()
	var out []*sqltypes.Row
	for {
		wire, err := rows.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			taintOnFailure(ctx, t.pc, err)
			return nil, err
		}
		row, err := sqltypes.DecodeRow(columns, wire)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}

// FetchOne returns the first row of the result set inside the
// transaction, or nil if the result set is empty.
func (t *Tx) FetchOne(ctx context.Context, query string, args ...any) (*sqltypes.Row, error) {
	rows, err := t.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Commit commits the transaction and releases its connection.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	_, err := t.pc.Conn().Execute(ctx, "COMMIT", nil)
	if err != nil {
		// A failed COMMIT leaves the session in an unknown transactional
		// state. Never reuse it.
		t.pc.Taint()
		t.pc.Recycle()
		return wrapStatementError("COMMIT", err)
	}
	t.pc.Recycle()
	return nil
}

// Rollback aborts the transaction and releases its connection. Calling
// Rollback after Commit is a no-op, which makes `defer tx.Rollback(ctx)`
// safe on every path.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	_, err := t.pc.Conn().Execute(ctx, "ROLLBACK", nil)
	if err != nil {
		t.pc.Taint()
		t.pc.Recycle()
		return wrapStatementError("ROLLBACK", err)
	}
	t.pc.Recycle()
	return nil
}
