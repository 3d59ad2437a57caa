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

// Package executor issues statements against pool-acquired connections.
//
// Every operation runs the same unit: acquire a connection, encode the
// parameters, execute on the transport, decode the result, release the
// connection. The whole unit is wrapped by the retry policy, so a
// transient failure replays it from scratch on a fresh connection.
// Release is guaranteed on every exit path, including decode failures
// and cancellation.
package executor

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mariaflow/mariaflow/go/pool"
	"github.com/mariaflow/mariaflow/go/sqlerror"
	"github.com/mariaflow/mariaflow/go/sqltypes"
	"github.com/mariaflow/mariaflow/go/tools/retry"
	"github.com/mariaflow/mariaflow/go/transport"
)

// Config holds the retry policy and logging for an Executor.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// for transient failures. Zero disables retries.
	MaxRetries int

	// RetryBaseDelay and RetryMaxDelay parameterize the exponential
	// full-jitter backoff between attempts.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Logger for executor events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Executor runs statements against connections drawn from a pool.
type Executor struct {
	pool       *pool.Pool[transport.Conn]
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// New creates an Executor on top of an opened pool.
func New(p *pool.Pool[transport.Conn], cfg *Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Executor{
		pool:       p,
		maxRetries: cfg.MaxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

// Execute runs one statement and returns the affected-row count.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if err := validateQuery(query); err != nil {
		return 0, err
	}
	wireArgs, err := sqltypes.EncodeAll(args)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = e.withRetry(ctx, func(ctx context.Context) error {
		pc, err := e.pool.Get(ctx)
		if err != nil {
			return err
		}
		defer pc.Recycle()

		res, err := pc.Conn().Execute(ctx, query, wireArgs)
		if err != nil {
			taintOnFailure(ctx, pc, err)
			return err
		}
		affected = res.AffectedRows
		return nil
	})
	if err != nil {
		return 0, wrapStatementError(query, err)
	}
	return affected, nil
}

// ExecuteMany runs one statement definition against an ordered sequence
// of parameter sets on a single connection and returns the total
// affected-row count. A failure aborts the batch and surfaces as a
// *sqlerror.BulkError carrying how many sets had been submitted;
// whether the server kept the earlier sets is transport-dependent and
// is deliberately not hidden.
func (e *Executor) ExecuteMany(ctx context.Context, query string, paramSets [][]any) (int64, error) {
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

	var total int64
	err = e.withRetry(ctx, func(ctx context.Context) error {
		pc, err := e.pool.Get(ctx)
		if err != nil {
			return &sqlerror.BulkError{Query: query, Err: err}
		}
		defer pc.Recycle()

		res, attempted, err := pc.Conn().ExecuteMany(ctx, query, sets)
		if err != nil {
			taintOnFailure(ctx, pc, err)
			return &sqlerror.BulkError{Query: query, Attempted: attempted, Err: err}
		}
		total = res.AffectedRows
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// FetchAll runs a query and materializes every decoded row. For result
// sets that may not fit in memory, use Stream instead.
func (e *Executor) FetchAll(ctx context.Context, query string, args ...any) ([]*sqltypes.Row, error) {
	cur, err := e.Stream(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var out []*sqltypes.Row
	for row, err := range cur.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// FetchOne returns the first row of the result set, or nil if the
// result set is empty.
func (e *Executor) FetchOne(ctx context.Context, query string, args ...any) (*sqltypes.Row, error) {
	cur, err := e.Stream(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	row, err := cur.Next(ctx)
	if errors.Is(err, ErrNoMoreRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// withRetry replays op on transient failures, with exponential
// full-jitter backoff between attempts. Permanent failures surface
// immediately; an exhausted budget surfaces the last transient error
// wrapped with the attempt count.
func (e *Executor) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	b := retry.New(e.baseDelay, e.maxDelay)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		if err := b.StartAttempt(ctx); err != nil {
			// Cancelled while backing off. Prefer reporting what we were
			// retrying over a bare context error.
			if lastErr != nil {
				return &sqlerror.RetryExhaustedError{Attempts: attempt - 1, Err: lastErr}
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation succeeded after retries",
					"attempts", attempt,
					"failed_attempts", attempt-1)
			}
			return nil
		}
		if !sqlerror.IsTransient(err) {
			return err
		}

		lastErr = err
		e.logger.Warn("transient failure, will retry",
			"attempt", attempt,
			"max_retries", e.maxRetries,
			"error", err)
	}

	if e.maxRetries == 0 {
		// Nothing was retried; surface the failure undecorated so the
		// caller can tell it apart from an exhausted retry budget.
		return lastErr
	}
	return &sqlerror.RetryExhaustedError{Attempts: e.maxRetries + 1, Err: lastErr}
}

// taintOnFailure marks the connection broken when its protocol state
// can no longer be trusted: transport-level failures, or a statement
// cancelled mid-flight. A clean server-side rejection leaves the
// connection healthy.
func taintOnFailure(ctx context.Context, pc *pool.Pooled[transport.Conn], err error) {
	if ctx.Err() != nil || sqlerror.IsTransient(err) {
		pc.Taint()
	}
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return sqlerror.NewQueryError(query, errors.New("empty query"))
	}
	return nil
}

func encodeParamSets(paramSets [][]any) ([][]driver.Value, error) {
	width := len(paramSets[0])
	out := make([][]driver.Value, len(paramSets))
	for i, set := range paramSets {
		if len(set) != width {
			return nil, &sqlerror.EncodingError{
				Context: fmt.Sprintf("parameter set %d", i),
				Err:     fmt.Errorf("has %d values, first set has %d", len(set), width),
			}
		}
		encodedSet, err := sqltypes.EncodeAll(set)
		if err != nil {
			return nil, fmt.Errorf("parameter set %d: %w", i, err)
		}
		out[i] = encodedSet
	}
	return out, nil
}

// wrapStatementError attaches statement identity to server rejections.
// Errors that already carry their own context pass through untouched.
func wrapStatementError(query string, err error) error {
	var (
		queryErr     *sqlerror.QueryError
		connErr      *sqlerror.ConnectionError
		encErr       *sqlerror.EncodingError
		bulkErr      *sqlerror.BulkError
		exhaustedErr *sqlerror.RetryExhaustedError
	)
	switch {
	case errors.As(err, &queryErr),
		errors.As(err, &connErr),
		errors.As(err, &encErr),
		errors.As(err, &bulkErr),
		errors.As(err, &exhaustedErr):
		return err
	case errors.Is(err, sqlerror.ErrPoolClosed),
		errors.Is(err, sqlerror.ErrPoolNotInitialized),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return sqlerror.NewQueryError(query, err)
	}
}
