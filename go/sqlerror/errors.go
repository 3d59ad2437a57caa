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

// Package sqlerror defines the closed error taxonomy for the client:
// connection failures, server-side query rejections, bulk failures,
// codec failures, and pool lifecycle errors. It also classifies errors
// as transient (retry-eligible) or permanent.
package sqlerror

import (
	"errors"
	"fmt"
)

// Pool lifecycle sentinels. These indicate API misuse rather than
// server or network conditions and are never retried.
var (
	// ErrPoolClosed is returned by Get after the pool has been closed.
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrPoolNotInitialized is returned when the pool is used before Open.
	ErrPoolNotInitialized = errors.New("connection pool is not initialized")

	// ErrStreamClosed is returned when pulling rows from a closed cursor.
	ErrStreamClosed = errors.New("stream cursor is closed")
)

// maxQueryInError bounds how much SQL text is embedded in error messages.
const maxQueryInError = 512

// truncateQuery shortens long SQL text for error messages while keeping
// enough of it to identify the statement.
func truncateQuery(query string) string {
	if len(query) <= maxQueryInError {
		return query
	}
	return query[:maxQueryInError] + "... [truncated]"
}

// ConnectionError indicates the pool could not establish or maintain a
// connection to the server. It is fatal to the operation in progress but
// not to the pool itself: later acquisitions may succeed once the server
// recovers.
type ConnectionError struct {
	// Addr is the server address the connection attempt targeted.
	Addr string

	// Err is the underlying transport error.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError indicates the server rejected a statement (syntax error,
// constraint violation, type mismatch) or the parameter count did not
// match the placeholders. Query errors are never retried.
type QueryError struct {
	// Query is the (possibly truncated) SQL text of the failed statement.
	Query string

	// Err is the underlying server or binding error.
	Err error
}

// NewQueryError wraps a server rejection with the identity of the statement.
func NewQueryError(query string, err error) *QueryError {
	return &QueryError{Query: truncateQuery(query), Err: err}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v (query: %s)", e.Err, e.Query)
}

func (e *QueryError) Unwrap() error { return e.Err }

// EncodingError indicates the value codec could not convert between an
// application value and its wire representation. This is a caller
// data-shape bug, not a transient condition, and is never retried.
type EncodingError struct {
	// Context identifies what was being converted: a Go type on the
	// encode path, or a column name on the decode path.
	Context string

	// Err is the underlying conversion error.
	Err error
}

func (e *EncodingError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("encoding failed: %v", e.Err)
	}
	return fmt.Sprintf("encoding failed for %s: %v", e.Context, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// BulkError indicates a batch execution failed. It records how many
// parameter sets had been submitted to the server when the failure
// occurred, since partial server-side application is possible and must
// not be hidden from the caller.
type BulkError struct {
	// Query is the (possibly truncated) SQL text of the batch statement.
	Query string

	// Attempted is the number of parameter sets submitted before the
	// failure. Whether the server applied them is transport-dependent.
	Attempted int

	// Err is the underlying failure.
	Err error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("bulk operation failed after %d parameter sets: %v (query: %s)",
		e.Attempted, e.Err, e.Query)
}

func (e *BulkError) Unwrap() error { return e.Err }

// RetryExhaustedError wraps the last observed transient error after the
// retry budget is spent. Permanent failures are never wrapped in this
// type: they surface directly on the first attempt.
type RetryExhaustedError struct {
	// Attempts is the total number of attempts made, including the first.
	Attempts int

	// Err is the last transient error observed.
	Err error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }
