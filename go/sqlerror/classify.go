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

package sqlerror

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"
)

// Server error numbers that are expected to resolve on retry. The
// statement is replayed from scratch (acquire through execute), so the
// retried unit never reuses the connection that observed the failure.
var transientServerErrors = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR: too many connections
	1053: true, // ER_SERVER_SHUTDOWN: server is shutting down
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	1213: true, // ER_LOCK_DEADLOCK
	1317: true, // ER_QUERY_INTERRUPTED
	2006: true, // CR_SERVER_GONE_ERROR (proxies report it as a server error)
	2013: true, // CR_SERVER_LOST
}

// IsTransient reports whether err represents a condition that is
// expected to resolve on retry: a network blip, a dropped connection,
// or a deadlock-class server error.
//
// Caller-initiated cancellation, codec failures, and server rejections
// of the statement itself are permanent and never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; retrying would ignore its decision.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Caller data-shape bugs and server rejections are permanent.
	var encErr *EncodingError
	if errors.As(err, &encErr) {
		return false
	}
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		// A query error may still wrap a deadlock-class server error.
		return isTransientCause(queryErr.Err)
	}

	return isTransientCause(err)
}

func isTransientCause(err error) bool {
	if err == nil {
		return false
	}

	// Connection-level failures are retryable by definition: the retry
	// replays the whole acquire+execute unit on a fresh connection.
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	// A connection torn down mid-protocol surfaces as EOF.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return transientServerErrors[myErr.Number]
	}

	return false
}
