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

// Package mysqldriver adapts raw go-sql-driver/mysql sessions to the
// transport boundary. It deliberately bypasses database/sql: the pool
// owns connection lifecycle, so sessions are opened straight from the
// driver's Connector.
package mysqldriver

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/mariaflow/mariaflow/go/config"
	"github.com/mariaflow/mariaflow/go/sqlerror"
	"github.com/mariaflow/mariaflow/go/transport"
)

// Driver opens MariaDB/MySQL sessions for the connection pool.
type Driver struct {
	connector driver.Connector
	addr      string
}

// New builds a Driver from the client configuration.
func New(cfg *config.Config) (*Driver, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout

	// Times come back parsed, in the default UTC location of NewConfig.
	// The codec relies on this: no ambient-zone inference anywhere.
	mc.ParseTime = true

	mc.Params = map[string]string{}
	for k, v := range cfg.Params {
		mc.Params[k] = v
	}
	if !cfg.Autocommit {
		mc.Params["autocommit"] = "0"
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysqldriver: invalid configuration: %w", err)
	}
	return &Driver{connector: connector, addr: mc.Addr}, nil
}

// Addr returns the host:port endpoint this driver connects to.
func (d *Driver) Addr() string { return d.addr }

// Open establishes one session. Failures are wrapped as
// *sqlerror.ConnectionError with the target address.
func (d *Driver) Open(ctx context.Context) (transport.Conn, error) {
	raw, err := d.connector.Connect(ctx)
	if err != nil {
		return nil, &sqlerror.ConnectionError{Addr: d.addr, Err: err}
	}
	return &conn{raw: raw}, nil
}

// conn wraps one raw driver session.
type conn struct {
	raw driver.Conn
}

func (c *conn) Execute(ctx context.Context, query string, args []driver.Value) (transport.Result, error) {
	if len(args) == 0 {
		execer, ok := c.raw.(driver.ExecerContext)
		if !ok {
			return transport.Result{}, fmt.Errorf("mysqldriver: driver does not support ExecerContext")
		}
		res, err := execer.ExecContext(ctx, query, nil)
		if err != nil {
			return transport.Result{}, err
		}
		return driverResult(res)
	}

	stmt, err := c.prepare(ctx, query, len(args))
	if err != nil {
		return transport.Result{}, err
	}
	defer stmt.Close()

	res, err := stmt.(driver.StmtExecContext).ExecContext(ctx, namedValues(args))
	if err != nil {
		return transport.Result{}, err
	}
	return driverResult(res)
}

func (c *conn) ExecuteMany(ctx context.Context, query string, paramSets [][]driver.Value) (transport.Result, int, error) {
	if len(paramSets) == 0 {
		return transport.Result{}, 0, nil
	}

	// One prepared statement, executed per parameter set on this single
	// session. The wire protocol has no true multi-row execute, so a
	// mid-batch server error leaves earlier sets applied (or committed,
	// under autocommit); the attempted count reports exactly how far the
	// submission got.
	stmt, err := c.prepare(ctx, query, len(paramSets[0]))
	if err != nil {
		return transport.Result{}, 0, err
	}
	defer stmt.Close()

	execer := stmt.(driver.StmtExecContext)
	var total transport.Result
	for i, set := range paramSets {
		res, err := execer.ExecContext(ctx, namedValues(set))
		if err != nil {
			return total, i, err
		}
		r, err := driverResult(res)
		if err != nil {
			return total, i, err
		}
		total.AffectedRows += r.AffectedRows
		total.LastInsertID = r.LastInsertID
	}
	return total, len(paramSets), nil
}

func (c *conn) OpenCursor(ctx context.Context, query string, args []driver.Value) (transport.Rows, error) {
	if len(args) == 0 {
		queryer, ok := c.raw.(driver.QueryerContext)
		if !ok {
			return nil, fmt.Errorf("mysqldriver: driver does not support QueryerContext")
		}
		dr, err := queryer.QueryContext(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return newRows(dr, nil), nil
	}

	stmt, err := c.prepare(ctx, query, len(args))
	if err != nil {
		return nil, err
	}
	dr, err := stmt.(driver.StmtQueryContext).QueryContext(ctx, namedValues(args))
	if err != nil {
		stmt.Close()
		return nil, err
	}
	// The statement is closed together with the cursor.
	return newRows(dr, stmt), nil
}

func (c *conn) Ping(ctx context.Context) error {
	pinger, ok := c.raw.(driver.Pinger)
	if !ok {
		return nil
	}
	return pinger.Ping(ctx)
}

func (c *conn) Close() error {
	return c.raw.Close()
}

// prepare readies a statement and verifies the parameter count against
// the server-reported placeholder count. A mismatch is a binding error,
// reported before anything is executed.
func (c *conn) prepare(ctx context.Context, query string, argCount int) (driver.Stmt, error) {
	preparer, ok := c.raw.(driver.ConnPrepareContext)
	if !ok {
		return nil, fmt.Errorf("mysqldriver: driver does not support ConnPrepareContext")
	}
	stmt, err := preparer.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if want := stmt.NumInput(); want >= 0 && want != argCount {
		stmt.Close()
		return nil, fmt.Errorf("statement expects %d parameters, got %d", want, argCount)
	}
	return stmt, nil
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

func driverResult(res driver.Result) (transport.Result, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return transport.Result{}, err
	}
	// LastInsertId never fails in the mysql driver; ignore the error the
	// interface allows.
	lastID, _ := res.LastInsertId()
	return transport.Result{AffectedRows: affected, LastInsertID: lastID}, nil
}
