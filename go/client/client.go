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

// Package client is the user-facing surface of mariaflow. A Client owns
// a connection pool and an executor; every query method borrows a
// connection, runs under the retry policy, and returns decoded Go
// values.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/mariaflow/mariaflow/go/config"
	"github.com/mariaflow/mariaflow/go/executor"
	"github.com/mariaflow/mariaflow/go/pool"
	"github.com/mariaflow/mariaflow/go/sqltypes"
	"github.com/mariaflow/mariaflow/go/transport"
	"github.com/mariaflow/mariaflow/go/transport/mysqldriver"
)

// Option customizes a Client beyond what the config file carries.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	meter    metric.Meter
	poolName string
}

// WithLogger sets the logger used by the pool and executor. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeter enables the OTel connection-count metric on the pool.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithPoolName sets the pool name used in logs and metric attributes.
// Defaults to the configured database name.
func WithPoolName(name string) Option {
	return func(o *options) { o.poolName = name }
}

// Client is an asynchronous-style database client: a bounded connection
// pool with queued acquisition, automatic retry of transient failures,
// and a value codec between Go types and wire values. All methods are
// safe for concurrent use.
type Client struct {
	cfg    *config.Config
	driver transport.Driver
	pool   *pool.Pool[transport.Conn]
	exec   *executor.Executor
	logger *slog.Logger
}

// New connects to the server described by cfg and pre-warms the pool to
// its minimum size. It fails if the server is unreachable, so a
// successfully constructed Client is known to be able to talk to the
// database.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	drv, err := mysqldriver.New(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDriver(ctx, cfg, drv, opts...)
}

// NewWithDriver is New with the transport supplied by the caller. Tests
// use it to run the full client against a fake transport.
func NewWithDriver(ctx context.Context, cfg *config.Config, drv transport.Driver, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.poolName == "" {
		o.poolName = cfg.Database
	}

	var connCount pool.ConnectionCount
	if o.meter != nil {
		var err error
		connCount, err = pool.NewConnectionCount(o.meter)
		if err != nil {
			return nil, fmt.Errorf("creating connection metric: %w", err)
		}
	}

	p := pool.New[transport.Conn](&pool.Config{
		Name:                    o.poolName,
		MinSize:                 cfg.PoolMinSize,
		MaxSize:                 cfg.PoolMaxSize,
		IdleHealthCheckInterval: cfg.IdleHealthCheckInterval,
		Logger:                  o.logger,
		ConnCount:               connCount,
	})
	if err := p.Open(ctx, func(ctx context.Context) (transport.Conn, error) {
		return drv.Open(ctx)
	}); err != nil {
		return nil, err
	}

	exec := executor.New(p, &executor.Config{
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Logger:         o.logger,
	})

	c := &Client{
		cfg:    cfg,
		driver: drv,
		pool:   p,
		exec:   exec,
		logger: o.logger,
	}
	c.logger.Info("client connected",
		"addr", drv.Addr(),
		"database", cfg.Database,
		"pool_min", cfg.PoolMinSize,
		"pool_max", cfg.PoolMaxSize,
	)
	return c, nil
}

// Execute runs one statement and returns the affected-row count.
func (c *Client) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	return c.exec.Execute(ctx, query, args...)
}

// ExecuteMany runs one statement definition against an ordered sequence
// of parameter sets on a single connection and returns the total
// affected-row count.
func (c *Client) ExecuteMany(ctx context.Context, query string, paramSets [][]any) (int64, error) {
	return c.exec.ExecuteMany(ctx, query, paramSets)
}

// FetchAll runs a query and materializes every decoded row.
func (c *Client) FetchAll(ctx context.Context, query string, args ...any) ([]*sqltypes.Row, error) {
	return c.exec.FetchAll(ctx, query, args...)
}

// FetchOne returns the first row of the result set, or nil if the
// result set is empty.
func (c *Client) FetchOne(ctx context.Context, query string, args ...any) (*sqltypes.Row, error) {
	return c.exec.FetchOne(ctx, query, args...)
}

// FetchStream opens a streaming cursor over the result set. The cursor
// pins a pool connection until it is exhausted or closed.
func (c *Client) FetchStream(ctx context.Context, query string, args ...any) (*executor.Cursor, error) {
	return c.exec.Stream(ctx, query, args...)
}

// Begin starts an explicit transaction on a reserved connection.
func (c *Client) Begin(ctx context.Context) (*executor.Tx, error) {
	return c.exec.Begin(ctx)
}

// Ping checks out a connection and verifies the server responds. A dead
// connection is discarded rather than returned to the pool.
func (c *Client) Ping(ctx context.Context) error {
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer pc.Recycle()

	if err := pc.Conn().Ping(ctx); err != nil {
		pc.Taint()
		return err
	}
	return nil
}

// Stats returns a point-in-time snapshot of the pool.
func (c *Client) Stats() (pool.Stats, error) {
	return c.pool.StatsSnapshot()
}

// SetPoolCapacity changes the pool's maximum size at runtime. Shrinking
// closes excess idle connections immediately; in-use connections are
// unaffected.
func (c *Client) SetPoolCapacity(newMax int) error {
	return c.pool.SetCapacity(newMax)
}

// Addr describes the configured server endpoint.
func (c *Client) Addr() string {
	return c.driver.Addr()
}

// WatchConfig watches the config file at path and applies the settings
// that can change at runtime; today that is the pool's maximum size.
// Connection identity (host, user, database) cannot change on a live
// client, so those fields are ignored on reload. The caller owns the
// returned watcher and must Close it before Close on the client.
func (c *Client) WatchConfig(path string) (*config.Watcher, error) {
	return config.Watch(path, c.logger, func(cfg *config.Config) {
		if cfg.PoolMaxSize == c.pool.MaxSize() {
			return
		}
		if err := c.pool.SetCapacity(cfg.PoolMaxSize); err != nil {
			c.logger.Warn("pool resize from config reload failed",
				"pool_max", cfg.PoolMaxSize,
				"error", err)
			return
		}
		c.logger.Info("pool resized from config reload", "pool_max", cfg.PoolMaxSize)
	})
}

// Close shuts the client down: new acquisitions fail immediately, idle
// connections are closed, and Close blocks until checked-out
// connections come back.
func (c *Client) Close() {
	c.pool.Close()
	c.logger.Info("client closed", "addr", c.driver.Addr())
}
