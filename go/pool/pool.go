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

// Package pool implements a bounded pool of live database connections.
//
// The pool owns between MinSize and MaxSize connections. Get hands one
// out, blocking in a FIFO wait queue when the pool is at capacity;
// Recycle returns it. A connection marked broken (Taint) is discarded on
// return and replaced asynchronously whenever the pool falls below its
// minimum size. Every mutation of the idle/in-use sets is a single
// transition under one mutex.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mariaflow/mariaflow/go/sqlerror"
	"github.com/mariaflow/mariaflow/go/tools/retry"
	"github.com/mariaflow/mariaflow/go/tools/timer"
)

// Connection is the contract a pooled session must satisfy.
type Connection interface {
	Ping(ctx context.Context) error
	Close() error
}

// Connector opens one new session.
type Connector[C Connection] func(ctx context.Context) (C, error)

// Config holds pool settings.
type Config struct {
	// Name identifies the pool in logs and metrics.
	Name string

	// MinSize is the number of connections opened eagerly by Open and
	// restored after discards. Must be >= 1.
	MinSize int

	// MaxSize bounds the total number of live connections. Must be
	// >= MinSize.
	MaxSize int

	// IdleHealthCheckInterval is how often idle connections are pinged
	// and dead ones discarded. Zero disables the background check.
	IdleHealthCheckInterval time.Duration

	// Logger for pool events. Defaults to slog.Default().
	Logger *slog.Logger

	// ConnCount is the optional connection-count metric instrument.
	ConnCount ConnectionCount
}

// Stats is a point-in-time, lock-consistent snapshot of the pool.
type Stats struct {
	// Size is the number of live connections, idle plus in use.
	Size int

	// MaxSize is the configured connection cap.
	MaxSize int

	// InUse is the number of connections currently checked out.
	InUse int

	// Available is Size minus InUse.
	Available int

	// GetCount is the total number of Get calls.
	GetCount int64

	// WaitCount is the number of Get calls that had to queue.
	WaitCount int64

	// WaitTime is the cumulative time Get calls spent queued.
	WaitTime time.Duration

	// DiscardedCount is the number of broken connections discarded.
	DiscardedCount int64
}

// replenish gives up after this many failed reconnect attempts; demand
// from later Gets will open connections once the server recovers.
const maxReplenishAttempts = 3

// Pool is a bounded set of reusable connections.
type Pool[C Connection] struct {
	name      string
	minSize   int
	logger    *slog.Logger
	connCount ConnectionCount

	connect Connector[C]
	checker *timer.PeriodicRunner

	// mu guards every field below. The idle/in-use sets only ever
	// change as one atomic transition under this lock.
	mu           sync.Mutex
	maxSize      int
	idle         []*Pooled[C]
	open         int // live connections plus in-flight opens
	inUse        int
	opened       bool
	closed       bool
	replenishing bool
	waiters      waitlist[C]
	released     *sync.Cond // signalled when an in-use connection comes back

	closeCh chan struct{}

	getCount       atomic.Int64
	waitCount      atomic.Int64
	waitTime       atomic.Int64 // nanoseconds
	discardedCount atomic.Int64
}

// New creates an unopened pool. No connection can be acquired before
// Open succeeds.
func New[C Connection](cfg *Config) *Pool[C] {
	if cfg.MinSize < 1 {
		panic("pool: MinSize must be >= 1")
	}
	if cfg.MaxSize < cfg.MinSize {
		panic("pool: MaxSize must be >= MinSize")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool[C]{
		name:      cfg.Name,
		minSize:   cfg.MinSize,
		maxSize:   cfg.MaxSize,
		logger:    logger.With("pool", cfg.Name),
		connCount: cfg.ConnCount,
		closeCh:   make(chan struct{}),
	}
	p.released = sync.NewCond(&p.mu)

	if cfg.IdleHealthCheckInterval > 0 {
		p.checker = timer.NewPeriodicRunner(context.Background(), cfg.IdleHealthCheckInterval)
	}
	return p
}

// Open pre-warms the pool to MinSize connections using connect. If any
// of them cannot be opened, everything opened so far is closed again and
// the pool stays uninitialized.
func (p *Pool[C]) Open(ctx context.Context, connect Connector[C]) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return sqlerror.ErrPoolClosed
	}
	if p.opened {
		p.mu.Unlock()
		return fmt.Errorf("pool %s: already open", p.name)
	}
	p.mu.Unlock()

	warmed := make([]*Pooled[C], 0, p.minSize)
	for i := 0; i < p.minSize; i++ {
		conn, err := connect(ctx)
		if err != nil {
			for _, pc := range warmed {
				pc.conn.Close()
			}
			return fmt.Errorf("pool %s: opening connection %d of %d: %w",
				p.name, i+1, p.minSize, err)
		}
		warmed = append(warmed, newPooled(p, conn))
	}

	p.mu.Lock()
	p.connect = connect
	p.idle = warmed
	p.open = len(warmed)
	p.opened = true
	p.mu.Unlock()

	p.connCount.Add(ctx, int64(len(warmed)), p.name, ConnStateIdle)

	if p.checker != nil {
		p.checker.Start(p.checkIdle)
	}

	p.logger.Info("connection pool opened",
		"min_size", p.minSize,
		"max_size", p.maxSize)
	return nil
}

// Get hands out a connection: an idle one if available, a freshly
// opened one while the pool is under capacity, otherwise it joins a
// FIFO queue until another caller releases. Cancelling ctx while queued
// removes the waiter without side effects.
func (p *Pool[C]) Get(ctx context.Context) (*Pooled[C], error) {
	p.mu.Lock()
	if !p.opened {
		p.mu.Unlock()
		return nil, sqlerror.ErrPoolNotInitialized
	}
	if p.closed {
		p.mu.Unlock()
		return nil, sqlerror.ErrPoolClosed
	}
	p.getCount.Add(1)

	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.mu.Unlock()

		p.connCount.Add(ctx, -1, p.name, ConnStateIdle)
		p.connCount.Add(ctx, 1, p.name, ConnStateUsed)
		pc.handout()
		return pc, nil
	}

	if p.open < p.maxSize {
		// Reserve a slot so concurrent Gets cannot overshoot MaxSize
		// while this connection is being opened.
		p.open++
		p.mu.Unlock()
		return p.openNew(ctx)
	}

	// At capacity: queue until a connection is released.
	w := &waiter[C]{ch: make(chan *Pooled[C], 1)}
	p.waiters.pushBack(w)
	p.mu.Unlock()

	p.waitCount.Add(1)
	start := time.Now()

	select {
	case pc := <-w.ch:
		p.waitTime.Add(int64(time.Since(start)))
		pc.handout()
		return pc, nil

	case <-ctx.Done():
		p.mu.Lock()
		removed := p.waiters.remove(w)
		p.mu.Unlock()
		if removed {
			p.waitTime.Add(int64(time.Since(start)))
			return nil, context.Cause(ctx)
		}
		// A releaser already popped this waiter; the connection is in
		// flight on the channel and must be accepted.
		pc := <-w.ch
		p.waitTime.Add(int64(time.Since(start)))
		pc.handout()
		return pc, nil

	case <-p.closeCh:
		p.mu.Lock()
		removed := p.waiters.remove(w)
		p.mu.Unlock()
		if removed {
			return nil, sqlerror.ErrPoolClosed
		}
		pc := <-w.ch
		pc.handout()
		return pc, nil
	}
}

// openNew opens a connection for a caller that reserved a slot.
func (p *Pool[C]) openNew(ctx context.Context) (*Pooled[C], error) {
	conn, err := p.connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		return nil, err
	}

	pc := newPooled(p, conn)

	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		conn.Close()
		return nil, sqlerror.ErrPoolClosed
	}
	p.inUse++
	p.mu.Unlock()

	p.connCount.Add(ctx, 1, p.name, ConnStateUsed)
	pc.handout()
	return pc, nil
}

// put is called by Pooled.Recycle: the single place a checked-out
// connection comes back, on every exit path of every caller.
func (p *Pool[C]) put(pc *Pooled[C]) {
	ctx := context.Background()

	if pc.tainted.Load() {
		p.discard(pc)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.open--
		p.inUse--
		p.released.Broadcast()
		p.mu.Unlock()

		pc.conn.Close()
		p.connCount.Add(ctx, -1, p.name, ConnStateUsed)
		return
	}

	// Hand the connection straight to the oldest waiter, keeping it in
	// the in-use set: ownership moves, the counts do not.
	if w := p.waiters.popFront(); w != nil {
		p.mu.Unlock()
		w.ch <- pc
		return
	}

	p.inUse--
	p.idle = append(p.idle, pc)
	p.mu.Unlock()

	p.connCount.Add(ctx, -1, p.name, ConnStateUsed)
	p.connCount.Add(ctx, 1, p.name, ConnStateIdle)
}

// discard drops a broken connection and schedules a replacement if the
// pool fell below its minimum size.
func (p *Pool[C]) discard(pc *Pooled[C]) {
	p.mu.Lock()
	p.open--
	p.inUse--
	belowMin := p.opened && !p.closed && p.open < p.minSize && !p.replenishing
	if belowMin {
		p.replenishing = true
	}
	p.released.Broadcast()
	p.mu.Unlock()

	pc.conn.Close()
	p.discardedCount.Add(1)
	p.connCount.Add(context.Background(), -1, p.name, ConnStateUsed)
	p.logger.Debug("discarded broken connection")

	if belowMin {
		go p.replenish()
	}
}

// replenish restores the pool to MinSize after discards. It retries
// with backoff a few times and then gives up; later Gets will open
// connections on demand once the server is reachable again.
func (p *Pool[C]) replenish() {
	defer func() {
		p.mu.Lock()
		p.replenishing = false
		p.mu.Unlock()
	}()

	b := retry.New(100*time.Millisecond, 2*time.Second)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := b.StartAttempt(ctx)
		if err != nil {
			cancel()
			return
		}

		p.mu.Lock()
		if p.closed || p.open >= p.minSize {
			p.mu.Unlock()
			cancel()
			return
		}
		p.open++
		p.mu.Unlock()

		conn, err := p.connect(ctx)
		cancel()
		if err != nil {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()

			if b.Attempt() >= maxReplenishAttempts {
				p.logger.Warn("giving up on pool replenishment",
					"attempts", b.Attempt(),
					"error", err)
				return
			}
			continue
		}

		p.deliver(newPooled(p, conn))
	}
}

// deliver routes a newly opened connection to the oldest waiter, or to
// the idle set when nobody is queued.
func (p *Pool[C]) deliver(pc *Pooled[C]) {
	ctx := context.Background()

	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		pc.conn.Close()
		return
	}
	if w := p.waiters.popFront(); w != nil {
		p.inUse++
		p.mu.Unlock()
		p.connCount.Add(ctx, 1, p.name, ConnStateUsed)
		w.ch <- pc
		return
	}
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
	p.connCount.Add(ctx, 1, p.name, ConnStateIdle)
}

// Close drains the idle set immediately, waits for checked-out
// connections to be released, and closes everything. Subsequent Gets
// fail with ErrPoolClosed. Close is idempotent.
func (p *Pool[C]) Close() {
	if p.checker != nil {
		p.checker.Stop()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.closeCh)

	idle := p.idle
	p.idle = nil
	p.open -= len(idle)

	for p.inUse > 0 {
		p.released.Wait()
	}
	p.mu.Unlock()

	for _, pc := range idle {
		pc.conn.Close()
	}
	if len(idle) > 0 {
		p.connCount.Add(context.Background(), -int64(len(idle)), p.name, ConnStateIdle)
	}

	p.logger.Info("connection pool closed")
}

// StatsSnapshot returns a lock-consistent snapshot of the pool. It
// fails with ErrPoolNotInitialized before Open.
func (p *Pool[C]) StatsSnapshot() (Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return Stats{}, sqlerror.ErrPoolNotInitialized
	}
	return Stats{
		Size:           p.open,
		MaxSize:        p.maxSize,
		InUse:          p.inUse,
		Available:      p.open - p.inUse,
		GetCount:       p.getCount.Load(),
		WaitCount:      p.waitCount.Load(),
		WaitTime:       time.Duration(p.waitTime.Load()),
		DiscardedCount: p.discardedCount.Load(),
	}, nil
}

// SetCapacity adjusts MaxSize at runtime. Shrinking closes excess idle
// connections immediately; checked-out connections are unaffected and
// counted against the new cap when they return.
func (p *Pool[C]) SetCapacity(newMax int) error {
	if newMax < p.minSize {
		return fmt.Errorf("pool %s: capacity %d below minimum size %d", p.name, newMax, p.minSize)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return sqlerror.ErrPoolClosed
	}
	p.maxSize = newMax

	var excess []*Pooled[C]
	for p.open > newMax && len(p.idle) > 0 {
		n := len(p.idle)
		excess = append(excess, p.idle[n-1])
		p.idle = p.idle[:n-1]
		p.open--
	}
	p.mu.Unlock()

	for _, pc := range excess {
		pc.conn.Close()
	}
	if len(excess) > 0 {
		p.connCount.Add(context.Background(), -int64(len(excess)), p.name, ConnStateIdle)
		p.logger.Info("closed idle connections after capacity change",
			"closed", len(excess),
			"max_size", newMax)
	}
	return nil
}

// checkIdle pings the current idle connections and discards the dead
// ones. Runs periodically from the health-check runner.
func (p *Pool[C]) checkIdle(ctx context.Context) {
	p.mu.Lock()
	if p.closed || !p.opened {
		p.mu.Unlock()
		return
	}
	held := p.idle
	p.idle = nil
	p.mu.Unlock()

	var dead int
	for _, pc := range held {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pc.conn.Ping(pingCtx)
		cancel()

		if err != nil {
			p.mu.Lock()
			p.open--
			belowMin := !p.closed && p.open < p.minSize && !p.replenishing
			if belowMin {
				p.replenishing = true
			}
			p.mu.Unlock()

			pc.conn.Close()
			dead++
			p.discardedCount.Add(1)
			p.connCount.Add(ctx, -1, p.name, ConnStateIdle)

			if belowMin {
				go p.replenish()
			}
			continue
		}

		// Still healthy: give it back, preferring queued waiters.
		p.mu.Lock()
		if p.closed {
			p.open--
			p.mu.Unlock()
			pc.conn.Close()
			p.connCount.Add(ctx, -1, p.name, ConnStateIdle)
			continue
		}
		if w := p.waiters.popFront(); w != nil {
			p.inUse++
			p.mu.Unlock()
			p.connCount.Add(ctx, -1, p.name, ConnStateIdle)
			p.connCount.Add(ctx, 1, p.name, ConnStateUsed)
			w.ch <- pc
			continue
		}
		p.idle = append(p.idle, pc)
		p.mu.Unlock()
	}

	if dead > 0 {
		p.logger.Info("idle health check discarded dead connections", "discarded", dead)
	}
}

// Name returns the pool's configured name.
func (p *Pool[C]) Name() string { return p.name }

// MinSize returns the configured minimum size.
func (p *Pool[C]) MinSize() int { return p.minSize }

// MaxSize returns the current connection cap.
func (p *Pool[C]) MaxSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSize
}

// InUse returns the number of connections currently checked out.
func (p *Pool[C]) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Available returns the number of connections that could be handed out
// without waiting: idle connections plus unopened capacity.
func (p *Pool[C]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) + (p.maxSize - p.open)
}

// IsClosed reports whether Close has been called.
func (p *Pool[C]) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
