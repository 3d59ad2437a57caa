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

package pool

import (
	"sync/atomic"
	"time"
)

// Pooled wraps one pooled connection together with its health flag.
// Exactly one caller owns a Pooled between Get and Recycle.
type Pooled[C Connection] struct {
	conn C
	pool *Pool[C]

	// tainted marks the connection broken. A tainted connection is
	// discarded on Recycle instead of returning to the idle set.
	tainted atomic.Bool

	// recycled guards against double release while the connection is
	// checked out. Reset each time the pool hands the connection out.
	recycled atomic.Bool

	timeCreated time.Time
	timeUsed    time.Time
}

func newPooled[C Connection](p *Pool[C], conn C) *Pooled[C] {
	now := time.Now()
	return &Pooled[C]{
		conn:        conn,
		pool:        p,
		timeCreated: now,
		timeUsed:    now,
	}
}

// Conn returns the underlying transport session.
func (pc *Pooled[C]) Conn() C { return pc.conn }

// Taint marks the connection broken. The pool will discard it on
// Recycle and schedule a replacement if that drops the pool below its
// minimum size. Use it when the session's protocol state is no longer
// trustworthy: a transport error, or a statement cancelled mid-flight.
func (pc *Pooled[C]) Taint() {
	pc.tainted.Store(true)
}

// IsTainted reports whether the connection has been marked broken.
func (pc *Pooled[C]) IsTainted() bool {
	return pc.tainted.Load()
}

// Recycle returns the connection to the pool. It must be called exactly
// once per Get, on every exit path. Extra calls while the connection is
// not checked out are ignored.
func (pc *Pooled[C]) Recycle() {
	if pc.recycled.Swap(true) {
		return
	}
	pc.timeUsed = time.Now()
	pc.pool.put(pc)
}

// handout resets per-checkout state before the pool gives the
// connection to a caller.
func (pc *Pooled[C]) handout() {
	pc.recycled.Store(false)
}
