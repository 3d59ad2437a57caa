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

// Package timer provides PeriodicRunner, a background callback runner
// with clean start/stop lifecycle.
package timer

import (
	"context"
	"sync"
	"time"
)

// PeriodicRunner runs a callback at a fixed interval. The next run is
// scheduled only after the current one returns, so a slow callback
// never piles up behind itself. Stop cancels the callback's context and
// waits for any in-flight run to finish.
type PeriodicRunner struct {
	parentCtx context.Context
	interval  time.Duration

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	wg       sync.WaitGroup
	callback func(ctx context.Context)
}

// NewPeriodicRunner creates a runner. The parent context is the root of
// the per-run contexts; pass a long-lived context, not a request one.
func NewPeriodicRunner(ctx context.Context, interval time.Duration) *PeriodicRunner {
	return &PeriodicRunner{
		parentCtx: ctx,
		interval:  interval,
	}
}

// Start begins periodic execution. Returns false if already running.
// The first run happens one interval after Start.
func (r *PeriodicRunner) Start(callback func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}
	r.running = true
	r.callback = callback
	r.ctx, r.cancel = context.WithCancel(r.parentCtx)
	r.timer = time.AfterFunc(r.interval, r.execute)
	return true
}

// Stop halts scheduling, cancels the run context, and waits for any
// in-flight callback. Idempotent; the runner can be started again.
func (r *PeriodicRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.ctx = nil
	r.cancel = nil
	r.callback = nil
	r.mu.Unlock()

	r.wg.Wait()
}

// Running reports whether the runner is active.
func (r *PeriodicRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *PeriodicRunner) execute() {
	r.mu.Lock()
	if !r.running || r.ctx == nil {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	defer r.wg.Done()

	callback := r.callback
	ctx := r.ctx

	// Run without the lock so Stop is never blocked by a callback.
	r.mu.Unlock()
	callback(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.timer = time.AfterFunc(r.interval, r.execute)
	}
}
