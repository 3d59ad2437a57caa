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

// Package retry provides exponential backoff with full jitter for
// retry loops around transient failures.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Backoff manages the delay state of one retry loop.
//
// Example usage:
//
//	b := retry.New(100*time.Millisecond, 2*time.Second)
//	for {
//	    if err := b.StartAttempt(ctx); err != nil {
//	        return err // context cancelled during the wait
//	    }
//	    if err := doWork(); err == nil {
//	        return nil
//	    }
//	    // next iteration backs off before trying again
//	}
type Backoff struct {
	strategy strategy
	attempt  int
	timer    timer
}

// New creates a Backoff using exponential backoff with full jitter:
// each wait is drawn uniformly from [0, min(maxDelay, baseDelay*2^n)].
// Full jitter spreads synchronized retriers across time, per the AWS
// architecture-blog recommendation.
//
// Panics if baseDelay or maxDelay are invalid; that is a coding error.
func New(baseDelay, maxDelay time.Duration) *Backoff {
	if baseDelay <= 0 {
		panic("retry: baseDelay must be positive")
	}
	if maxDelay < baseDelay {
		panic("retry: maxDelay must be >= baseDelay")
	}
	return &Backoff{
		strategy: newFullJitter(baseDelay, maxDelay),
		timer:    realTimer{},
	}
}

// StartAttempt waits for the backoff delay before the next attempt.
// The first call returns immediately. Returns the context's error if it
// is cancelled before the wait completes.
func (b *Backoff) StartAttempt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.attempt > 0 {
		select {
		case <-b.timer.After(b.strategy.nextDelay()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.attempt++
	return nil
}

// Attempt returns the number of attempts started so far.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset rewinds the delay schedule to the base delay. The attempt
// counter is not reset.
func (b *Backoff) Reset() { b.strategy.reset() }

// strategy computes successive delays. Implementations must be safe for
// concurrent use of nextDelay and reset.
type strategy interface {
	nextDelay() time.Duration
	reset()
}

// fullJitter implements exponential backoff with full jitter:
// sleep = random_between(0, min(cap, base * 2^attempt)).
type fullJitter struct {
	baseDelay     time.Duration
	maxDelay      time.Duration
	rng           *rand.Rand
	disableJitter bool // deterministic delays for tests

	mu      sync.Mutex
	attempt int
}

func newFullJitter(baseDelay, maxDelay time.Duration) *fullJitter {
	return &fullJitter{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		rng: rand.New(rand.NewPCG(
			uint64(time.Now().UnixNano()),
			uint64(time.Now().UnixNano()>>32),
		)),
	}
}

func (f *fullJitter) nextDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	// baseDelay * 2^attempt, saturating instead of overflowing.
	attempt := min(f.attempt, 62)
	delay := f.maxDelay
	if multiplier := int64(1) << attempt; int64(f.baseDelay) <= math.MaxInt64/multiplier {
		delay = min(time.Duration(int64(f.baseDelay)*multiplier), f.maxDelay)
	}

	// rng is not thread-safe; called under mu.
	if !f.disableJitter {
		delay = time.Duration(float64(delay) * f.rng.Float64())
	}

	f.attempt++
	return delay
}

func (f *fullJitter) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempt = 0
}

// timer abstracts time.After so tests can run without real sleeps.
type timer interface {
	After(d time.Duration) <-chan time.Time
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }
