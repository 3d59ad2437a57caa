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

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimer records requested delays and fires immediately.
type fakeTimer struct {
	delays []time.Duration
}

func (f *fakeTimer) After(d time.Duration) <-chan time.Time {
	f.delays = append(f.delays, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newTestBackoff(baseDelay, maxDelay time.Duration) (*Backoff, *fakeTimer) {
	b := New(baseDelay, maxDelay)
	b.strategy.(*fullJitter).disableJitter = true
	ft := &fakeTimer{}
	b.timer = ft
	return b, ft
}

func TestNewValidation(t *testing.T) {
	assert.Panics(t, func() { New(0, time.Second) })
	assert.Panics(t, func() { New(-time.Second, time.Second) })
	assert.Panics(t, func() { New(time.Second, time.Millisecond) })
	assert.NotPanics(t, func() { New(time.Millisecond, time.Millisecond) })
}

func TestFirstAttemptIsImmediate(t *testing.T) {
	b := New(time.Hour, time.Hour) // would hang if it waited
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, b.StartAttempt(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, b.Attempt())
}

func TestDelaysGrowExponentiallyAndCap(t *testing.T) {
	b, ft := newTestBackoff(100*time.Millisecond, 2*time.Second)
	ctx := context.Background()

	for range 8 {
		require.NoError(t, b.StartAttempt(ctx))
	}

	// Attempt 1 waits nothing; attempts 2..8 wait base*2^n capped at max.
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		2 * time.Second,
		2 * time.Second,
	}, ft.delays)
}

func TestJitterStaysWithinEnvelope(t *testing.T) {
	f := newFullJitter(100*time.Millisecond, 2*time.Second)
	for i := range 20 {
		d := f.nextDelay()
		assert.GreaterOrEqual(t, d, time.Duration(0), "attempt %d", i)
		assert.LessOrEqual(t, d, 2*time.Second, "attempt %d", i)
	}
}

func TestCancelledContextStopsTheWait(t *testing.T) {
	b := New(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.StartAttempt(ctx)) // first attempt, no wait

	cancel()
	err := b.StartAttempt(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelledDuringWait(t *testing.T) {
	b := New(time.Hour, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, b.StartAttempt(ctx))

	start := time.Now()
	err := b.StartAttempt(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "did not wait the full backoff")
}

func TestReset(t *testing.T) {
	b, ft := newTestBackoff(100*time.Millisecond, 2*time.Second)
	ctx := context.Background()

	for range 4 {
		require.NoError(t, b.StartAttempt(ctx))
	}
	b.Reset()
	require.NoError(t, b.StartAttempt(ctx))

	last := ft.delays[len(ft.delays)-1]
	assert.Equal(t, 100*time.Millisecond, last, "schedule rewound to base delay")
	assert.Equal(t, 5, b.Attempt(), "attempt counter unaffected by Reset")
}

func TestDelayDoesNotOverflowAtHighAttempts(t *testing.T) {
	f := newFullJitter(time.Second, 30*time.Second)
	f.disableJitter = true
	for range 200 {
		d := f.nextDelay()
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}
