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

package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicRunnerRuns(t *testing.T) {
	r := NewPeriodicRunner(context.Background(), 10*time.Millisecond)

	var runs atomic.Int64
	require.True(t, r.Start(func(ctx context.Context) {
		runs.Add(1)
	}))
	defer r.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPeriodicRunnerStartTwice(t *testing.T) {
	r := NewPeriodicRunner(context.Background(), time.Hour)
	require.True(t, r.Start(func(ctx context.Context) {}))
	defer r.Stop()

	assert.False(t, r.Start(func(ctx context.Context) {}), "second Start is rejected")
	assert.True(t, r.Running())
}

func TestStopCancelsCallbackContext(t *testing.T) {
	r := NewPeriodicRunner(context.Background(), 5*time.Millisecond)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	r.Start(func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			select {
			case cancelled <- struct{}{}:
			default:
			}
		case <-time.After(5 * time.Second):
		}
	})

	<-started
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("callback context was not cancelled by Stop")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, r.Running())
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	r := NewPeriodicRunner(context.Background(), 5*time.Millisecond)

	var finished atomic.Bool
	entered := make(chan struct{})
	r.Start(func(ctx context.Context) {
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	<-entered
	r.Stop()
	assert.True(t, finished.Load(), "Stop returned before the callback finished")
}

func TestRunnerRestartsAfterStop(t *testing.T) {
	r := NewPeriodicRunner(context.Background(), 10*time.Millisecond)

	var runs atomic.Int64
	require.True(t, r.Start(func(ctx context.Context) { runs.Add(1) }))
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	before := runs.Load()
	require.True(t, r.Start(func(ctx context.Context) { runs.Add(1) }))
	defer r.Stop()
	require.Eventually(t, func() bool { return runs.Load() > before }, 2*time.Second, 5*time.Millisecond)
}
