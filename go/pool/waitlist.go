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

// waiter represents one caller queued for a connection. The channel is
// buffered so a handoff never blocks the releasing goroutine.
type waiter[C Connection] struct {
	ch chan *Pooled[C]
}

// waitlist is a FIFO queue of waiters. It is guarded by the pool mutex:
// every mutation happens with the pool lock held, which is what makes
// the "register waiter vs. return connection" race impossible.
type waitlist[C Connection] struct {
	waiters []*waiter[C]
}

func (wl *waitlist[C]) pushBack(w *waiter[C]) {
	wl.waiters = append(wl.waiters, w)
}

// popFront removes and returns the oldest waiter, or nil if none.
func (wl *waitlist[C]) popFront() *waiter[C] {
	if len(wl.waiters) == 0 {
		return nil
	}
	w := wl.waiters[0]
	wl.waiters[0] = nil
	wl.waiters = wl.waiters[1:]
	return w
}

// remove takes w out of the queue. It returns false if w is no longer
// queued, which means a releaser has already popped it and a connection
// is in flight on its channel; the caller must then receive it.
func (wl *waitlist[C]) remove(w *waiter[C]) bool {
	for i, queued := range wl.waiters {
		if queued == w {
			wl.waiters = append(wl.waiters[:i], wl.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (wl *waitlist[C]) len() int {
	return len(wl.waiters)
}
