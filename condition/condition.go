// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package condition provides a monitor-style suspend/notify primitive with a
// terminal "exited" state that unblocks all present and future waiters.
package condition

import (
	"sync"
	"sync/atomic"
)

// Strategy controls how a notifier interacts with the internal mutex while
// waking waiters.
type Strategy int

const (
	// Strict holds the mutex across the wake call. Use when the waiter's
	// predicate inspects state the notifier just mutated; this prevents a
	// wakeup from slipping in between the state change and the wait.
	Strict Strategy = iota

	// Relaxed releases the mutex before waking. Lower contention; legal
	// when the waiter's predicate does not depend on state guarded here.
	Relaxed
)

// Condition couples a mutex, a condition variable, and a validity flag.
//
// Once Exit has been called the condition is permanently invalid: every
// pending Wait returns immediately and every future Wait is a no-op, until
// Reset re-arms it. Producers can observe the flag via Valid without taking
// the mutex.
type Condition struct {
	/////////////////////////
	// Mutable state
	/////////////////////////

	mu   sync.Mutex
	cond *sync.Cond

	// Mirrors the validity bit guarded by mu, so that Valid is lock-free.
	//
	// INVARIANT: validity changes only while holding mu.
	valid atomic.Bool
}

// New returns a valid Condition.
func New() *Condition {
	c := &Condition{}
	c.cond = sync.NewCond(&c.mu)
	c.valid.Store(true)
	return c
}

////////////////////////////////////////////////////////////////////////
// Public interface
////////////////////////////////////////////////////////////////////////

// Valid returns false iff Exit has been called without a subsequent Reset.
func (c *Condition) Valid() bool {
	return c.valid.Load()
}

// Wait suspends the caller until any notification arrives. While the
// condition is invalid, Wait returns immediately.
//
// Callers that depend on observed state should prefer When; a bare Wait is
// subject to wakeups stolen by other waiters.
func (c *Condition) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid.Load() {
		return
	}
	c.cond.Wait()
}

// When suspends the caller until pred() is true or the condition has been
// exited, whichever comes first. pred is always evaluated while holding the
// internal mutex.
func (c *Condition) When(pred func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.valid.Load() && !pred() {
		c.cond.Wait()
	}
}

// NotifyOne wakes at most one waiter using the given strategy.
func (c *Condition) NotifyOne(s Strategy) {
	c.notify(s, func() { c.cond.Signal() })
}

// NotifyAll wakes every waiter using the given strategy.
func (c *Condition) NotifyAll(s Strategy) {
	c.notify(s, func() { c.cond.Broadcast() })
}

// NotifyN wakes at most n waiters using the given strategy.
func (c *Condition) NotifyN(n int, s Strategy) {
	c.notify(s, func() {
		for i := 0; i < n; i++ {
			c.cond.Signal()
		}
	})
}

// NotifyOneIf wakes at most one waiter if pred() holds. pred is evaluated
// while holding the internal mutex, and the wake call is made under the same
// critical section.
func (c *Condition) NotifyOneIf(pred func() bool) {
	c.notifyIf(pred, func() { c.cond.Signal() })
}

// NotifyAllIf wakes every waiter if pred() holds, under the same contract as
// NotifyOneIf.
func (c *Condition) NotifyAllIf(pred func() bool) {
	c.notifyIf(pred, func() { c.cond.Broadcast() })
}

// NotifyNIf wakes at most n waiters if pred() holds, under the same contract
// as NotifyOneIf.
func (c *Condition) NotifyNIf(n int, pred func() bool) {
	c.notifyIf(pred, func() {
		for i := 0; i < n; i++ {
			c.cond.Signal()
		}
	})
}

// Exit invalidates the condition and wakes every waiter. Idempotent.
func (c *Condition) Exit() {
	c.mu.Lock()
	if !c.valid.Load() {
		c.mu.Unlock()
		return
	}

	c.valid.Store(false)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Reset re-arms an exited condition so it can be waited on again. Calling
// Reset on a valid condition is a no-op.
//
// The caller must guarantee no waiter is blocked from a previous arming.
func (c *Condition) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid.Store(true)
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (c *Condition) notify(s Strategy, wake func()) {
	switch s {
	case Strict:
		c.mu.Lock()
		wake()
		c.mu.Unlock()

	case Relaxed:
		// sync.Cond allows signaling without holding the associated
		// mutex; acquire and release first so a concurrent waiter has
		// finished registering.
		c.mu.Lock()
		//lint:ignore SA2001 empty critical section orders us after waiters
		c.mu.Unlock()
		wake()
	}
}

func (c *Condition) notifyIf(pred func() bool, wake func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid.Load() && pred() {
		wake()
	}
}
