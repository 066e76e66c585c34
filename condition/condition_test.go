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

package condition_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"

	"github.com/taskengine/taskengine/condition"
)

func TestCondition(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type ConditionTest struct {
	c *condition.Condition
}

func init() { RegisterTestSuite(&ConditionTest{}) }

func (t *ConditionTest) SetUp(ti *TestInfo) {
	t.c = condition.New()
}

// awaitDone fails the test when ch does not close within a generous bound.
func awaitDone(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

func (t *ConditionTest) NewConditionIsValid() {
	ExpectTrue(t.c.Valid())
}

func (t *ConditionTest) NotifyOneWakesASingleWaiter() {
	var woken atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.c.Wait()
			woken.Add(1)
		}()
	}

	// Wait until both goroutines block, then wake one.
	time.Sleep(10 * time.Millisecond)
	t.c.NotifyOne(condition.Strict)

	deadline := time.Now().Add(time.Second)
	for woken.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ExpectEq(1, woken.Load())

	// Release the remaining waiter.
	t.c.Exit()
	wg.Wait()
	ExpectEq(2, woken.Load())
}

func (t *ConditionTest) NotifyAllWakesEveryWaiter() {
	const waiters = 4
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.c.Wait()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	t.c.NotifyAll(condition.Strict)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	ExpectTrue(awaitDone(done))
}

func (t *ConditionTest) WhenReturnsOncePredicateHolds() {
	var flag atomic.Bool
	done := make(chan struct{})

	go func() {
		t.c.When(flag.Load)
		close(done)
	}()

	// The predicate is false; a notification alone must not release the
	// waiter.
	t.c.NotifyAll(condition.Strict)
	select {
	case <-done:
		AddFailure("When returned with a false predicate")
	case <-time.After(10 * time.Millisecond):
	}

	flag.Store(true)
	t.c.NotifyAll(condition.Strict)
	ExpectTrue(awaitDone(done))
}

func (t *ConditionTest) WhenWithTruePredicateDoesNotBlock() {
	done := make(chan struct{})
	go func() {
		t.c.When(func() bool { return true })
		close(done)
	}()
	ExpectTrue(awaitDone(done))
}

func (t *ConditionTest) ExitUnblocksPresentWaiters() {
	done := make(chan struct{})
	go func() {
		t.c.When(func() bool { return false })
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	t.c.Exit()

	ExpectTrue(awaitDone(done))
	ExpectFalse(t.c.Valid())
}

func (t *ConditionTest) ExitUnblocksFutureWaiters() {
	t.c.Exit()

	done := make(chan struct{})
	go func() {
		t.c.Wait()
		t.c.When(func() bool { return false })
		close(done)
	}()
	ExpectTrue(awaitDone(done))
}

func (t *ConditionTest) ExitIsIdempotent() {
	t.c.Exit()
	t.c.Exit()
	ExpectFalse(t.c.Valid())
}

func (t *ConditionTest) ResetReArmsAnExitedCondition() {
	t.c.Exit()
	AssertFalse(t.c.Valid())

	t.c.Reset()
	ExpectTrue(t.c.Valid())

	// A waiter must block again until notified.
	var flag atomic.Bool
	done := make(chan struct{})
	go func() {
		t.c.When(flag.Load)
		close(done)
	}()

	select {
	case <-done:
		AddFailure("When returned on a re-armed condition with a false predicate")
	case <-time.After(10 * time.Millisecond):
	}

	flag.Store(true)
	t.c.NotifyOne(condition.Strict)
	ExpectTrue(awaitDone(done))
}

func (t *ConditionTest) ResetOnAValidConditionIsANoOp() {
	t.c.Reset()
	ExpectTrue(t.c.Valid())
}

func (t *ConditionTest) NotifyOneIfEvaluatesThePredicateUnderTheMutex() {
	var woken atomic.Int32
	done := make(chan struct{})
	go func() {
		t.c.Wait()
		woken.Add(1)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)

	// A false predicate must not wake anyone.
	t.c.NotifyOneIf(func() bool { return false })
	time.Sleep(10 * time.Millisecond)
	ExpectEq(0, woken.Load())

	t.c.NotifyOneIf(func() bool { return true })
	ExpectTrue(awaitDone(done))
	ExpectEq(1, woken.Load())
}

func (t *ConditionTest) NotifyAfterExitDoesNotPanic() {
	t.c.Exit()
	t.c.NotifyOne(condition.Strict)
	t.c.NotifyAll(condition.Relaxed)
	t.c.NotifyN(3, condition.Strict)
}

func (t *ConditionTest) RelaxedNotifyWakesWaiters() {
	done := make(chan struct{})
	go func() {
		t.c.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	t.c.NotifyOne(condition.Relaxed)
	ExpectTrue(awaitDone(done))
}
