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

// Package pool provides the thread pool: a supervisor that scales a list of
// reusable workers toward a target capacity, dispatches work from an
// installed task manager, and orchestrates graceful shutdown.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/syncutil"

	"github.com/taskengine/taskengine/condition"
	"github.com/taskengine/taskengine/manager"
	"github.com/taskengine/taskengine/metrics"
	"github.com/taskengine/taskengine/worker"
)

// ThreadPool executes the tasks supplied by its task manager on a bounded
// set of workers.
//
// The supervisor goroutine has exclusive mutation rights over the worker
// list; every other goroutine publishes requests through atomics (capacity)
// or the supervisor condition (wakeups), so the list itself needs no lock.
//
// Destroying the pool drains the pending work of the installed manager
// before the workers are torn down. Work put after Destroy is accepted by
// the manager but never served.
type ThreadPool struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	metricHandle metrics.MetricHandle

	/////////////////////////
	// Mutable state
	/////////////////////////

	// False once Destroy has begun.
	valid atomic.Bool

	// The supervisor's condition. Exited by Destroy only after the
	// supervisor has been joined; shutdown is signaled via valid so the
	// supervisor can keep dispatching while work drains.
	cond *condition.Condition

	// INVARIANT: capacity >= 1
	capacity atomic.Int64

	// INVARIANT: 0 <= idle <= total
	total atomic.Int64
	idle  atomic.Int64

	// Owned by the supervisor goroutine exclusively.
	workers []*worker.Worker

	// Joined by Destroy.
	wg sync.WaitGroup

	// Guards mgr.
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	mgr manager.TaskManager
}

// New returns a running pool executing the tasks of mgr on up to capacity
// workers. capacity below one is treated as one. mgr may be nil and
// installed later; metricHandle may be nil for no instrumentation.
func New(capacity int64, mgr manager.TaskManager, metricHandle metrics.MetricHandle) *ThreadPool {
	if capacity < 1 {
		capacity = 1
	}
	if metricHandle == nil {
		metricHandle = metrics.NewNoopMetrics()
	}

	p := &ThreadPool{
		metricHandle: metricHandle,
		cond:         condition.New(),
		mgr:          mgr,
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)
	p.valid.Store(true)
	p.capacity.Store(capacity)

	if mgr != nil {
		mgr.Configure(p.announced)
	}

	p.wg.Add(1)
	go p.supervise()
	return p
}

////////////////////////////////////////////////////////////////////////
// Public interface
////////////////////////////////////////////////////////////////////////

// Capacity returns the target worker count.
func (p *ThreadPool) Capacity() int64 {
	return p.capacity.Load()
}

// SetCapacity changes the target worker count, waking the supervisor when
// the value actually changes. Zero or negative is treated as one.
func (p *ThreadPool) SetCapacity(capacity int64) {
	if capacity < 1 {
		capacity = 1
	}

	if p.capacity.Swap(capacity) != capacity {
		p.cond.NotifyOne(condition.Relaxed)
	}
}

// TotalSize returns the current worker count.
func (p *ThreadPool) TotalSize() int64 {
	return p.total.Load()
}

// IdleSize returns the number of workers waiting for work.
func (p *ThreadPool) IdleSize() int64 {
	return p.idle.Load()
}

// PendingSize returns the number of tasks waiting in the installed manager.
func (p *ThreadPool) PendingSize() int64 {
	mgr := p.taskManager()
	if mgr == nil {
		return 0
	}
	return int64(mgr.Size())
}

// TaskManager returns the installed manager, if any.
func (p *ThreadPool) TaskManager() manager.TaskManager {
	return p.taskManager()
}

// SetTaskManager replaces the installed manager. The outgoing manager's
// announce callback is cleared before its reference is dropped; the incoming
// manager is announced immediately if it already has work.
func (p *ThreadPool) SetTaskManager(mgr manager.TaskManager) {
	p.mu.Lock()
	old := p.mgr
	p.mgr = mgr
	p.mu.Unlock()

	if old != nil && old != mgr {
		old.Configure(nil)
	}
	if mgr != nil {
		mgr.Configure(p.announced)
		if !mgr.Empty() {
			p.cond.NotifyOne(condition.Relaxed)
		}
	}
}

// Execute routes one task to the installed manager. It fails when no
// manager is installed, the manager does not accept bare tasks, or the
// manager rejects the push.
func (p *ThreadPool) Execute(task manager.Task) bool {
	putter, ok := p.taskManager().(manager.Putter)
	if !ok || !putter.Put(task) {
		p.metricHandle.TasksRejectedCount(context.Background(), 1)
		return false
	}
	return true
}

// ExecuteAll routes a batch of tasks to the installed manager under the
// same contract as Execute.
func (p *ThreadPool) ExecuteAll(tasks []manager.Task) bool {
	putter, ok := p.taskManager().(manager.Putter)
	if !ok || !putter.PutAll(tasks) {
		p.metricHandle.TasksRejectedCount(context.Background(), int64(len(tasks)))
		return false
	}
	return true
}

// Proxy returns a restricted view of the pool safe to hand to task and
// handler code.
func (p *ThreadPool) Proxy() *Proxy {
	return &Proxy{pool: p}
}

// Destroy shuts the pool down: pending work is drained, then every worker
// is destroyed and the supervisor exits. Blocks until complete. A second
// Destroy is a no-op returning false.
//
// Must not be called from a task running on this pool.
func (p *ThreadPool) Destroy() bool {
	if !p.valid.CompareAndSwap(true, false) {
		return false
	}

	p.cond.NotifyAll(condition.Strict)
	p.wg.Wait()

	if mgr := p.taskManager(); mgr != nil {
		mgr.Configure(nil)
	}
	p.cond.Exit()
	return true
}

////////////////////////////////////////////////////////////////////////
// Supervisor
////////////////////////////////////////////////////////////////////////

func (p *ThreadPool) supervise() {
	defer p.wg.Done()

	for {
		p.cond.When(p.wakeNeeded)
		if p.finished() {
			break
		}

		surplus := p.adjust()
		p.dispatch(surplus)
	}

	for _, w := range p.workers {
		w.Destroy()
	}
	p.workers = nil
	p.idle.Store(0)
	p.total.Store(0)
}

// wakeNeeded decides whether the supervisor has anything to do. While the
// pool is valid it wakes to dispatch pending work or to scale toward
// capacity; while shutting down it wakes to drain pending work or to
// observe quiescence.
func (p *ThreadPool) wakeNeeded() bool {
	pending := !p.managerEmpty()
	idle := p.idle.Load()
	total := p.total.Load()

	if p.valid.Load() {
		capacity := p.capacity.Load()
		return (pending && (idle > 0 || total < capacity)) ||
			(idle > 0 && total > capacity)
	}
	return (pending && idle > 0) || idle >= total
}

// finished reports whether the supervisor may exit: shutdown has begun, no
// work remains, and every worker has gone idle.
func (p *ThreadPool) finished() bool {
	return !p.valid.Load() &&
		p.managerEmpty() &&
		p.idle.Load() == p.total.Load()
}

// adjust grows the worker list toward capacity, returning how many workers
// are surplus to it. Growth also happens during shutdown, so that pending
// work can drain even if no worker existed when Destroy began.
func (p *ThreadPool) adjust() int64 {
	capacity := p.capacity.Load()
	total := p.total.Load()

	if total < capacity {
		for ; total < capacity; total++ {
			w := worker.New()
			w.Create()
			w.ConfigureFetch(p.fetch, p.reply)

			p.workers = append(p.workers, w)
			p.total.Add(1)
			p.idle.Add(1)
		}
		return 0
	}

	if total > capacity {
		return total - capacity
	}
	return 0
}

// dispatch walks the worker list, waking idle workers that can pull work
// and erasing up to surplus idle workers that cannot.
func (p *ThreadPool) dispatch(surplus int64) {
	kept := p.workers[:0]
	for _, w := range p.workers {
		if w.Idle() {
			if w.Notify() {
				p.idle.Add(-1)
			} else if surplus > 0 {
				w.Destroy()
				p.idle.Add(-1)
				p.total.Add(-1)
				surplus--
				continue
			}
		}
		kept = append(kept, w)
	}

	// Let erased slots be collected.
	for i := len(kept); i < len(p.workers); i++ {
		p.workers[i] = nil
	}
	p.workers = kept
}

////////////////////////////////////////////////////////////////////////
// Installed callbacks
////////////////////////////////////////////////////////////////////////

// announced is installed into the manager and fires on its empty-to-
// non-empty transitions.
func (p *ThreadPool) announced(uint64) {
	p.cond.NotifyOne(condition.Relaxed)
}

// fetch serves a worker's self-pull from the installed manager. Fetched
// tasks are wrapped so that panics are counted before the worker's own
// recovery logs them.
func (p *ThreadPool) fetch(task *worker.Task) bool {
	mgr := p.taskManager()
	if mgr == nil {
		return false
	}

	var t manager.Task
	if !mgr.Take(&t) || t == nil {
		return false
	}

	*task = func() {
		defer func() {
			if r := recover(); r != nil {
				p.metricHandle.TaskPanicsCount(context.Background(), 1)
				panic(r)
			}
		}()
		t()
	}
	return true
}

// reply is invoked by each worker after each task. The 0→1 idle transition
// and the all-idle transition are the ones the supervisor must observe.
func (p *ThreadPool) reply(_ uint64, idle bool) {
	p.metricHandle.TasksCompletedCount(context.Background(), 1)

	if !idle {
		return
	}

	prior := p.idle.Add(1) - 1
	if prior == 0 || p.idle.Load() >= p.total.Load() {
		p.cond.NotifyOne(condition.Relaxed)
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (p *ThreadPool) taskManager() manager.TaskManager {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mgr
}

func (p *ThreadPool) managerEmpty() bool {
	mgr := p.taskManager()
	return mgr == nil || mgr.Empty()
}

func (p *ThreadPool) checkInvariants() {
	idle := p.idle.Load()
	total := p.total.Load()
	if idle < 0 || idle > total {
		panic(fmt.Sprintf("idle count %d out of range [0, %d]", idle, total))
	}

	if p.capacity.Load() < 1 {
		panic(fmt.Sprintf("capacity %d below one", p.capacity.Load()))
	}
}
