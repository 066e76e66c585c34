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

// Package worker provides a reusable execution thread with an explicit
// lifecycle. A worker may be destroyed and re-created in place, and runs one
// task per notification, pulling follow-up tasks through an installed fetch
// callback.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/taskengine/taskengine/condition"
	"github.com/taskengine/taskengine/internal/logger"
)

// Task is a unit of work. It takes no parameters and returns nothing;
// failures surface as panics, which the worker recovers and logs.
type Task = func()

// Fetch pulls the next task into its argument, returning false when no work
// is available. Installed once per configuration; must be safe to call from
// the worker's own goroutine.
type Fetch = func(task *Task) bool

// Reply is invoked after each executed task with the worker's id and whether
// the worker is now idle.
type Reply = func(id uint64, idle bool)

// State is the lifecycle state of a worker.
type State int32

const (
	// Empty: no goroutine exists. The only state in which Create is legal.
	Empty State = iota

	// Initial: goroutine started, nothing configured yet.
	Initial

	// Runnable: a task is buffered and the worker is about to run it.
	Runnable

	// Running: the worker is executing a task.
	Running

	// Blocked: the worker is waiting for a notification.
	Blocked
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Initial:
		return "Initial"
	case Runnable:
		return "Runnable"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// nextWorkerID hands out process-unique worker ids.
var nextWorkerID atomic.Uint64

// Worker is a reusable execution thread.
//
// Lifecycle: Empty → Initial (Create) → Runnable/Blocked (Configure*) →
// Running (dispatch) → Blocked → ... → Empty (Destroy). Exactly one state
// holds at a time.
//
// External synchronization: all lifecycle methods may be called from any
// goroutine; they are serialized on an internal mutex. The worker never
// holds references to its pool; the fetch and reply callbacks are captured
// copies whose lifetimes must exceed the worker's.
type Worker struct {
	/////////////////////////
	// Mutable state
	/////////////////////////

	// Serializes Create, Configure*, Notify, and Destroy. Never taken by
	// the worker goroutine itself.
	mu sync.Mutex

	// INVARIANT: transitions only under mu, except Running/Runnable/
	// Blocked flips made by the worker goroutine within its loop.
	state atomic.Int32

	// GUARDED_BY(mu)
	id uint64

	cond *condition.Condition

	// Joined by Destroy.
	wg sync.WaitGroup

	// Guards the task slot and the installed callbacks, which the worker
	// goroutine reads.
	taskMu sync.Mutex

	// GUARDED_BY(taskMu)
	task Task

	// GUARDED_BY(taskMu)
	fetch Fetch

	// GUARDED_BY(taskMu)
	reply Reply
}

// New returns a worker in the Empty state.
func New() *Worker {
	return &Worker{
		cond: condition.New(),
	}
}

////////////////////////////////////////////////////////////////////////
// Public interface
////////////////////////////////////////////////////////////////////////

// ID returns the worker's id. Undefined while Empty.
func (w *Worker) ID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Idle returns true iff the worker can accept a configuration, i.e. it is
// Initial or Blocked.
func (w *Worker) Idle() bool {
	return idleState(w.State())
}

// Create starts the worker goroutine: Empty → Initial. Returns false in any
// other state.
func (w *Worker) Create() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if State(w.state.Load()) != Empty {
		return false
	}

	w.id = nextWorkerID.Add(1)
	w.cond.Reset()
	w.state.Store(int32(Initial))

	w.wg.Add(1)
	go w.run()
	return true
}

// ConfigureFetch installs a pull pipeline: Initial|Blocked → Blocked. The
// worker will serve tasks produced by fetch once notified. Returns false if
// the worker is not idle or fetch is nil.
func (w *Worker) ConfigureFetch(fetch Fetch, reply Reply) bool {
	if fetch == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !idleState(State(w.state.Load())) {
		return false
	}

	w.taskMu.Lock()
	w.fetch = fetch
	w.reply = reply
	w.taskMu.Unlock()

	w.state.Store(int32(Blocked))
	return true
}

// ConfigureTask buffers a one-shot task: Initial|Blocked → Runnable. Returns
// false if the worker is not idle or task is nil.
func (w *Worker) ConfigureTask(task Task, reply Reply) bool {
	if task == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !idleState(State(w.state.Load())) {
		return false
	}

	w.taskMu.Lock()
	w.task = task
	w.reply = reply
	w.taskMu.Unlock()

	w.state.Store(int32(Runnable))
	return true
}

// Notify wakes the worker to run. A Blocked worker first self-pulls a task
// through its fetch pipeline; only if that yields work does the worker
// become Runnable. Returns true iff the resulting state is Runnable.
func (w *Worker) Notify() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if State(w.state.Load()) == Blocked && w.pullTask() {
		w.state.Store(int32(Runnable))
	}

	ok := State(w.state.Load()) == Runnable
	if ok {
		w.cond.NotifyOne(condition.Relaxed)
	}
	return ok
}

// Destroy stops the worker: any non-Empty state → Empty. The condition is
// exited, the goroutine joined, and the callbacks cleared, so no further
// callbacks fire from this worker. Returns false while Empty.
func (w *Worker) Destroy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if State(w.state.Load()) == Empty {
		return false
	}

	w.cond.Exit()
	w.wg.Wait()

	w.taskMu.Lock()
	w.task = nil
	w.fetch = nil
	w.reply = nil
	w.taskMu.Unlock()

	w.state.Store(int32(Empty))
	return true
}

////////////////////////////////////////////////////////////////////////
// Worker loop
////////////////////////////////////////////////////////////////////////

func (w *Worker) run() {
	defer w.wg.Done()

	w.cond.When(w.taskBuffered)
	for w.cond.Valid() || w.taskBuffered() {
		w.state.Store(int32(Running))

		task := w.takeTask()
		execute(w.id, task)

		// Self-pull the next task. Success keeps the worker hot;
		// failure parks it until the next Notify.
		idle := !w.pullTask()
		if idle {
			w.state.Store(int32(Blocked))
		} else {
			w.state.Store(int32(Runnable))
		}

		if reply := w.getReply(); reply != nil {
			reply(w.id, idle)
		}

		w.cond.When(w.taskBuffered)
	}
}

// execute runs a task, containing any panic it raises.
func execute(id uint64, task Task) {
	if task == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("worker %d: task panicked: %v", id, r)
		}
	}()
	task()
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func idleState(s State) bool {
	return s == Initial || s == Blocked
}

// taskBuffered reports whether the task slot is populated.
func (w *Worker) taskBuffered() bool {
	w.taskMu.Lock()
	defer w.taskMu.Unlock()
	return w.task != nil
}

// takeTask empties the task slot, returning its previous content. The slot
// is always cleared before the reply callback runs.
func (w *Worker) takeTask() Task {
	w.taskMu.Lock()
	defer w.taskMu.Unlock()

	task := w.task
	w.task = nil
	return task
}

// pullTask fills the task slot through the fetch pipeline if it is empty,
// reporting whether the slot is populated afterward.
func (w *Worker) pullTask() bool {
	w.taskMu.Lock()
	defer w.taskMu.Unlock()

	if w.task != nil {
		return true
	}
	if w.fetch == nil {
		return false
	}

	var task Task
	if w.fetch(&task) && task != nil {
		w.task = task
		return true
	}
	return false
}

func (w *Worker) getReply() Reply {
	w.taskMu.Lock()
	defer w.taskMu.Unlock()
	return w.reply
}
