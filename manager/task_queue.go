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

package manager

import (
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/taskengine/taskengine/queue"
)

// timedTask pairs a task with its push timestamp.
type timedTask struct {
	task Task
	time time.Time
}

// TaskQueue is the FIFO TaskManager: tasks are served strictly in push
// order, timestamped at push time with the injected clock.
//
// Safe for concurrent use.
type TaskQueue struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	index uint64
	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	tasks *queue.DoubleQueue[timedTask]

	notifyMu sync.Mutex

	// GUARDED_BY(notifyMu)
	notify Notify
}

var _ TaskManager = &TaskQueue{}

// NewTaskQueue returns an empty queue with the given index and capacity.
// capacity <= 0 means unbounded.
func NewTaskQueue(index uint64, capacity int64, clock timeutil.Clock) *TaskQueue {
	return &TaskQueue{
		index: index,
		clock: clock,
		tasks: queue.NewDoubleQueue[timedTask](capacity),
	}
}

////////////////////////////////////////////////////////////////////////
// TaskManager interface
////////////////////////////////////////////////////////////////////////

func (tq *TaskQueue) Configure(notify Notify) {
	tq.notifyMu.Lock()
	defer tq.notifyMu.Unlock()
	tq.notify = notify
}

func (tq *TaskQueue) Index() uint64 {
	return tq.index
}

func (tq *TaskQueue) Empty() bool {
	return tq.tasks.Empty()
}

func (tq *TaskQueue) Size() uint64 {
	return uint64(tq.tasks.Size())
}

// Time returns the push timestamp of the oldest pending task.
func (tq *TaskQueue) Time() (time.Time, bool) {
	front, ok := tq.tasks.Front()
	if !ok {
		return time.Time{}, false
	}
	return front.time, true
}

func (tq *TaskQueue) Take(task *Task) bool {
	tt, ok := tq.tasks.Pop()
	if !ok {
		return false
	}

	*task = tt.task
	return true
}

////////////////////////////////////////////////////////////////////////
// Producer interface
////////////////////////////////////////////////////////////////////////

// Put appends one task, rejecting nil tasks and pushes beyond capacity. On
// the empty-to-non-empty transition, the announce callback fires outside all
// internal locks.
func (tq *TaskQueue) Put(task Task) bool {
	if task == nil {
		return false
	}

	prior, ok := tq.tasks.Push(timedTask{task: task, time: tq.clock.Now()})
	if !ok {
		return false
	}

	if prior == 0 {
		tq.fireNotify()
	}
	return true
}

// PutAll appends a batch of tasks. Nil tasks are filtered out before the
// push; the filtered batch is accepted or rejected as a whole against
// capacity.
func (tq *TaskQueue) PutAll(tasks []Task) bool {
	now := tq.clock.Now()
	batch := make([]timedTask, 0, len(tasks))
	for _, task := range tasks {
		if task != nil {
			batch = append(batch, timedTask{task: task, time: now})
		}
	}
	if len(batch) == 0 {
		return false
	}

	prior, ok := tq.tasks.PushAll(batch)
	if !ok {
		return false
	}

	if prior == 0 {
		tq.fireNotify()
	}
	return true
}

// TakeAll drains every pending task into out, returning true if anything
// was drained.
func (tq *TaskQueue) TakeAll(out *[]Task) bool {
	var drained []timedTask
	if !tq.tasks.PopAll(&drained) {
		return false
	}

	for _, tt := range drained {
		*out = append(*out, tt.task)
	}
	return true
}

// Capacity returns the queue capacity; zero or less means unbounded.
func (tq *TaskQueue) Capacity() int64 {
	return tq.tasks.Capacity()
}

// Reserve adjusts the queue capacity.
func (tq *TaskQueue) Reserve(capacity int64) {
	tq.tasks.Reserve(capacity)
}

// Clear discards all pending tasks, returning how many were discarded.
func (tq *TaskQueue) Clear() uint64 {
	return uint64(tq.tasks.Clear())
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// fireNotify invokes the announce callback, if any, without holding
// notifyMu across the call.
func (tq *TaskQueue) fireNotify() {
	tq.notifyMu.Lock()
	notify := tq.notify
	tq.notifyMu.Unlock()

	if notify != nil {
		notify(tq.index)
	}
}
