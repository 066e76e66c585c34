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

// Package manager defines the task manager abstraction consumed by the
// thread pool, and its concrete implementations: a double-buffered FIFO
// queue, a keyed actor-style dispatcher, and an aggregator that multiplexes
// sub-managers by oldest pending work.
package manager

import "time"

// Task is a unit of work handed to workers. Identical to the worker
// package's task type.
type Task = func()

// Notify announces that a manager transitioned from empty to non-empty. The
// argument is the announcing manager's index; root managers pass their own
// index, aggregators use it to locate the sub-manager.
type Notify = func(index uint64)

// TaskManager supplies tasks to a thread pool.
//
// Implementations must be safe for concurrent use and must clear the
// callback when Configure is passed nil. TaskQueue and Aggregator invoke the
// configured notify callback outside all internal locks; TaskMapper invokes
// it while still holding the announcing key's locks (see TaskMapper).
type TaskManager interface {
	// Configure installs (or, with nil, clears) the announce callback.
	Configure(notify Notify)

	// Index returns the caller-assigned unique index.
	Index() uint64

	// Empty returns true iff no work is pending.
	Empty() bool

	// Size returns the number of pending work items.
	Size() uint64

	// Time returns the timestamp of the oldest pending work item.
	Time() (time.Time, bool)

	// Take moves the next task into its argument, returning false when no
	// work is available.
	Take(task *Task) bool
}

// Putter is the producer side of managers that accept bare tasks directly,
// such as the FIFO queue.
type Putter interface {
	Put(task Task) bool
	PutAll(tasks []Task) bool
}
