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

	"github.com/taskengine/taskengine/sorter"
)

// indexRecord orders sub-managers by their oldest pending work.
type indexRecord struct {
	index uint64
	time  time.Time
}

// Aggregator multiplexes several sub-managers behind the TaskManager
// interface. Take serves the sub-manager whose oldest pending timestamp is
// smallest, ties broken by smaller index.
//
// Inserting a sub-manager installs the aggregator's own announce callback
// into it, so sub-managers re-announce their oldest time through the
// aggregator; the aggregator in turn announces to the pool on its own
// empty-to-non-empty transitions.
type Aggregator struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	index uint64

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu sync.RWMutex

	// GUARDED_BY(mu)
	managers map[uint64]TaskManager

	// Sub-managers with pending work, ordered by (oldest time, index).
	schedule *sorter.SharedSorter[uint64, indexRecord]

	notifyMu sync.Mutex

	// GUARDED_BY(notifyMu)
	notify Notify
}

var _ TaskManager = &Aggregator{}

// NewAggregator returns an empty aggregator with the given index.
func NewAggregator(index uint64) *Aggregator {
	return &Aggregator{
		index:    index,
		managers: make(map[uint64]TaskManager),
		schedule: sorter.NewShared(
			func(r indexRecord) uint64 { return r.index },
			func(a, b indexRecord) bool {
				if !a.time.Equal(b.time) {
					return a.time.Before(b.time)
				}
				return a.index < b.index
			}),
	}
}

////////////////////////////////////////////////////////////////////////
// TaskManager interface
////////////////////////////////////////////////////////////////////////

func (a *Aggregator) Configure(notify Notify) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	a.notify = notify
}

func (a *Aggregator) Index() uint64 {
	return a.index
}

func (a *Aggregator) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, sub := range a.managers {
		if !sub.Empty() {
			return false
		}
	}
	return true
}

func (a *Aggregator) Size() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var total uint64
	for _, sub := range a.managers {
		total += sub.Size()
	}
	return total
}

// Time returns the oldest pending timestamp across scheduled sub-managers.
func (a *Aggregator) Time() (time.Time, bool) {
	r, ok := a.schedule.Front(true)
	if !ok {
		return time.Time{}, false
	}
	return r.time, true
}

// Take delegates to the sub-manager with the oldest pending work, then
// refreshes that sub-manager's position in the schedule.
func (a *Aggregator) Take(task *Task) bool {
	r, ok := a.schedule.Front(true)
	if !ok {
		return false
	}

	a.mu.RLock()
	sub, ok := a.managers[r.index]
	a.mu.RUnlock()
	if !ok {
		a.schedule.Remove(r.index)
		return false
	}

	ok = sub.Take(task)
	a.reschedule(sub)
	return ok
}

////////////////////////////////////////////////////////////////////////
// Composition interface
////////////////////////////////////////////////////////////////////////

// Insert adds a sub-manager keyed by its own index, replacing any previous
// one under the same index. The outgoing sub-manager's announce callback is
// cleared before its reference is dropped.
func (a *Aggregator) Insert(sub TaskManager) {
	index := sub.Index()

	a.mu.Lock()
	if old, ok := a.managers[index]; ok && old != sub {
		old.Configure(nil)
	}
	a.managers[index] = sub
	a.mu.Unlock()

	sub.Configure(a.taskNotify)
	a.reschedule(sub)
}

// Remove detaches the sub-manager under index, clearing its announce
// callback.
func (a *Aggregator) Remove(index uint64) bool {
	a.mu.Lock()
	sub, ok := a.managers[index]
	if ok {
		delete(a.managers, index)
	}
	a.mu.Unlock()

	if !ok {
		return false
	}

	sub.Configure(nil)
	a.schedule.Remove(index)
	return true
}

// Find returns the sub-manager under index, if any.
func (a *Aggregator) Find(index uint64) (TaskManager, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sub, ok := a.managers[index]
	return sub, ok
}

// Clear detaches every sub-manager, clearing their announce callbacks. The
// sub-managers' own pending work is left untouched.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	managers := a.managers
	a.managers = make(map[uint64]TaskManager)
	a.mu.Unlock()

	for _, sub := range managers {
		sub.Configure(nil)
	}
	a.schedule.Clear()
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// taskNotify is installed into every sub-manager. It refreshes the
// sub-manager's schedule position and propagates the announcement when the
// schedule transitions from empty.
func (a *Aggregator) taskNotify(index uint64) {
	a.mu.RLock()
	sub, ok := a.managers[index]
	a.mu.RUnlock()
	if !ok {
		return
	}

	wasEmpty := a.schedule.Empty()
	a.reschedule(sub)
	if wasEmpty && !a.schedule.Empty() {
		a.fireNotify()
	}
}

// reschedule updates or removes the sub-manager's schedule record according
// to its current oldest pending time.
func (a *Aggregator) reschedule(sub TaskManager) {
	if t, ok := sub.Time(); ok {
		a.schedule.Insert(indexRecord{index: sub.Index(), time: t})
	} else {
		a.schedule.Remove(sub.Index())
	}
}

func (a *Aggregator) fireNotify() {
	a.notifyMu.Lock()
	notify := a.notify
	a.notifyMu.Unlock()

	if notify != nil {
		notify(a.index)
	}
}
