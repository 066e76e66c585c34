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
	"cmp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/taskengine/taskengine/internal/locker"
	"github.com/taskengine/taskengine/sorter"
)

// Handle consumes one message for a key. Handlers may enqueue further work
// through any pool API, but must not destroy the pool that invoked them.
type Handle[M any] func(*M)

// handlerEntry is the scheduling state of one key.
//
// External synchronization: fields are read and written only while holding
// the key's submutex; the entry pointer itself is stable once created.
type handlerEntry[M any] struct {
	handle   Handle[M]
	parallel bool
	idle     bool
}

// messageQueue buffers the pending messages of one key alongside their push
// timestamps, in lock-step.
type messageQueue[M any] struct {
	messages []M
	times    []time.Time
}

// keyRecord orders keys by their oldest pending message.
type keyRecord[K cmp.Ordered] struct {
	key  K
	time time.Time
}

// TaskMapper is the keyed actor TaskManager: each key owns a private message
// queue and a handler. Keys are scheduled across the mapper oldest message
// first, ties broken by smaller key. A serial handler runs one message at a
// time; a parallel handler may run many concurrently.
//
// LOCK ORDERING
//
// Acquire in this order and no other:
//
//  1. shared (shared for routine key operations, exclusive for Clear)
//  2. the key's submutex
//  3. handlersMu / queuesMu
//  4. sortMu
//  5. notifyMu
//
// User handlers are never invoked while any of these is held. The announce
// callback is invoked after sortMu and notifyMu are released, but while the
// announcing key's submutex and a shared hold on shared are still held.
type TaskMapper[K cmp.Ordered, M any] struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	index uint64
	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	shared locker.RWLocker

	submutexesMu sync.Mutex

	// Lazily populated; entries are never removed so that a submutex
	// pointer stays valid for the mapper's lifetime.
	//
	// GUARDED_BY(submutexesMu)
	submutexes map[K]*sync.Mutex

	handlersMu sync.Mutex

	// GUARDED_BY(handlersMu)
	handlers map[K]*handlerEntry[M]

	queuesMu sync.Mutex

	// GUARDED_BY(queuesMu)
	queues map[K]*messageQueue[M]

	// INVARIANT: equals the sum of pending messages across all queues.
	size atomic.Uint64

	sortMu sync.Mutex

	// Keys eligible for scheduling, ordered by (oldest time, key).
	//
	// GUARDED_BY(sortMu)
	sorter *sorter.Sorter[K, keyRecord[K]]

	notifyMu sync.Mutex

	// GUARDED_BY(notifyMu)
	notify Notify
}

var _ TaskManager = &TaskMapper[uint64, any]{}

// NewTaskMapper returns an empty mapper with the given index.
func NewTaskMapper[K cmp.Ordered, M any](index uint64, clock timeutil.Clock) *TaskMapper[K, M] {
	return &TaskMapper[K, M]{
		index:      index,
		clock:      clock,
		shared:     locker.NewRW("TaskMapper.shared", func() {}),
		submutexes: make(map[K]*sync.Mutex),
		handlers:   make(map[K]*handlerEntry[M]),
		queues:     make(map[K]*messageQueue[M]),
		sorter: sorter.New(
			func(r keyRecord[K]) K { return r.key },
			func(a, b keyRecord[K]) bool {
				if !a.time.Equal(b.time) {
					return a.time.Before(b.time)
				}
				return a.key < b.key
			}),
	}
}

////////////////////////////////////////////////////////////////////////
// TaskManager interface
////////////////////////////////////////////////////////////////////////

func (m *TaskMapper[K, M]) Configure(notify Notify) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.notify = notify
}

func (m *TaskMapper[K, M]) Index() uint64 {
	return m.index
}

func (m *TaskMapper[K, M]) Empty() bool {
	return m.size.Load() == 0
}

func (m *TaskMapper[K, M]) Size() uint64 {
	return m.size.Load()
}

// Time returns the timestamp of the oldest message among schedulable keys.
func (m *TaskMapper[K, M]) Time() (time.Time, bool) {
	m.sortMu.Lock()
	defer m.sortMu.Unlock()

	r, ok := m.sorter.Front(true)
	if !ok {
		return time.Time{}, false
	}
	return r.time, true
}

// Take pops one message for the frontmost schedulable key and wraps it into
// a task that runs the key's handler and then re-announces the key.
func (m *TaskMapper[K, M]) Take(task *Task) bool {
	m.shared.RLock()
	defer m.shared.RUnlock()

	m.sortMu.Lock()
	r, ok := m.sorter.Front(true)
	m.sortMu.Unlock()
	if !ok {
		return false
	}
	key := r.key

	sub := m.submutex(key)
	sub.Lock()
	defer sub.Unlock()

	// The front may have been served between the peek and the submutex
	// acquisition; re-validate everything it implied.
	entry := m.findHandler(key)
	if entry == nil || entry.handle == nil || (!entry.parallel && !entry.idle) {
		m.removeRecord(key)
		return false
	}

	q := m.findQueue(key)
	if q == nil || len(q.messages) == 0 {
		m.removeRecord(key)
		return false
	}

	message := q.messages[0]
	var zeroM M
	q.messages[0] = zeroM
	q.messages = q.messages[1:]
	q.times = q.times[1:]
	m.size.Add(^uint64(0))

	if entry.parallel {
		// Keep the key schedulable for its next message, if any. The
		// matching update at reply time covers messages that arrive
		// while this one is still running.
		m.sortMu.Lock()
		if len(q.times) != 0 {
			m.sorter.Insert(keyRecord[K]{key: key, time: q.times[0]})
		} else {
			m.sorter.Remove(key)
		}
		m.sortMu.Unlock()
	} else {
		// One at a time per key: the key leaves the schedule until the
		// wrapped task replies.
		entry.idle = false
		m.removeRecord(key)
	}

	handle := entry.handle
	*task = func() {
		handle(&message)
		m.reply(key)
	}
	return true
}

////////////////////////////////////////////////////////////////////////
// Producer interface
////////////////////////////////////////////////////////////////////////

// Set installs or replaces the handler for key. A nil handle parks the key:
// its messages are retained but it cannot be scheduled until a valid handler
// is installed again. Returns false when asked to park a key that has no
// handler at all.
func (m *TaskMapper[K, M]) Set(key K, handle Handle[M], parallel bool) bool {
	m.shared.RLock()
	defer m.shared.RUnlock()

	sub := m.submutex(key)
	sub.Lock()
	defer sub.Unlock()

	entry := m.findHandler(key)
	if entry == nil {
		if handle == nil {
			return false
		}

		m.handlersMu.Lock()
		m.handlers[key] = &handlerEntry[M]{
			handle:   handle,
			parallel: parallel,
			idle:     true,
		}
		m.handlersMu.Unlock()

		m.sort(key)
		return true
	}

	if handle == nil {
		entry.handle = nil
		m.removeRecord(key)
		return true
	}

	wasParked := entry.handle == nil
	entry.handle = handle
	entry.parallel = parallel
	if wasParked && entry.idle {
		m.sort(key)
	}
	return true
}

// Put appends one message to the key's queue. On the queue's
// empty-to-non-empty transition, the key becomes schedulable if its handler
// is installed and idle; if that makes the whole schedule non-empty, the
// announce callback fires.
func (m *TaskMapper[K, M]) Put(key K, message M) bool {
	return m.put(key, func(q *messageQueue[M]) {
		q.messages = append(q.messages, message)
		q.times = append(q.times, m.clock.Now())
		m.size.Add(1)
	})
}

// PutAll appends a batch of messages under a single lock acquisition and a
// single schedule update. An empty batch is rejected.
func (m *TaskMapper[K, M]) PutAll(key K, messages []M) bool {
	if len(messages) == 0 {
		return false
	}

	return m.put(key, func(q *messageQueue[M]) {
		now := m.clock.Now()
		q.messages = append(q.messages, messages...)
		for range messages {
			q.times = append(q.times, now)
		}
		m.size.Add(uint64(len(messages)))
	})
}

// ClearKey discards the pending messages of one key and removes it from the
// schedule. The handler, if any, stays installed.
func (m *TaskMapper[K, M]) ClearKey(key K) {
	m.shared.RLock()
	defer m.shared.RUnlock()

	sub := m.submutex(key)
	sub.Lock()
	defer sub.Unlock()

	m.queuesMu.Lock()
	if q, ok := m.queues[key]; ok {
		m.size.Add(^uint64(len(q.messages)) + 1)
		delete(m.queues, key)
	}
	m.queuesMu.Unlock()

	m.removeRecord(key)
}

// Clear discards the pending messages of every key and empties the
// schedule. Handlers stay installed.
func (m *TaskMapper[K, M]) Clear() {
	m.shared.Lock()
	defer m.shared.Unlock()

	m.queuesMu.Lock()
	clear(m.queues)
	m.queuesMu.Unlock()

	m.size.Store(0)

	m.sortMu.Lock()
	m.sorter.Clear()
	m.sortMu.Unlock()
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// put runs append under the put locking protocol and handles the schedule
// update for the queue's empty-to-non-empty transition.
func (m *TaskMapper[K, M]) put(key K, append_ func(q *messageQueue[M])) bool {
	m.shared.RLock()
	defer m.shared.RUnlock()

	sub := m.submutex(key)
	sub.Lock()
	defer sub.Unlock()

	m.queuesMu.Lock()
	q, ok := m.queues[key]
	if !ok {
		q = &messageQueue[M]{}
		m.queues[key] = q
	}
	m.queuesMu.Unlock()

	wasEmpty := len(q.messages) == 0
	append_(q)

	if wasEmpty {
		if entry := m.findHandler(key); entry != nil && entry.handle != nil && entry.idle {
			m.insertRecord(key, q.times[0])
		}
	}
	return true
}

// reply is invoked by the wrapped task after its handler returns. It marks
// the handler idle again and re-announces the key when it still has pending
// messages.
//
// LOCKS_EXCLUDED(m.shared)
func (m *TaskMapper[K, M]) reply(key K) {
	m.shared.RLock()
	defer m.shared.RUnlock()

	sub := m.submutex(key)
	sub.Lock()
	defer sub.Unlock()

	entry := m.findHandler(key)
	if entry == nil {
		return
	}

	wasIdle := entry.idle
	entry.idle = true
	if entry.handle == nil {
		return
	}

	// Serial handlers re-enter the schedule here. Parallel handlers are
	// already scheduled by take, but messages that arrived between take
	// and this reply may have found the handler mid-flight.
	if entry.parallel || !wasIdle {
		m.sort(key)
	}
}

// sort re-announces key using its queue's oldest timestamp, firing the
// announce callback when the schedule transitions from empty.
//
// LOCKS_REQUIRED(the key's submutex)
func (m *TaskMapper[K, M]) sort(key K) {
	q := m.findQueue(key)
	if q == nil || len(q.times) == 0 {
		return
	}

	m.insertRecord(key, q.times[0])
}

// insertRecord adds or updates the key's schedule record, firing the
// announce callback outside sortMu when the schedule was empty.
func (m *TaskMapper[K, M]) insertRecord(key K, oldest time.Time) {
	m.sortMu.Lock()
	wasEmpty := m.sorter.Empty()
	m.sorter.Insert(keyRecord[K]{key: key, time: oldest})
	m.sortMu.Unlock()

	if wasEmpty {
		m.fireNotify()
	}
}

func (m *TaskMapper[K, M]) removeRecord(key K) {
	m.sortMu.Lock()
	defer m.sortMu.Unlock()
	m.sorter.Remove(key)
}

// submutex returns the mutex serializing operations on key, creating it on
// first use.
func (m *TaskMapper[K, M]) submutex(key K) *sync.Mutex {
	m.submutexesMu.Lock()
	defer m.submutexesMu.Unlock()

	sub, ok := m.submutexes[key]
	if !ok {
		sub = &sync.Mutex{}
		m.submutexes[key] = sub
	}
	return sub
}

func (m *TaskMapper[K, M]) findHandler(key K) *handlerEntry[M] {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	return m.handlers[key]
}

func (m *TaskMapper[K, M]) findQueue(key K) *messageQueue[M] {
	m.queuesMu.Lock()
	defer m.queuesMu.Unlock()
	return m.queues[key]
}

func (m *TaskMapper[K, M]) fireNotify() {
	m.notifyMu.Lock()
	notify := m.notify
	m.notifyMu.Unlock()

	if notify != nil {
		notify(m.index)
	}
}
