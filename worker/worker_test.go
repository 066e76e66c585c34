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

package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second
const tick = time.Millisecond

func TestNewWorkerIsEmpty(t *testing.T) {
	w := New()

	assert.Equal(t, Empty, w.State())
	assert.False(t, w.Idle())
	assert.False(t, w.Notify())
	assert.False(t, w.Destroy())
}

func TestCreateTransitionsToInitial(t *testing.T) {
	w := New()

	require.True(t, w.Create())
	defer w.Destroy()

	assert.Equal(t, Initial, w.State())
	assert.True(t, w.Idle())
	assert.NotZero(t, w.ID())

	// A second Create is rejected until the worker is destroyed.
	assert.False(t, w.Create())
}

func TestConfigureRequiresAnIdleWorker(t *testing.T) {
	w := New()

	// Empty: nothing can be configured.
	assert.False(t, w.ConfigureTask(func() {}, nil))
	assert.False(t, w.ConfigureFetch(func(*Task) bool { return false }, nil))

	require.True(t, w.Create())
	defer w.Destroy()

	// Nil task and nil fetch are rejected outright.
	assert.False(t, w.ConfigureTask(nil, nil))
	assert.False(t, w.ConfigureFetch(nil, nil))

	// Runnable is not idle.
	require.True(t, w.ConfigureTask(func() {}, nil))
	assert.Equal(t, Runnable, w.State())
	assert.False(t, w.ConfigureTask(func() {}, nil))
}

func TestConfiguredTaskRunsOnNotify(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	defer w.Destroy()

	done := make(chan struct{})
	require.True(t, w.ConfigureTask(func() { close(done) }, nil))
	require.True(t, w.Notify())

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("configured task never ran")
	}

	// With no fetch pipeline the worker parks after the task.
	assert.Eventually(t, func() bool { return w.State() == Blocked }, waitFor, tick)
}

func TestReplyReportsIdleAfterAOneShotTask(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	defer w.Destroy()

	type replyCall struct {
		id   uint64
		idle bool
	}
	replies := make(chan replyCall, 1)
	reply := func(id uint64, idle bool) {
		replies <- replyCall{id: id, idle: idle}
	}

	require.True(t, w.ConfigureTask(func() {}, reply))
	require.True(t, w.Notify())

	select {
	case call := <-replies:
		assert.Equal(t, w.ID(), call.id)
		assert.True(t, call.idle)
	case <-time.After(waitFor):
		t.Fatal("reply callback never fired")
	}
}

func TestFetchPipelineDrainsAllWork(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	defer w.Destroy()

	const total = 5
	var mu sync.Mutex
	remaining := total
	var executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(total)

	fetch := func(task *Task) bool {
		mu.Lock()
		defer mu.Unlock()
		if remaining == 0 {
			return false
		}
		remaining--
		*task = func() {
			executed.Add(1)
			wg.Done()
		}
		return true
	}

	require.True(t, w.ConfigureFetch(fetch, nil))
	assert.Equal(t, Blocked, w.State())

	// One notification is enough: the worker self-pulls until the
	// pipeline runs dry.
	require.True(t, w.Notify())
	wg.Wait()

	assert.Equal(t, int32(total), executed.Load())
	assert.Eventually(t, func() bool { return w.State() == Blocked }, waitFor, tick)
}

func TestNotifyFailsWhenTheFetchPipelineIsDry(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	defer w.Destroy()

	require.True(t, w.ConfigureFetch(func(*Task) bool { return false }, nil))
	assert.False(t, w.Notify())
	assert.Equal(t, Blocked, w.State())
}

func TestDestroyJoinsAndEmpties(t *testing.T) {
	w := New()
	require.True(t, w.Create())

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, w.ConfigureTask(func() {
		close(started)
		<-release
	}, nil))
	require.True(t, w.Notify())
	<-started

	// Destroy must wait for the running task.
	destroyed := make(chan struct{})
	go func() {
		w.Destroy()
		close(destroyed)
	}()

	select {
	case <-destroyed:
		t.Fatal("Destroy returned while a task was still running")
	case <-time.After(10 * time.Millisecond):
	}

	close(release)
	select {
	case <-destroyed:
	case <-time.After(waitFor):
		t.Fatal("Destroy never returned")
	}

	assert.Equal(t, Empty, w.State())
	assert.False(t, w.Destroy())
}

func TestWorkerIsReusableAfterDestroy(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	firstID := w.ID()
	require.True(t, w.Destroy())

	require.True(t, w.Create())
	defer w.Destroy()
	assert.NotEqual(t, firstID, w.ID())

	done := make(chan struct{})
	require.True(t, w.ConfigureTask(func() { close(done) }, nil))
	require.True(t, w.Notify())

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("task never ran on the re-created worker")
	}
}

func TestPanickingTaskDoesNotKillTheWorker(t *testing.T) {
	w := New()
	require.True(t, w.Create())
	defer w.Destroy()

	replies := make(chan bool, 1)
	require.True(t, w.ConfigureTask(func() { panic("boom") }, func(_ uint64, idle bool) {
		replies <- idle
	}))
	require.True(t, w.Notify())

	select {
	case idle := <-replies:
		assert.True(t, idle)
	case <-time.After(waitFor):
		t.Fatal("reply never fired after a panicking task")
	}

	// The worker accepts and runs further work.
	done := make(chan struct{})
	require.Eventually(t, func() bool {
		return w.ConfigureTask(func() { close(done) }, nil)
	}, waitFor, tick)
	require.True(t, w.Notify())

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("worker did not recover from the panic")
	}
}

func TestWorkerIDsAreUnique(t *testing.T) {
	a := New()
	b := New()
	require.True(t, a.Create())
	require.True(t, b.Create())
	defer a.Destroy()
	defer b.Destroy()

	assert.NotEqual(t, a.ID(), b.ID())
}
