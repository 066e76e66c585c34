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

package pool

import (
	"github.com/taskengine/taskengine/manager"
	"github.com/taskengine/taskengine/metrics"
)

// Proxy is the restricted pool surface safe to hand to tasks and handlers:
// sizing observation, capacity adjustment, and task submission. It
// deliberately omits Destroy, which must never be called from a task
// running on the pool it would tear down.
type Proxy struct {
	pool *ThreadPool
}

var _ metrics.PoolSizes = &Proxy{}

func (p *Proxy) Capacity() int64 {
	return p.pool.Capacity()
}

func (p *Proxy) SetCapacity(capacity int64) {
	p.pool.SetCapacity(capacity)
}

func (p *Proxy) TotalSize() int64 {
	return p.pool.TotalSize()
}

func (p *Proxy) IdleSize() int64 {
	return p.pool.IdleSize()
}

func (p *Proxy) PendingSize() int64 {
	return p.pool.PendingSize()
}

func (p *Proxy) Execute(task manager.Task) bool {
	return p.pool.Execute(task)
}

func (p *Proxy) ExecuteAll(tasks []manager.Task) bool {
	return p.pool.ExecuteAll(tasks)
}
